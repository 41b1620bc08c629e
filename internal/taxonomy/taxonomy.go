// Package taxonomy implements dotted-path scope matching. Passages
// carry a taxonomy path like "science.biology.cells"; a request scope
// admits a passage when a scope entry equals the path or is one of its
// dotted ancestors.
package taxonomy

import (
	"fmt"
	"strings"

	"github.com/loreleaf/loreleaf/internal/store"
)

// MaxDepth bounds taxonomy path depth.
const MaxDepth = 16

// Matches reports whether path is admitted by scope on an
// ancestor-or-self basis. An empty scope admits everything; an empty
// path is only admitted by an empty scope.
func Matches(path string, scope []string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if matchesOne(path, s) {
			return true
		}
	}
	return false
}

// matchesOne checks a single scope entry. "science" matches "science"
// and "science.biology" but not "sciences".
func matchesOne(path, scope string) bool {
	if scope == "" {
		return false
	}
	if path == scope {
		return true
	}
	return strings.HasPrefix(path, scope+".")
}

// Filter returns the candidates admitted by scope. It is pure and
// idempotent: the input slice is never mutated, and filtering an
// already filtered set returns an equal set.
func Filter(candidates []*store.Candidate, scope []string) []*store.Candidate {
	if len(scope) == 0 {
		return candidates
	}
	out := make([]*store.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if Matches(c.TaxonomyPath, scope) {
			out = append(out, c)
		}
	}
	return out
}

// ValidatePath checks that a taxonomy path is well formed: dotted
// non-empty segments within the depth bound. The empty path is valid
// and means unclassified.
func ValidatePath(path string) error {
	if path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	if len(segments) > MaxDepth {
		return fmt.Errorf("taxonomy path exceeds max depth %d: %q", MaxDepth, path)
	}
	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("taxonomy path has empty segment: %q", path)
		}
	}
	return nil
}
