// Package ingest loads passages into the indexes: parsing, validation,
// embedding, and upserts across the passage store and both scorers.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/loreleaf/loreleaf/internal/errors"
	"github.com/loreleaf/loreleaf/internal/store"
	"github.com/loreleaf/loreleaf/internal/taxonomy"
)

// Lines longer than this are malformed input, not passages.
const maxLineBytes = 4 * 1024 * 1024

// LineError records one rejected input line.
type LineError struct {
	Line   int
	Reason string
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// LoadResult is what a parse pass produced.
type LoadResult struct {
	Passages []*store.Passage
	Rejected []LineError
}

// LoadJSONL parses one passage per line. Invalid lines are collected,
// not fatal; the caller decides whether the rejection rate is
// acceptable. Duplicate IDs keep the last occurrence, matching upsert
// semantics.
func LoadJSONL(r io.Reader) (*LoadResult, error) {
	result := &LoadResult{}
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var p store.Passage
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			result.Rejected = append(result.Rejected, LineError{lineNo, "invalid JSON: " + err.Error()})
			continue
		}
		if reason := validatePassage(&p); reason != "" {
			result.Rejected = append(result.Rejected, LineError{lineNo, reason})
			continue
		}
		if p.TokenCount == 0 {
			p.TokenCount = len(strings.Fields(p.Body))
		}

		if prev, ok := seen[p.ID]; ok {
			result.Passages[prev] = &p
			continue
		}
		seen[p.ID] = len(result.Passages)
		result.Passages = append(result.Passages, &p)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRequest, "reading input", err)
	}

	return result, nil
}

// validatePassage returns a rejection reason, or "" when valid.
func validatePassage(p *store.Passage) string {
	if strings.TrimSpace(p.ID) == "" {
		return "missing id"
	}
	if strings.TrimSpace(p.Body) == "" {
		return "missing body"
	}
	if err := taxonomy.ValidatePath(p.TaxonomyPath); err != nil {
		return "invalid taxonomy_path: " + err.Error()
	}
	return ""
}
