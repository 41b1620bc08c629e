package search

import (
	"regexp"
	"strings"

	"github.com/loreleaf/loreleaf/internal/config"
)

// QueryKind is a coarse, deterministic classification used to pick the
// fusion alpha in auto mode.
type QueryKind string

const (
	// KindKeyword covers short term lookups, quoted phrases and
	// technical identifiers. Lexical scoring does well here.
	KindKeyword QueryKind = "keyword"

	// KindQuestion covers natural-language questions and commands.
	// Vector similarity does well here.
	KindQuestion QueryKind = "question"

	// KindGeneral is everything else; uses the neutral alpha.
	KindGeneral QueryKind = "general"
)

var (
	quotedPattern     = regexp.MustCompile(`^["'].*["']$`)
	identifierPattern = regexp.MustCompile(`^[\w\-]+([._/][\w\-]+)+$`)

	questionPattern = regexp.MustCompile(`(?i)^(how|what|where|why|when|which|who|can|does|do|is|are|should|explain|describe|compare)\b`)
)

// ClassifyQuery buckets a query by surface form. Deterministic: the
// same query always yields the same kind.
func ClassifyQuery(query string) QueryKind {
	query = strings.TrimSpace(query)
	if query == "" {
		return KindGeneral
	}

	if questionPattern.MatchString(query) || strings.HasSuffix(query, "?") {
		return KindQuestion
	}

	if quotedPattern.MatchString(query) || identifierPattern.MatchString(query) {
		return KindKeyword
	}

	// Short queries without question markers read as term lookups.
	if len(strings.Fields(query)) <= 2 {
		return KindKeyword
	}

	return KindGeneral
}

// EffectiveAlpha resolves the lexical weight a request will fuse with.
// Exposed so the serving layer can key its response cache on it.
func EffectiveAlpha(cfg config.FusionConfig, query string, override *float64) float64 {
	return alphaFor(cfg, query, override)
}

// alphaFor resolves the lexical weight for a request. Precedence:
// explicit per-request override, then auto-mode preset by query kind,
// then the fixed configured alpha.
func alphaFor(cfg config.FusionConfig, query string, override *float64) float64 {
	if override != nil {
		a := *override
		if a < 0 {
			a = 0
		}
		if a > 1 {
			a = 1
		}
		return a
	}

	if strings.ToLower(cfg.Mode) == "auto" {
		switch ClassifyQuery(query) {
		case KindKeyword:
			return cfg.AlphaKeyword
		case KindQuestion:
			return cfg.AlphaQuestion
		}
	}
	return cfg.Alpha
}
