package store

import (
	"strings"
	"unicode"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// Tokenize lowercases text and splits it into word tokens on
// non-alphanumeric boundaries. Both the indexer and the query side use
// this function, which keeps lexical scoring deterministic for a fixed
// corpus and query.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return fields
}

// TokenizeWithConfig tokenizes, applies the stop-word and
// minimum-length filters from cfg, and Porter-stems each surviving
// token so that inflected forms ("produce", "produces") index and
// query as the same term.
func TokenizeWithConfig(text string, cfg LexicalConfig, stopWords map[string]struct{}) []string {
	minLen := cfg.MinTokenLength
	if minLen <= 0 {
		minLen = 2
	}

	raw := Tokenize(text)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) < minLen {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		tokens = append(tokens, porterstemmer.StemString(tok))
	}
	return tokens
}

// BuildStopWordMap converts a stop-word list into a lookup set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
