package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreleaf/loreleaf/internal/store"
)

func lexCandidates(pairs ...interface{}) []*store.Candidate {
	out := make([]*store.Candidate, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, &store.Candidate{
			PassageID: pairs[i].(string),
			Score:     pairs[i+1].(float64),
			Source:    store.SourceLexical,
		})
	}
	return out
}

func vecCandidates(pairs ...interface{}) []*store.Candidate {
	out := lexCandidates(pairs...)
	for _, c := range out {
		c.Source = store.SourceVector
	}
	return out
}

func orderOf(fused []*FusedResult) []string {
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.PassageID
	}
	return ids
}

func TestFuse_WeightLaw(t *testing.T) {
	lex := lexCandidates("a", 10.0, "b", 5.0, "c", 1.0)
	vec := vecCandidates("c", 0.9, "b", 0.5, "a", 0.1)

	// alpha=1.0 reproduces the lexical order exactly.
	fused := Fuse(lex, vec, 1.0)
	assert.Equal(t, []string{"a", "b", "c"}, orderOf(fused))

	// alpha=0.0 reproduces the vector order exactly.
	fused = Fuse(lex, vec, 0.0)
	assert.Equal(t, []string{"c", "b", "a"}, orderOf(fused))
}

func TestFuse_CombinedInUnitRange(t *testing.T) {
	lex := lexCandidates("a", 12.3, "b", 4.0, "c", 0.5)
	vec := vecCandidates("a", 0.99, "d", 0.42)

	fused := Fuse(lex, vec, 0.5)
	for _, f := range fused {
		assert.GreaterOrEqual(t, f.Combined, 0.0)
		assert.LessOrEqual(t, f.Combined, 1.0)
	}
}

func TestFuse_WeightRedistribution(t *testing.T) {
	lex := lexCandidates("a", 10.0, "b", 5.0, "c", 1.0)

	// Vector path returned nothing: the lexical source takes the full
	// weight, so the top hit scores 1.0 instead of alpha.
	fused := Fuse(lex, nil, 0.5)
	require.Len(t, fused, 3)
	assert.Equal(t, "a", fused[0].PassageID)
	assert.InDelta(t, 1.0, fused[0].Combined, 1e-9)
	assert.InDelta(t, 0.0, fused[2].Combined, 1e-9)

	// Symmetric for an empty lexical source.
	vec := vecCandidates("x", 0.9, "y", 0.2)
	fused = Fuse(nil, vec, 0.5)
	require.Len(t, fused, 2)
	assert.InDelta(t, 1.0, fused[0].Combined, 1e-9)
}

func TestFuse_SingleMembershipScaledByWeight(t *testing.T) {
	// "solo" appears only in the lexical set; with both sources
	// populated its score is its normalized lexical score times alpha.
	lex := lexCandidates("solo", 8.0, "both", 4.0)
	vec := vecCandidates("both", 0.7, "other", 0.3)

	fused := Fuse(lex, vec, 0.6)
	var solo *FusedResult
	for _, f := range fused {
		if f.PassageID == "solo" {
			solo = f
		}
	}
	require.NotNil(t, solo)
	assert.False(t, solo.InBoth)
	assert.InDelta(t, 0.6*1.0, solo.Combined, 1e-9)
}

func TestFuse_TieBreaks(t *testing.T) {
	// "b" is in both sets; "a" and "z" are single-source. Scores are
	// arranged so all three tie on combined score.
	lex := lexCandidates("z", 1.0, "b", 1.0, "a", 1.0)
	vec := vecCandidates("b", 0.5)

	fused := Fuse(lex, vec, 1.0)
	require.Len(t, fused, 3)

	// All combined scores are 1.0 (degenerate normalization); the
	// in-both candidate wins, then ID ascending.
	assert.Equal(t, []string{"b", "a", "z"}, orderOf(fused))
}

func TestFuse_DeterministicAndIdempotent(t *testing.T) {
	lex := lexCandidates("a", 3.2, "b", 1.1, "c", 9.7, "d", 0.4)
	vec := vecCandidates("c", 0.88, "e", 0.61, "a", 0.34)

	first := Fuse(lex, vec, 0.4)
	for i := 0; i < 10; i++ {
		assert.Equal(t, orderOf(first), orderOf(Fuse(lex, vec, 0.4)))
	}
}

func TestFuse_Empty(t *testing.T) {
	fused := Fuse(nil, nil, 0.5)
	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestNormalizeScores_Degenerate(t *testing.T) {
	// A single candidate, or several with identical scores, normalize
	// to 1.0 rather than 0.
	one := normalizeScores(lexCandidates("a", 7.0))
	assert.Equal(t, 1.0, one["a"])

	same := normalizeScores(lexCandidates("a", 3.0, "b", 3.0))
	assert.Equal(t, 1.0, same["a"])
	assert.Equal(t, 1.0, same["b"])
}
