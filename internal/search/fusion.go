package search

import (
	"sort"

	"github.com/loreleaf/loreleaf/internal/store"
)

// Fuse combines lexical and vector candidate sets into one ranking.
//
// Each source is min-max normalized independently over this request's
// candidates. alpha is the lexical weight and 1-alpha the vector
// weight; when one source contributed nothing its weight is
// redistributed so a single-source ranking keeps full-scale scores
// instead of being artificially deflated.
//
// Ordering: combined score desc, then candidates present in both sets
// before single-source ones, then passage ID asc. Pure function, no
// I/O; fusing the same inputs always yields the same output.
func Fuse(lexical, vector []*store.Candidate, alpha float64) []*FusedResult {
	if len(lexical) == 0 && len(vector) == 0 {
		return []*FusedResult{}
	}

	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}

	// Weight redistribution for empty sources.
	wLex, wVec := alpha, 1-alpha
	if len(lexical) == 0 {
		wLex, wVec = 0, 1
	}
	if len(vector) == 0 {
		wLex, wVec = 1, 0
	}

	normLex := normalizeScores(lexical)
	normVec := normalizeScores(vector)

	fused := make(map[string]*FusedResult, len(lexical)+len(vector))
	for _, c := range lexical {
		fused[c.PassageID] = &FusedResult{
			PassageID:    c.PassageID,
			LexScore:     normLex[c.PassageID],
			TaxonomyPath: c.TaxonomyPath,
		}
	}
	for _, c := range vector {
		f, ok := fused[c.PassageID]
		if !ok {
			f = &FusedResult{
				PassageID:    c.PassageID,
				TaxonomyPath: c.TaxonomyPath,
			}
			fused[c.PassageID] = f
		} else {
			f.InBoth = true
		}
		f.VecScore = normVec[c.PassageID]
	}

	results := make([]*FusedResult, 0, len(fused))
	for _, f := range fused {
		f.Combined = wLex*f.LexScore + wVec*f.VecScore
		results = append(results, f)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if a.InBoth != b.InBoth {
			return a.InBoth
		}
		return a.PassageID < b.PassageID
	})

	return results
}

// normalizeScores min-max normalizes raw scores over the candidate
// set. A degenerate set (one candidate, or all scores equal) maps to
// 1.0 so a lone strong hit is not zeroed out.
func normalizeScores(candidates []*store.Candidate) map[string]float64 {
	norm := make(map[string]float64, len(candidates))
	if len(candidates) == 0 {
		return norm
	}

	minScore, maxScore := candidates[0].Score, candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score < minScore {
			minScore = c.Score
		}
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}

	spread := maxScore - minScore
	for _, c := range candidates {
		if spread == 0 {
			norm[c.PassageID] = 1.0
			continue
		}
		norm[c.PassageID] = (c.Score - minScore) / spread
	}
	return norm
}
