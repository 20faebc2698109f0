package fusion

import (
	"sort"

	"github.com/finchat/ragcore/schema"
)

// RRFScore merges ranked lists with Reciprocal Rank Fusion. Every list a
// hit appears in contributes 1/(k+rank+1) with a 0-based rank, so a hit
// present in both channels accumulates both contributions. Per-channel
// scores are carried through; ties break on the original dense rank, with
// hits the dense channel never saw sorting last.
func RRFScore(lists [][]schema.SearchResult, k int) []schema.SearchResult {
	if k <= 0 {
		k = 60
	}
	scores := map[string]*schema.SearchResult{}
	order := make([]string, 0)

	for _, list := range lists {
		for idx, item := range list {
			id := item.HitID()
			a, ok := scores[id]
			if !ok {
				merged := item
				merged.FusedScore = 0
				merged.DenseRank = -1
				scores[id] = &merged
				order = append(order, id)
				a = &merged
			}
			a.FusedScore += 1.0 / (float64(k) + float64(idx) + 1.0)
			if item.DenseScore != 0 && a.DenseScore == 0 {
				a.DenseScore = item.DenseScore
			}
			if item.SparseScore != 0 && a.SparseScore == 0 {
				a.SparseScore = item.SparseScore
			}
			if item.DenseRank >= 0 && (a.DenseRank < 0 || item.DenseRank < a.DenseRank) {
				a.DenseRank = item.DenseRank
			}
		}
	}

	out := make([]schema.SearchResult, 0, len(order))
	for _, id := range order {
		r := *scores[id]
		r.Score = r.FusedScore
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return denseRankKey(out[i]) < denseRankKey(out[j])
	})
	return out
}

// denseRankKey orders tie-broken hits; absent-from-dense sorts last.
func denseRankKey(r schema.SearchResult) int {
	if r.DenseRank < 0 {
		return int(^uint(0) >> 1)
	}
	return r.DenseRank
}
