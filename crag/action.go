package crag

import "github.com/finchat/ragcore/schema"

// MergeResults combines the original and corrective retrieval rounds,
// deduplicating by hit identity with first occurrence winning, then
// truncating to limit. Order favors the original round.
func MergeResults(primary, secondary []schema.SearchResult, limit int) []schema.SearchResult {
	seen := make(map[string]bool, len(primary)+len(secondary))
	out := make([]schema.SearchResult, 0, len(primary)+len(secondary))
	for _, set := range [][]schema.SearchResult{primary, secondary} {
		for _, r := range set {
			id := r.HitID()
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Discard is the corrective action for a bad verdict: drop everything
// rather than hand unrelated passages to generation.
func Discard() []schema.SearchResult { return []schema.SearchResult{} }
