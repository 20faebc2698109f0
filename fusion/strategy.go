package fusion

import (
	"sort"

	"github.com/finchat/ragcore/schema"
)

// Strategy merges multiple ranked lists into a single ranked list.
type Strategy interface {
	Fuse(lists [][]schema.SearchResult) []schema.SearchResult
	// Name returns the strategy name
	Name() string
}

// RRFStrategy implements Reciprocal Rank Fusion
type RRFStrategy struct {
	K int // RRF parameter (default: 60)
}

// NewRRFStrategy creates a new RRF fusion strategy
func NewRRFStrategy(k int) *RRFStrategy {
	if k <= 0 {
		k = 60
	}
	return &RRFStrategy{K: k}
}

// Fuse implements RRF fusion
func (s *RRFStrategy) Fuse(lists [][]schema.SearchResult) []schema.SearchResult {
	return RRFScore(lists, s.K)
}

// Name returns the strategy name
func (s *RRFStrategy) Name() string {
	return "rrf"
}

// WeightedStrategy averages scores weighted per retrieval channel. The
// channel is read from each hit's retriever attribution, falling back to
// weight 1.0 when unconfigured.
type WeightedStrategy struct {
	Weights map[string]float64 // weights per retriever type
}

// NewWeightedStrategy creates a new weighted fusion strategy
func NewWeightedStrategy(weights map[string]float64) *WeightedStrategy {
	if weights == nil {
		weights = make(map[string]float64)
	}
	return &WeightedStrategy{Weights: weights}
}

// Fuse implements weighted score fusion
func (s *WeightedStrategy) Fuse(lists [][]schema.SearchResult) []schema.SearchResult {
	if len(lists) == 0 {
		return []schema.SearchResult{}
	}

	type agg struct {
		res   schema.SearchResult
		score float64
		count int
	}
	scores := map[string]*agg{}
	order := make([]string, 0)

	for _, list := range lists {
		weight := 1.0
		if len(list) > 0 {
			if w, exists := s.Weights[channelOf(list[0])]; exists {
				weight = w
			}
		}
		for _, item := range list {
			id := item.HitID()
			a, ok := scores[id]
			if !ok {
				a = &agg{res: item}
				scores[id] = a
				order = append(order, id)
			}
			a.score += item.Score * weight
			a.count++
		}
	}

	out := make([]schema.SearchResult, 0, len(order))
	for _, id := range order {
		a := scores[id]
		r := a.res
		r.FusedScore = a.score / float64(a.count)
		r.Score = r.FusedScore
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Name returns the strategy name
func (s *WeightedStrategy) Name() string {
	return "weighted"
}

// channelOf infers which retrieval channel produced the hit.
func channelOf(r schema.SearchResult) string {
	if r.DenseScore != 0 {
		return "vector"
	}
	if r.SparseScore != 0 {
		return "bm25"
	}
	return ""
}

// LinearCombinationStrategy sums scores with per-list weights, normalized
// so the weights add up to 1.
type LinearCombinationStrategy struct {
	Weights []float64 // weights for each list, in order
}

// NewLinearCombinationStrategy creates a new linear combination strategy
func NewLinearCombinationStrategy(weights []float64) *LinearCombinationStrategy {
	if len(weights) == 0 {
		weights = []float64{1.0}
	}
	return &LinearCombinationStrategy{Weights: weights}
}

// Fuse implements linear combination fusion
func (s *LinearCombinationStrategy) Fuse(lists [][]schema.SearchResult) []schema.SearchResult {
	if len(lists) == 0 {
		return []schema.SearchResult{}
	}

	totalWeight := 0.0
	for _, w := range s.Weights {
		totalWeight += w
	}
	if totalWeight == 0 {
		totalWeight = 1
	}
	normalized := make([]float64, len(s.Weights))
	for i, w := range s.Weights {
		normalized[i] = w / totalWeight
	}

	type agg struct {
		res   schema.SearchResult
		score float64
	}
	scores := map[string]*agg{}
	order := make([]string, 0)

	for listIdx, list := range lists {
		weight := 1.0
		if listIdx < len(normalized) {
			weight = normalized[listIdx]
		}
		for _, item := range list {
			id := item.HitID()
			a, ok := scores[id]
			if !ok {
				a = &agg{res: item}
				scores[id] = a
				order = append(order, id)
			}
			a.score += item.Score * weight
		}
	}

	out := make([]schema.SearchResult, 0, len(order))
	for _, id := range order {
		a := scores[id]
		r := a.res
		r.FusedScore = a.score
		r.Score = a.score
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Name returns the strategy name
func (s *LinearCombinationStrategy) Name() string {
	return "linear"
}

// DistributionBasedStrategy normalizes each list's scores to [0,1] before
// handing off to a wrapped strategy. Evens out score scales across
// channels whose raw ranges differ wildly.
type DistributionBasedStrategy struct {
	BaseStrategy Strategy
}

// NewDistributionBasedStrategy creates a new distribution-based strategy
func NewDistributionBasedStrategy(base Strategy) *DistributionBasedStrategy {
	if base == nil {
		base = NewRRFStrategy(60)
	}
	return &DistributionBasedStrategy{BaseStrategy: base}
}

// Fuse implements distribution-based fusion with normalization
func (s *DistributionBasedStrategy) Fuse(lists [][]schema.SearchResult) []schema.SearchResult {
	if len(lists) == 0 {
		return []schema.SearchResult{}
	}

	normalizedLists := make([][]schema.SearchResult, len(lists))
	for i, list := range lists {
		if len(list) == 0 {
			normalizedLists[i] = list
			continue
		}

		minScore := list[0].Score
		maxScore := list[0].Score
		for _, item := range list {
			if item.Score < minScore {
				minScore = item.Score
			}
			if item.Score > maxScore {
				maxScore = item.Score
			}
		}

		normalizedList := make([]schema.SearchResult, len(list))
		scoreRange := maxScore - minScore
		for j, item := range list {
			normalized := item
			if scoreRange > 0 {
				normalized.Score = (item.Score - minScore) / scoreRange
			} else {
				normalized.Score = 1.0 // all scores are the same
			}
			normalizedList[j] = normalized
		}
		normalizedLists[i] = normalizedList
	}

	return s.BaseStrategy.Fuse(normalizedLists)
}

// Name returns the strategy name
func (s *DistributionBasedStrategy) Name() string {
	return "distribution_based_" + s.BaseStrategy.Name()
}
