package retrieval

import (
	"fmt"

	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

// MetadataFilter drops hits by metadata field rules before reranking.
// Include mode keeps only hits matching at least one rule; exclude mode
// drops hits matching any rule. Hits without the field pass in exclude
// mode and fail in include mode.
type MetadataFilter struct {
	cfg *config.FilterConfig
}

func NewMetadataFilter(cfg *config.FilterConfig) *MetadataFilter {
	return &MetadataFilter{cfg: cfg}
}

// Apply filters results in ranked order. Returns the survivors and how
// many were dropped.
func (f *MetadataFilter) Apply(results []schema.SearchResult) ([]schema.SearchResult, int) {
	if f == nil || f.cfg == nil || !f.cfg.Enable || len(f.cfg.Rules) == 0 {
		return results, 0
	}
	include := f.cfg.Mode != "exclude"

	out := make([]schema.SearchResult, 0, len(results))
	for _, r := range results {
		if f.matches(r) == include {
			out = append(out, r)
		}
	}
	return out, len(results) - len(out)
}

func (f *MetadataFilter) matches(r schema.SearchResult) bool {
	for field, values := range f.cfg.Rules {
		raw, ok := r.Document.Metadata[field]
		if !ok {
			continue
		}
		have := fmt.Sprintf("%v", raw)
		for _, v := range values {
			if have == v {
				return true
			}
		}
	}
	return false
}
