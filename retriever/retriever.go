package retriever

import (
	"context"

	"github.com/finchat/ragcore/schema"
)

// Retriever defines a unified search interface across retrieval channels.
type Retriever interface {
	// Type returns the channel identifier ("vector", "bm25").
	Type() string
	// Search returns ranked results for the query. Failures are reported
	// as errors; callers degrade to an empty hit list.
	Search(ctx context.Context, query string, opts schema.SearchOptions) ([]schema.SearchResult, error)
}
