package retriever

import (
	"context"
	"fmt"

	"github.com/finchat/ragcore/embedding"
	"github.com/finchat/ragcore/schema"
	"github.com/finchat/ragcore/vectordb"
)

// VectorRetriever is the dense retrieval channel: embed the query, then
// run an ANN search against the vector store. Results carry their dense
// rank so downstream fusion can break ties on it.
type VectorRetriever struct {
	Embedder embedding.Provider
	Store    vectordb.Store
}

func (r *VectorRetriever) Type() string { return "vector" }

func (r *VectorRetriever) Search(ctx context.Context, query string, opts schema.SearchOptions) ([]schema.SearchResult, error) {
	if r.Embedder == nil || r.Store == nil {
		return []schema.SearchResult{}, nil
	}
	vec, err := r.Embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector retriever: embed: %w", err)
	}
	results, err := r.Store.Search(ctx, vec, opts)
	if err != nil {
		return nil, fmt.Errorf("vector retriever: search: %w", err)
	}
	for i := range results {
		results[i].DenseRank = i
	}
	return results, nil
}
