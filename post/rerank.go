package post

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/finchat/ragcore/common/httpx"
	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

// Reranker reorders candidates, typically using an external cross-encoder service.
type Reranker interface {
	Rerank(ctx context.Context, query string, in []schema.SearchResult, topN int) ([]schema.SearchResult, error)
}

// NewReranker builds a reranker from config. A disabled or unknown config
// yields the pass-through reranker, which only truncates.
func NewReranker(cfg *config.RerankConfig, client *httpx.Client) Reranker {
	if cfg == nil || !cfg.Enable {
		return PassThroughReranker{}
	}
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	switch cfg.Provider {
	case "keyword":
		return &KeywordReranker{}
	default:
		return &ModelReranker{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
			Client:   client,
		}
	}
}

// PassThroughReranker keeps the fused order and truncates to topN.
type PassThroughReranker struct{}

func (PassThroughReranker) Rerank(_ context.Context, _ string, in []schema.SearchResult, topN int) ([]schema.SearchResult, error) {
	return truncate(in, topN), nil
}

// ModelReranker calls a dedicated cross-encoder service (BGE-reranker,
// Cohere rerank and compatible APIs). Any failure degrades to the fused
// order so retrieval never dies on the reranker.
type ModelReranker struct {
	Endpoint string
	Model    string
	APIKey   string
	Client   *httpx.Client
}

type modelRerankReq struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

type modelRerankResp struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (m *ModelReranker) Rerank(ctx context.Context, query string, in []schema.SearchResult, topN int) ([]schema.SearchResult, error) {
	if m.Endpoint == "" || len(in) == 0 {
		return truncate(in, topN), nil
	}

	documents := make([]string, len(in))
	for i, result := range in {
		documents[i] = result.Document.Content
	}
	bs, _ := json.Marshal(modelRerankReq{
		Query:     query,
		Documents: documents,
		Model:     m.Model,
		TopN:      topN,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(bs))
	if err != nil {
		logger.Warnf("rerank: build request: %v", err)
		return truncate(in, topN), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.APIKey)
	}
	// rerankers are shared across concurrent plans, never written here
	client := m.Client
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		logger.Warnf("rerank: request failed, keeping fused order: %v", err)
		return truncate(in, topN), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warnf("rerank: server returned %d, keeping fused order", resp.StatusCode)
		return truncate(in, topN), nil
	}

	var rr modelRerankResp
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil || len(rr.Results) == 0 {
		logger.Warnf("rerank: unusable response, keeping fused order: %v", err)
		return truncate(in, topN), nil
	}

	out := make([]schema.SearchResult, 0, len(rr.Results))
	for _, result := range rr.Results {
		if result.Index < 0 || result.Index >= len(in) {
			continue
		}
		hit := in[result.Index]
		hit.RerankScore = result.RelevanceScore
		hit.Score = result.RelevanceScore
		out = append(out, hit)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return truncate(out, topN), nil
}

// KeywordReranker scores documents by keyword overlap with the query.
// Serves as a local fallback when no cross-encoder service is deployed.
type KeywordReranker struct {
	MinKeywordLength int     // minimum word length to count as a keyword (default: 3)
	BaseScoreWeight  float64 // weight of the incoming fused score (default: 0.5)
}

func (k *KeywordReranker) Rerank(_ context.Context, query string, in []schema.SearchResult, topN int) ([]schema.SearchResult, error) {
	minLen := k.MinKeywordLength
	if minLen == 0 {
		minLen = 3
	}
	baseWeight := k.BaseScoreWeight
	if baseWeight == 0 {
		baseWeight = 0.5
	}

	keywords := make([]string, 0)
	for _, word := range strings.Fields(query) {
		if len(word) > minLen {
			keywords = append(keywords, strings.ToLower(word))
		}
	}

	scored := make([]schema.SearchResult, 0, len(in))
	for _, result := range in {
		text := strings.ToLower(result.Document.Content)
		score := result.Score * baseWeight
		for _, keyword := range keywords {
			if !strings.Contains(text, keyword) {
				continue
			}
			score += 0.1
			// early position bonus
			if pos := strings.Index(text, keyword); pos >= 0 && pos < len(text)/4 {
				score += 0.1
			}
			freq := 0.05 * float64(strings.Count(text, keyword))
			if freq > 0.2 {
				freq = 0.2
			}
			score += freq
		}
		result.RerankScore = score
		result.Score = score
		scored = append(scored, result)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return truncate(scored, topN), nil
}

// HTTPReranker posts an id/text candidate payload to a bespoke service.
// Request: {"query":"...","candidates":[{"id":"","text":"..."}],"top_n":30}
// Response: {"ranking":[{"id":"","score":0.9}]}
type HTTPReranker struct {
	Endpoint string
	Client   *httpx.Client
}

func NewHTTPReranker(endpoint string) *HTTPReranker { return &HTTPReranker{Endpoint: endpoint} }

type rerankReq struct {
	Query      string            `json:"query"`
	Candidates []rerankCandidate `json:"candidates"`
	TopN       int               `json:"top_n,omitempty"`
}
type rerankCandidate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}
type rerankResp struct {
	Ranking []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"ranking"`
}

func (h *HTTPReranker) Rerank(ctx context.Context, query string, in []schema.SearchResult, topN int) ([]schema.SearchResult, error) {
	if h.Endpoint == "" || len(in) == 0 {
		return truncate(in, topN), nil
	}
	req := rerankReq{Query: query, TopN: topN}
	idx := map[string]int{}
	req.Candidates = make([]rerankCandidate, 0, len(in))
	for i, c := range in {
		id := c.HitID()
		idx[id] = i
		req.Candidates = append(req.Candidates, rerankCandidate{ID: id, Text: c.Document.Content})
	}
	bs, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(bs))
	if err != nil {
		return truncate(in, topN), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	client := h.Client
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		logger.Warnf("rerank: request failed, keeping fused order: %v", err)
		return truncate(in, topN), nil
	}
	defer resp.Body.Close()
	var rr rerankResp
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil || len(rr.Ranking) == 0 {
		return truncate(in, topN), nil
	}
	out := make([]schema.SearchResult, 0, len(rr.Ranking))
	for _, r := range rr.Ranking {
		if i, ok := idx[r.ID]; ok {
			c := in[i]
			c.RerankScore = r.Score
			c.Score = r.Score
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return truncate(out, topN), nil
}

func truncate(in []schema.SearchResult, topN int) []schema.SearchResult {
	if topN > 0 && len(in) > topN {
		return append([]schema.SearchResult(nil), in[:topN]...)
	}
	return in
}
