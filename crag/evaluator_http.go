package crag

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/finchat/ragcore/common/httpx"
	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/schema"
)

// HTTPEvaluator delegates grading to an external service.
// Request: {"query":"...","context":"..."}
// Response: {"score":0.85,"verdict":"good","reformulated_query":"..."}
type HTTPEvaluator struct {
	Endpoint string
	Client   *httpx.Client
	// EvalTopK bounds how many passages are sent for grading.
	EvalTopK int
}

type evalReq struct {
	Query   string `json:"query"`
	Context string `json:"context"`
}

type evalResp struct {
	Score             float64 `json:"score"`
	Verdict           string  `json:"verdict"`
	Reasoning         string  `json:"reasoning"`
	ReformulatedQuery string  `json:"reformulated_query"`
}

func (h *HTTPEvaluator) Evaluate(ctx context.Context, query string, results []schema.SearchResult) (Evaluation, error) {
	if h.Endpoint == "" || len(results) == 0 {
		return Evaluation{Verdict: VerdictGood}, nil
	}
	if h.Client == nil {
		h.Client = httpx.NewFromConfig(nil)
	}
	topK := h.EvalTopK
	if topK <= 0 {
		topK = 5
	}

	bs, _ := json.Marshal(evalReq{Query: query, Context: ExtractContent(results, topK)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(bs))
	if err != nil {
		return Evaluation{Verdict: VerdictGood}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		logger.Warnf("crag: http evaluation failed, passing results through: %v", err)
		return Evaluation{Verdict: VerdictGood}, nil
	}
	defer resp.Body.Close()

	var er evalResp
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		logger.Warnf("crag: http evaluation decode failed, passing results through: %v", err)
		return Evaluation{Verdict: VerdictGood}, nil
	}
	return Evaluation{
		Verdict:           ParseVerdict(strings.ToLower(er.Verdict)),
		Score:             er.Score,
		Reasoning:         strings.TrimSpace(er.Reasoning),
		ReformulatedQuery: strings.TrimSpace(er.ReformulatedQuery),
	}, nil
}
