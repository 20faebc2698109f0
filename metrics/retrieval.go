package metrics

import (
	"encoding/json"
	"time"

	"github.com/finchat/ragcore/common/logger"
)

// RetrievalMetrics captures the full trace of one retrieval run. It is
// logged as a single JSON line at the end of the run.
type RetrievalMetrics struct {
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`

	ProfileName      string   `json:"profile_name"`
	Intent           string   `json:"intent,omitempty"`
	IntentConfidence float64  `json:"intent_confidence,omitempty"`
	RetrieversUsed   []string `json:"retrievers_used"`

	SubQueriesCount int `json:"sub_queries_count,omitempty"`

	RetrieverMetrics map[string]RetrieverStats `json:"retriever_metrics"`
	TotalRetrieved   int                       `json:"total_retrieved"`

	FusionMethod      string `json:"fusion_method"`
	FusionResultCount int    `json:"fusion_result_count"`
	FusionLatencyMs   int64  `json:"fusion_latency_ms,omitempty"`

	FilteredOut int `json:"filtered_out,omitempty"`

	RerankEnabled     bool  `json:"rerank_enabled"`
	RerankLatencyMs   int64 `json:"rerank_latency_ms,omitempty"`
	RerankResultCount int   `json:"rerank_result_count,omitempty"`

	CRAGEnabled bool    `json:"crag_enabled"`
	CRAGVerdict string  `json:"crag_verdict,omitempty"`
	CRAGScore   float64 `json:"crag_score,omitempty"`
	CRAGDepth   int     `json:"crag_depth,omitempty"`

	GatingDecisions []string `json:"gating_decisions,omitempty"`

	TotalLatencyMs int64  `json:"total_latency_ms"`
	Success        bool   `json:"success"`
	ErrorMsg       string `json:"error_msg,omitempty"`
}

// RetrieverStats holds per-retriever stats for one run.
type RetrieverStats struct {
	Type        string  `json:"type"`
	LatencyMs   int64   `json:"latency_ms"`
	ResultCount int     `json:"result_count"`
	AvgScore    float64 `json:"avg_score"`
	TopScore    float64 `json:"top_score"`
}

func NewRetrievalMetrics() *RetrievalMetrics {
	return &RetrievalMetrics{
		Timestamp:        time.Now(),
		RetrieverMetrics: make(map[string]RetrieverStats),
		GatingDecisions:  make([]string, 0),
	}
}

// Log emits the metrics as one JSON log line.
func (m *RetrievalMetrics) Log() {
	if data, err := json.Marshal(m); err == nil {
		logger.Infof("[RAG_METRICS] %s", string(data))
	}
}

// AddRetrieverStats merges stats for a retriever type across fan-out calls.
func (m *RetrievalMetrics) AddRetrieverStats(stats RetrieverStats) {
	if m.RetrieverMetrics == nil {
		m.RetrieverMetrics = make(map[string]RetrieverStats)
	}
	key := stats.Type
	if existing, ok := m.RetrieverMetrics[key]; ok {
		existing.LatencyMs = (existing.LatencyMs + stats.LatencyMs) / 2
		existing.ResultCount += stats.ResultCount
		if stats.TopScore > existing.TopScore {
			existing.TopScore = stats.TopScore
		}
		existing.AvgScore = (existing.AvgScore + stats.AvgScore) / 2
		m.RetrieverMetrics[key] = existing
	} else {
		m.RetrieverMetrics[key] = stats
	}
}

// AddGatingDecision records a stage gate decision.
func (m *RetrievalMetrics) AddGatingDecision(decision string) {
	m.GatingDecisions = append(m.GatingDecisions, decision)
}

// RecordIntentMatch records the classified intent driving this run.
func (m *RetrievalMetrics) RecordIntentMatch(intent string, confidence float64) {
	m.Intent = intent
	m.IntentConfidence = confidence
}

// RecordFusion records fusion outcome.
func (m *RetrievalMetrics) RecordFusion(method string, resultCount int, latencyMs int64) {
	m.FusionMethod = method
	m.FusionResultCount = resultCount
	m.FusionLatencyMs = latencyMs
}
