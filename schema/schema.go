package schema

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/shopspring/decimal"
)

// Document is a unit of indexed knowledge.
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResult is a ranked hit flowing through the retrieval pipeline.
// Score carries the current ordering criterion for the stage that produced
// the result (raw channel score, fused score, or rerank score). The
// per-channel fields are preserved so later stages can inspect provenance.
type SearchResult struct {
	Document    Document `json:"document"`
	Score       float64  `json:"score"`
	DenseScore  float64  `json:"dense_score,omitempty"`
	SparseScore float64  `json:"sparse_score,omitempty"`
	FusedScore  float64  `json:"fused_score,omitempty"`
	RerankScore float64  `json:"rerank_score,omitempty"`
	// DenseRank is the 0-based rank within the dense channel list, -1 when
	// the hit did not appear there. Used as the fusion tie-breaker.
	DenseRank int `json:"-"`
}

// SearchOptions controls a single retriever call.
type SearchOptions struct {
	TopK      int
	Corpus    string
	Threshold float64
}

// HitID returns the stable join key for a result: the metadata id when
// present, otherwise a hash of the content.
func (r *SearchResult) HitID() string {
	if r.Document.ID != "" {
		return r.Document.ID
	}
	if r.Document.Metadata != nil {
		if id, ok := r.Document.Metadata["id"].(string); ok && id != "" {
			return id
		}
	}
	sum := sha1.Sum([]byte(r.Document.Content))
	return hex.EncodeToString(sum[:])
}

// Intent labels produced by the query processor.
type Intent string

const (
	IntentKnowledgeQuery   Intent = "knowledge_query"
	IntentAdvisory         Intent = "advisory"
	IntentCalculation      Intent = "calculation"
	IntentUnsupported      Intent = "unsupported"
	IntentMaliciousContent Intent = "malicious_content"
	IntentOutOfDomain      Intent = "out_of_domain"
)

// ParseIntent maps a raw classifier label to a known intent. Unknown labels
// map to IntentUnsupported so a misbehaving classifier can never introduce
// an unplanned branch.
func ParseIntent(label string) (Intent, bool) {
	switch Intent(label) {
	case IntentKnowledgeQuery, IntentAdvisory, IntentCalculation,
		IntentUnsupported, IntentMaliciousContent, IntentOutOfDomain:
		return Intent(label), true
	}
	return IntentUnsupported, false
}

// IntentTask is one classified unit of work for a user query.
type IntentTask struct {
	Intent      Intent `json:"intent"`
	SubQuery    string `json:"query"`
	Explanation string `json:"explanation"`
}

// ProcessingResult is the full output of the query processor for one
// request. StepBackQuestion and HypotheticalDoc are empty when the
// respective transform is disabled or failed.
type ProcessingResult struct {
	Tasks            []IntentTask `json:"tasks"`
	StepBackQuestion string       `json:"step_back_question,omitempty"`
	HypotheticalDoc  string       `json:"hypothetical_document,omitempty"`
}

// TaskType keys the generation router table.
type TaskType string

const (
	TaskIntentClassification TaskType = "intent_classification"
	TaskQueryPlanning        TaskType = "query_planning"
	TaskKnowledgeExplanation TaskType = "knowledge_explanation"
	TaskAdvisoryGeneration   TaskType = "advisory_generation"
	TaskCalcInterpretation   TaskType = "calc_interpretation"
	TaskAnswerFusion         TaskType = "answer_fusion"
	TaskOutputJudge          TaskType = "output_judge"
	TaskSummarization        TaskType = "summarization"
	TaskCragEvaluation       TaskType = "crag_evaluation"
)

// RetrievalConfig describes the retrieval step of one plan.
type RetrievalConfig struct {
	Query            string `json:"query"`
	TopK             int    `json:"top_k"`
	Corpus           string `json:"corpus,omitempty"`
	EnableMultiQuery bool   `json:"enable_multi_query"`
	MultiQueryCount  int    `json:"multi_query_count,omitempty"`
}

// CalculationConfig flags the calculation step; the expression itself is
// derived at execution time from the query.
type CalculationConfig struct {
	Needed bool `json:"needed"`
}

// GenerationConfig selects the generation route for a plan.
type GenerationConfig struct {
	Task TaskType `json:"task"`
}

// PipelinePlan is the executor's unit of work. A non-empty DirectResponse
// short-circuits everything else.
type PipelinePlan struct {
	Intent         Intent             `json:"intent"`
	DirectResponse string             `json:"direct_response,omitempty"`
	Query          string             `json:"query"`
	Retrieval      *RetrievalConfig   `json:"retrieval,omitempty"`
	Calculation    *CalculationConfig `json:"calculation,omitempty"`
	Generation     GenerationConfig   `json:"generation"`
}

// IsDirect reports whether the plan is a fast-path canned response.
func (p *PipelinePlan) IsDirect() bool { return p.DirectResponse != "" }

// ValidationResult is the outcome of input or output validation.
type ValidationResult struct {
	Valid            bool   `json:"valid"`
	Reason           string `json:"reason,omitempty"`
	CorrectedContent string `json:"corrected_content,omitempty"`
}

// CalculationResult is the outcome of one expression evaluation.
type CalculationResult struct {
	Success    bool            `json:"success"`
	Expression string          `json:"expression"`
	Value      decimal.Decimal `json:"value"`
	Steps      []string        `json:"steps,omitempty"`
}
