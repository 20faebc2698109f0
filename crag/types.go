package crag

import (
	"context"

	"github.com/finchat/ragcore/schema"
)

// Verdict classifies how well the retrieved context supports the query.
type Verdict int

const (
	// VerdictGood accepts the retrieved set as-is.
	VerdictGood Verdict = iota
	// VerdictAmbiguous triggers one corrective retrieval round with a
	// reformulated query.
	VerdictAmbiguous
	// VerdictBad discards the retrieved set entirely.
	VerdictBad
)

// String returns the string representation of Verdict
func (v Verdict) String() string {
	switch v {
	case VerdictGood:
		return "good"
	case VerdictAmbiguous:
		return "ambiguous"
	case VerdictBad:
		return "bad"
	default:
		return "unknown"
	}
}

// ParseVerdict maps model output labels onto verdicts. Unknown labels are
// treated as good so a confused evaluator never blocks retrieval.
func ParseVerdict(label string) Verdict {
	switch label {
	case "good", "correct", "relevant":
		return VerdictGood
	case "ambiguous", "partial":
		return VerdictAmbiguous
	case "bad", "incorrect", "irrelevant":
		return VerdictBad
	default:
		return VerdictGood
	}
}

// Evaluation is the outcome of judging a retrieved set against the query.
type Evaluation struct {
	Verdict Verdict
	Score   float64
	// Reasoning is the evaluator's stated rationale, kept for logging.
	Reasoning string
	// ReformulatedQuery drives the corrective round on an ambiguous
	// verdict. Empty means reuse the original query.
	ReformulatedQuery string
}

// Evaluator judges whether retrieved results actually answer the query.
type Evaluator interface {
	Evaluate(ctx context.Context, query string, results []schema.SearchResult) (Evaluation, error)
}
