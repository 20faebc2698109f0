package gating

import (
	"fmt"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/metrics"
	"github.com/finchat/ragcore/schema"
)

// Decision says which expensive stages the current retrieval run may skip.
type Decision struct {
	// SkipRerank short-circuits past the cross-encoder.
	SkipRerank bool
	// SkipEvaluate short-circuits past the corrective evaluation.
	SkipEvaluate bool
	// ForceEvaluate overrides a disabled evaluator on weak retrievals.
	ForceEvaluate bool
	TopScore      float64
	Reason        string
}

// Gate decides, from the dense top score, whether the reranker and the
// corrective evaluator are worth their latency on this run. High-confidence
// retrievals skip both; weak ones force evaluation.
type Gate struct {
	cfg *config.GateConfig
}

func NewGate(cfg *config.GateConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Evaluate inspects the fused results and produces a decision.
func (g *Gate) Evaluate(results []schema.SearchResult, m *metrics.RetrievalMetrics) Decision {
	if g == nil || g.cfg == nil || !g.cfg.Enable {
		return Decision{Reason: "gating_disabled"}
	}
	if len(results) == 0 {
		return Decision{Reason: "no_results"}
	}

	topScore := topDenseScore(results)
	decision := Decision{TopScore: topScore}

	switch {
	case g.cfg.HighScore > 0 && topScore >= g.cfg.HighScore:
		decision.SkipRerank = true
		decision.SkipEvaluate = true
		decision.Reason = fmt.Sprintf("skip_stages:score=%.4f>=high=%.4f", topScore, g.cfg.HighScore)
	case g.cfg.LowScore > 0 && topScore < g.cfg.LowScore:
		decision.ForceEvaluate = true
		decision.Reason = fmt.Sprintf("force_evaluate:score=%.4f<low=%.4f", topScore, g.cfg.LowScore)
	default:
		decision.Reason = fmt.Sprintf("neutral:score=%.4f", topScore)
	}

	if m != nil {
		m.AddGatingDecision(decision.Reason)
	}
	metrics.IncGating(label(decision))
	logger.Debugf("gating: %s", decision.Reason)
	return decision
}

func label(d Decision) string {
	switch {
	case d.SkipRerank:
		return "skip"
	case d.ForceEvaluate:
		return "force_evaluate"
	default:
		return "neutral"
	}
}

// topDenseScore prefers the dense channel's confidence; hits that only the
// lexical channel produced do not count toward the gate.
func topDenseScore(results []schema.SearchResult) float64 {
	top := 0.0
	for _, r := range results {
		if r.DenseScore > top {
			top = r.DenseScore
		}
	}
	return top
}
