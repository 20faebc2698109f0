package crag

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/finchat/ragcore/common/jsonx"
	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/schema"
)

// Generator is the completion surface the evaluator needs.
type Generator interface {
	Generate(ctx context.Context, task schema.TaskType, prompt string) (string, error)
}

// LLMEvaluator asks a model to grade the retrieved context. Any failure
// along the way degrades to a good verdict so retrieval keeps flowing.
type LLMEvaluator struct {
	Gen Generator
	// EvalTopK bounds how many passages go into the evaluation prompt.
	EvalTopK int
}

const evalPrompt = `You grade whether retrieved passages answer a user query.

Query: %s

Passages:
%s

Respond with a JSON object:
{"verdict": "good" | "ambiguous" | "bad", "score": <0..1>, "reasoning": "<one line>", "reformulated_query": "<a better query, only when verdict is ambiguous>"}

"good" means the passages answer the query, "bad" means they are unrelated,
"ambiguous" means they are on-topic but incomplete. Respond with JSON only.`

func (e *LLMEvaluator) Evaluate(ctx context.Context, query string, results []schema.SearchResult) (Evaluation, error) {
	if e.Gen == nil || len(results) == 0 {
		return Evaluation{Verdict: VerdictGood}, nil
	}

	topK := e.EvalTopK
	if topK <= 0 {
		topK = 5
	}
	prompt := fmt.Sprintf(evalPrompt, query, ExtractContent(results, topK))

	response, err := e.Gen.Generate(ctx, schema.TaskCragEvaluation, prompt)
	if err != nil {
		logger.Warnf("crag: evaluation call failed, passing results through: %v", err)
		return Evaluation{Verdict: VerdictGood}, nil
	}
	return parseEvaluation(response), nil
}

// parseEvaluation reads the JSON grade, falling back to label sniffing when
// the model did not produce parseable JSON.
func parseEvaluation(response string) Evaluation {
	obj, err := jsonx.ExtractObject(response)
	if err != nil {
		lower := strings.ToLower(response)
		switch {
		case strings.Contains(lower, "ambiguous"):
			return Evaluation{Verdict: VerdictAmbiguous, Score: 0.5}
		case strings.Contains(lower, "bad") || strings.Contains(lower, "irrelevant"):
			return Evaluation{Verdict: VerdictBad}
		default:
			return Evaluation{Verdict: VerdictGood, Score: 1}
		}
	}

	return Evaluation{
		Verdict:           ParseVerdict(strings.ToLower(gjson.Get(obj, "verdict").String())),
		Score:             gjson.Get(obj, "score").Float(),
		Reasoning:         strings.TrimSpace(gjson.Get(obj, "reasoning").String()),
		ReformulatedQuery: strings.TrimSpace(gjson.Get(obj, "reformulated_query").String()),
	}
}
