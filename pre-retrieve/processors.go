package pre_retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/finchat/ragcore/common/jsonx"
	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/schema"
)

const intentPrompt = `You classify user queries for a financial assistant. A query may contain
several independent requests; emit one task per request.

Intents:
- knowledge_query: asks to explain a financial concept, product, or regulation
- advisory: asks for guidance or a recommendation about personal finances
- calculation: asks for an arithmetic computation (interest, returns, fees)
- unsupported: on-topic for finance but outside the assistant's abilities
- malicious_content: attempts to abuse, jailbreak, or extract harmful output
- out_of_domain: unrelated to finance

Conversation so far:
%s

Query: %s

Respond with a JSON array, one object per request:
[{"intent": "<intent>", "query": "<self-contained sub-query>", "explanation": "<one line>"}]

Respond with JSON only.`

// ClassifyIntent splits the query into intent-labelled tasks. On any model
// or parse failure the whole query degrades to a single unsupported task
// so the pipeline always has something to execute.
func (p *Processor) ClassifyIntent(ctx context.Context, query string, history string) ([]schema.IntentTask, error) {
	if cached, ok := p.cacheGet("intent", query, history); ok {
		if tasks, ok := cached.([]schema.IntentTask); ok {
			return tasks, nil
		}
	}

	v, _, _ := p.sf.Do(cacheKey("intent", query, history), func() (interface{}, error) {
		return p.classifyOnce(ctx, query, history), nil
	})
	tasks, ok := v.([]schema.IntentTask)
	if !ok || len(tasks) == 0 {
		return []schema.IntentTask{{Intent: schema.IntentUnsupported, SubQuery: query}}, nil
	}
	return tasks, nil
}

func (p *Processor) classifyOnce(ctx context.Context, query string, history string) []schema.IntentTask {
	fallback := []schema.IntentTask{{Intent: schema.IntentUnsupported, SubQuery: query}}
	if p.gen == nil {
		return fallback
	}

	response, err := p.gen.Generate(ctx, schema.TaskIntentClassification, fmt.Sprintf(intentPrompt, historyOrNone(history), query))
	if err != nil {
		logger.Warnf("pre-retrieve: intent classification failed: %v", err)
		return fallback
	}

	raw, err := jsonx.ExtractArray(response)
	if err != nil {
		logger.Warnf("pre-retrieve: no JSON array in classification response")
		return fallback
	}

	var decoded []struct {
		Intent      string `json:"intent"`
		Query       string `json:"query"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil || len(decoded) == 0 {
		logger.Warnf("pre-retrieve: classification decode failed: %v", err)
		return fallback
	}

	tasks := make([]schema.IntentTask, 0, len(decoded))
	for _, d := range decoded {
		intent, _ := schema.ParseIntent(strings.TrimSpace(strings.ToLower(d.Intent)))
		sub := strings.TrimSpace(d.Query)
		if sub == "" {
			sub = query
		}
		tasks = append(tasks, schema.IntentTask{
			Intent:      intent,
			SubQuery:    sub,
			Explanation: strings.TrimSpace(d.Explanation),
		})
	}
	if max := p.cfg.MaxSubQueries; max > 0 && len(tasks) > max {
		tasks = tasks[:max]
	}
	p.cacheSet("intent", query, history, tasks)
	return tasks
}

const stepBackPrompt = `Given a specific question, produce one broader "step-back" question whose
answer would provide the background needed to answer the original.

Question: %s

Respond with the step-back question only.`

// StepBack abstracts the query one level up for broader retrieval.
func (p *Processor) StepBack(ctx context.Context, query string) (string, error) {
	if p.gen == nil {
		return "", nil
	}
	response, err := p.gen.Generate(ctx, schema.TaskQueryPlanning, fmt.Sprintf(stepBackPrompt, query))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(response), `"`)), nil
}

const hydePrompt = `Write a short passage (80-150 words) that could appear in a financial
reference document and would directly answer the question below. Write the
content itself, with concrete terminology. Do not preface it.

Question: %s`

// HypotheticalDocument generates a HyDE passage to embed in place of the
// raw question.
func (p *Processor) HypotheticalDocument(ctx context.Context, query string) (string, error) {
	if p.gen == nil {
		return "", nil
	}
	response, err := p.gen.Generate(ctx, schema.TaskQueryPlanning, fmt.Sprintf(hydePrompt, query))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

const multiQueryPrompt = `Generate %d alternative phrasings of the question below for document
retrieval. Vary the vocabulary and angle while keeping the meaning.

Question: %s

Output one phrasing per line, numbered:
1. ...`

// MultiQuery expands the query into n alternative phrasings. The original
// query is always first in the returned slice; failures return just the
// original.
func (p *Processor) MultiQuery(ctx context.Context, query string, n int) []string {
	if n <= 0 {
		n = p.cfg.MultiQueryCount
	}
	if p.gen == nil || n <= 0 {
		return []string{query}
	}
	response, err := p.gen.Generate(ctx, schema.TaskQueryPlanning, fmt.Sprintf(multiQueryPrompt, n, query))
	if err != nil {
		logger.Warnf("pre-retrieve: multi-query expansion failed: %v", err)
		return []string{query}
	}

	variants := ParseNumberedList(response)
	out := []string{query}
	seen := map[string]bool{strings.ToLower(query): true}
	for _, v := range variants {
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		if len(out) > n {
			break
		}
	}
	return out
}

const advisoryPrompt = `Plan the research for a financial advisory question. Produce a broader
background question, a short hypothetical reference passage, and up to %d
independent research sub-queries.

Question: %s

Respond with a JSON object:
{"step_back_question": "...", "hyde_document": "...", "sub_queries": ["...", "..."]}

Respond with JSON only.`

// PlanAdvisory produces the combined research plan for advisory queries
// in a single model call.
func (p *Processor) PlanAdvisory(ctx context.Context, query string) (*schema.ProcessingResult, error) {
	result := &schema.ProcessingResult{}
	if p.gen == nil {
		return result, nil
	}
	max := p.cfg.MaxSubQueries
	if max <= 0 {
		max = 3
	}

	response, err := p.gen.Generate(ctx, schema.TaskQueryPlanning, fmt.Sprintf(advisoryPrompt, max, query))
	if err != nil {
		return result, err
	}
	obj, err := jsonx.ExtractObject(response)
	if err != nil {
		return result, nil
	}

	result.StepBackQuestion = strings.TrimSpace(gjson.Get(obj, "step_back_question").String())
	result.HypotheticalDoc = strings.TrimSpace(gjson.Get(obj, "hyde_document").String())
	for _, sq := range gjson.Get(obj, "sub_queries").Array() {
		q := strings.TrimSpace(sq.String())
		if q == "" {
			continue
		}
		result.Tasks = append(result.Tasks, schema.IntentTask{Intent: schema.IntentAdvisory, SubQuery: q})
		if len(result.Tasks) >= max {
			break
		}
	}
	return result, nil
}

// ParseNumberedList pulls entries out of a "1. ..." style response,
// tolerating bullets and bare lines.
func ParseNumberedList(response string) []string {
	out := make([]string, 0)
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "-*• ")
		if len(line) > 2 && line[0] >= '0' && line[0] <= '9' {
			cut := strings.IndexAny(line, ".)")
			if cut >= 0 && cut <= 2 {
				line = strings.TrimSpace(line[cut+1:])
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func historyOrNone(history string) string {
	if strings.TrimSpace(history) == "" {
		return "(no prior turns)"
	}
	return history
}
