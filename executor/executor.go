package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/finchat/ragcore/calc"
	"github.com/finchat/ragcore/common/jsonx"
	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/fusion"
	"github.com/finchat/ragcore/metrics"
	"github.com/finchat/ragcore/post"
	pre_retrieve "github.com/finchat/ragcore/pre-retrieve"
	"github.com/finchat/ragcore/retrieval"
	"github.com/finchat/ragcore/schema"
)

// Generator is the completion surface plan execution needs.
type Generator interface {
	Generate(ctx context.Context, task schema.TaskType, prompt string) (string, error)
}

const apologyMessage = "I wasn't able to put together an answer for that just now. Please try again."

const knowledgePrompt = `You are a financial assistant. Answer the question using the reference
passages below. Ground every claim in the passages; when they do not cover
the question, say so instead of guessing. Keep numbers and units exact.

Reference passages:
%s

Conversation so far:
%s

Question: %s`

const advisoryPrompt = `You are a financial assistant giving general educational guidance. Explain
the relevant considerations and trade-offs. Do not give individualized
buy/sell/hold instructions for specific securities, and do not promise
outcomes.

Reference passages (may be empty):
%s

Conversation so far:
%s

Question: %s`

const calcInterpretPrompt = `You are a financial assistant. A calculation was run for the user's
question. Explain the result in plain language, restating the inputs and
what the number means. If the calculation notes a failure, explain what
could not be computed and why.

Calculation:
%s

Conversation so far:
%s

Question: %s`

const calcExtractPrompt = `Extract the arithmetic expression needed to answer the question below.
Use only numbers and the operators + - * / ( ) ^. Resolve percentages to
decimals (5%% of 200 -> 200*0.05). Do not solve it yourself.

Question: %s

Respond with a JSON object:
{"expression": "<expression>", "reasoning_steps": ["<short step>", ...]}

Respond with JSON only.`

// Executor runs pipeline plans: direct responses immediately, advisory
// plans through research planning and sub-query fan-out, everything else
// through retrieval, optional calculation, and routed generation.
type Executor struct {
	gen       Generator
	processor *pre_retrieve.Processor
	retriever retrieval.Provider
	builder   *post.ContextBuilder
	engine    *calc.Engine
	fuser     *fusion.AnswerFuser
	cfg       *config.PipelineConfig
	pool      *ants.Pool
}

func New(
	gen Generator,
	processor *pre_retrieve.Processor,
	retriever retrieval.Provider,
	builder *post.ContextBuilder,
	engine *calc.Engine,
	cfg *config.PipelineConfig,
) (*Executor, error) {
	if cfg == nil {
		cfg = config.DefaultPipeline()
	}
	size := cfg.WorkerPoolSize
	if size <= 0 {
		size = 8
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("executor: worker pool: %w", err)
	}
	return &Executor{
		gen:       gen,
		processor: processor,
		retriever: retriever,
		builder:   builder,
		engine:    engine,
		fuser:     fusion.NewAnswerFuser(gen),
		cfg:       cfg,
		pool:      pool,
	}, nil
}

// Close releases the worker pool.
func (e *Executor) Close() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// ExecuteAll runs the plans concurrently on the worker pool and returns
// the answers that completed, in plan order, together with the reference
// context the survivors drew on. A failed plan drops out; the survivors
// still produce a response.
func (e *Executor) ExecuteAll(ctx context.Context, plans []schema.PipelinePlan, processing *schema.ProcessingResult, history string, m *metrics.RetrievalMetrics) ([]string, string) {
	if len(plans) == 0 {
		return nil, ""
	}
	if len(plans) == 1 {
		answer, contextBlock, err := e.Execute(ctx, plans[0], processing, history, m)
		if err != nil {
			logger.Warnf("executor: plan for intent %s failed: %v", plans[0].Intent, err)
			return nil, ""
		}
		return []string{answer}, contextBlock
	}

	answers := make([]string, len(plans))
	contexts := make([]string, len(plans))
	failed := make([]bool, len(plans))
	var wg sync.WaitGroup
	for i := range plans {
		wg.Add(1)
		idx := i
		run := func() {
			defer wg.Done()
			answer, contextBlock, err := e.Execute(ctx, plans[idx], processing, history, m)
			if err != nil {
				logger.Warnf("executor: plan for intent %s failed: %v", plans[idx].Intent, err)
				failed[idx] = true
				return
			}
			answers[idx] = answer
			contexts[idx] = contextBlock
		}
		if err := e.pool.Submit(run); err != nil {
			// pool exhausted or released, run inline
			run()
		}
	}
	wg.Wait()

	out := make([]string, 0, len(plans))
	ctxParts := make([]string, 0, len(plans))
	for i, a := range answers {
		if failed[i] {
			continue
		}
		out = append(out, a)
		if contexts[i] != "" {
			ctxParts = append(ctxParts, contexts[i])
		}
	}
	return out, strings.Join(ctxParts, "\n\n")
}

// Execute runs a single plan end to end. The second return value is the
// reference context the answer was generated from, so downstream
// validation can check the answer against it; direct responses carry no
// context.
func (e *Executor) Execute(ctx context.Context, plan schema.PipelinePlan, processing *schema.ProcessingResult, history string, m *metrics.RetrievalMetrics) (string, string, error) {
	if plan.IsDirect() {
		return plan.DirectResponse, "", nil
	}
	if plan.Intent == schema.IntentAdvisory && e.processor != nil {
		if answer, contextBlock, ok := e.executeAdvisory(ctx, plan, history, m); ok {
			return answer, contextBlock, nil
		}
	}
	return e.executeSingle(ctx, plan, processing, history, m)
}

// executeSingle is the straight-line pipeline: retrieve, optionally
// calculate, generate.
func (e *Executor) executeSingle(ctx context.Context, plan schema.PipelinePlan, processing *schema.ProcessingResult, history string, m *metrics.RetrievalMetrics) (string, string, error) {
	contextBlock := ""
	if plan.Retrieval != nil && e.retriever != nil {
		hits := e.retrieve(ctx, plan, processing, m)
		if e.builder != nil {
			contextBlock = e.builder.Build(hits)
		} else {
			contextBlock = joinContents(hits)
		}
	}

	if plan.Calculation != nil && plan.Calculation.Needed {
		calcBlock := e.calculate(ctx, plan.Query)
		if contextBlock != "" {
			contextBlock = contextBlock + "\n\n" + calcBlock
		} else {
			contextBlock = calcBlock
		}
	}

	answer, err := e.generate(ctx, plan, contextBlock, history)
	return answer, contextBlock, err
}

// executeAdvisory decomposes an advisory question into research
// sub-queries, runs one pipeline per sub-query on the worker pool, and
// fuses the surviving partial answers. Returns ok=false when planning
// fails or every sub-pipeline does, so the caller can fall back to the
// single pipeline.
func (e *Executor) executeAdvisory(ctx context.Context, plan schema.PipelinePlan, history string, m *metrics.RetrievalMetrics) (string, string, bool) {
	planned, err := e.processor.PlanAdvisory(ctx, plan.Query)
	if err != nil {
		logger.Warnf("executor: advisory planning failed: %v", err)
		return "", "", false
	}
	if planned == nil || len(planned.Tasks) == 0 {
		return "", "", false
	}

	subPlans := make([]schema.PipelinePlan, 0, len(planned.Tasks))
	for _, task := range planned.Tasks {
		sub := plan
		sub.Query = task.SubQuery
		if plan.Retrieval != nil {
			rc := *plan.Retrieval
			rc.Query = task.SubQuery
			sub.Retrieval = &rc
		}
		subPlans = append(subPlans, sub)
	}

	answers := make([]string, len(subPlans))
	contexts := make([]string, len(subPlans))
	failed := make([]bool, len(subPlans))
	var wg sync.WaitGroup
	for i := range subPlans {
		wg.Add(1)
		idx := i
		run := func() {
			defer wg.Done()
			answer, contextBlock, err := e.executeSingle(ctx, subPlans[idx], planned, history, m)
			if err != nil {
				logger.Warnf("executor: advisory sub-query %q failed: %v", subPlans[idx].Query, err)
				failed[idx] = true
				return
			}
			answers[idx] = answer
			contexts[idx] = contextBlock
		}
		if err := e.pool.Submit(run); err != nil {
			run()
		}
	}
	wg.Wait()

	survivors := make([]string, 0, len(subPlans))
	ctxParts := make([]string, 0, len(subPlans))
	for i, a := range answers {
		if failed[i] {
			continue
		}
		survivors = append(survivors, a)
		if contexts[i] != "" {
			ctxParts = append(ctxParts, contexts[i])
		}
	}
	if len(survivors) == 0 {
		return "", "", false
	}

	fused, err := e.fuser.Fuse(ctx, plan.Query, survivors)
	if err != nil {
		// Fuse falls back to the first survivor on a model failure
		logger.Warnf("executor: advisory fusion degraded: %v", err)
	}
	return fused, strings.Join(ctxParts, "\n\n"), true
}

// retrieve fans the plan's query variants out through the retrieval
// pipeline. Variants beyond the original come from the prepared rewrites
// and multi-query expansion.
func (e *Executor) retrieve(ctx context.Context, plan schema.PipelinePlan, processing *schema.ProcessingResult, m *metrics.RetrievalMetrics) []schema.SearchResult {
	rc := plan.Retrieval
	query := strings.TrimSpace(rc.Query)
	if query == "" {
		query = strings.TrimSpace(plan.Query)
	}
	if query == "" {
		return nil
	}

	variants := []string{query}
	if processing != nil {
		if processing.StepBackQuestion != "" {
			variants = append(variants, processing.StepBackQuestion)
		}
		if processing.HypotheticalDoc != "" {
			variants = append(variants, processing.HypotheticalDoc)
		}
	}
	if rc.EnableMultiQuery && e.processor != nil {
		variants = append(variants, e.processor.MultiQuery(ctx, query, rc.MultiQueryCount)...)
	}
	variants = dedupeQueries(variants)

	profile := e.profileFor(plan)
	return e.retriever.Retrieve(ctx, variants, profile, m)
}

// profileFor resolves the retrieval profile for the plan's intent and
// overlays the plan's own widths.
func (e *Executor) profileFor(plan schema.PipelinePlan) config.RetrievalProfile {
	profile, ok := e.cfg.ProfileForIntent(string(plan.Intent))
	if !ok {
		profile = config.RetrievalProfile{Name: string(plan.Intent)}
	}
	if plan.Retrieval.TopK > 0 {
		profile.TopK = plan.Retrieval.TopK
	}
	if plan.Retrieval.Corpus != "" {
		profile.Corpus = plan.Retrieval.Corpus
	}
	return profile
}

// calculate extracts an expression from the query and evaluates it. A
// failure becomes a note in the generation context so the model can still
// respond usefully.
func (e *Executor) calculate(ctx context.Context, query string) string {
	if e.gen == nil || e.engine == nil {
		return "Calculation unavailable."
	}

	response, err := e.gen.Generate(ctx, schema.TaskQueryPlanning, fmt.Sprintf(calcExtractPrompt, query))
	if err != nil {
		logger.Warnf("executor: expression extraction failed: %v", err)
		return "Calculation failed: the expression could not be determined from the question."
	}

	var extracted struct {
		Expression     string   `json:"expression"`
		ReasoningSteps []string `json:"reasoning_steps"`
	}
	if err := jsonx.DecodeObject(response, &extracted); err != nil || strings.TrimSpace(extracted.Expression) == "" {
		logger.Warnf("executor: no expression in extraction response")
		return "Calculation failed: the expression could not be determined from the question."
	}

	result, err := e.engine.Evaluate(extracted.Expression)
	if err != nil {
		logger.Warnf("executor: evaluation of %q failed: %v", extracted.Expression, err)
		return fmt.Sprintf("Calculation failed for expression %q: %v", extracted.Expression, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Expression: %s\nResult: %s", result.Expression, result.Value.String())
	if len(extracted.ReasoningSteps) > 0 {
		b.WriteString("\nSteps:")
		for _, step := range extracted.ReasoningSteps {
			b.WriteString("\n- ")
			b.WriteString(step)
		}
	}
	return b.String()
}

// generate routes the plan to its generation task. On failure the caller
// gets the apology text plus the error so it can decide whether to keep it.
func (e *Executor) generate(ctx context.Context, plan schema.PipelinePlan, contextBlock, history string) (string, error) {
	if e.gen == nil {
		return apologyMessage, fmt.Errorf("executor: no generator configured")
	}
	if contextBlock == "" {
		contextBlock = "(no reference material found)"
	}
	if history == "" {
		history = "(no prior turns)"
	}

	var prompt string
	switch plan.Generation.Task {
	case schema.TaskAdvisoryGeneration:
		prompt = fmt.Sprintf(advisoryPrompt, contextBlock, history, plan.Query)
	case schema.TaskCalcInterpretation:
		prompt = fmt.Sprintf(calcInterpretPrompt, contextBlock, history, plan.Query)
	default:
		prompt = fmt.Sprintf(knowledgePrompt, contextBlock, history, plan.Query)
	}

	answer, err := e.gen.Generate(ctx, plan.Generation.Task, prompt)
	if err != nil {
		logger.Warnf("executor: generation failed for intent %s: %v", plan.Intent, err)
		return apologyMessage, err
	}
	return strings.TrimSpace(answer), nil
}

func dedupeQueries(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		trimmed := strings.TrimSpace(q)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func joinContents(results []schema.SearchResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		content := strings.TrimSpace(r.Document.Content)
		if content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, content))
	}
	return strings.Join(parts, "\n\n")
}

// ApologyMessage is the degraded-mode generation response.
func ApologyMessage() string { return apologyMessage }
