package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/finchat/ragcore/calc"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/fusion"
	"github.com/finchat/ragcore/metrics"
	"github.com/finchat/ragcore/post"
	pre_retrieve "github.com/finchat/ragcore/pre-retrieve"
	"github.com/finchat/ragcore/retrieval"
	"github.com/finchat/ragcore/schema"
)

type stubGenerator struct {
	byTask map[schema.TaskType]string
	err    error

	mu      sync.Mutex
	calls   int
	tasks   []schema.TaskType
	prompts []string
}

func (s *stubGenerator) Generate(_ context.Context, task schema.TaskType, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.tasks = append(s.tasks, task)
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if r, ok := s.byTask[task]; ok {
		return r, nil
	}
	return "generated answer", nil
}

func (s *stubGenerator) taskCalls(task schema.TaskType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t == task {
			n++
		}
	}
	return n
}

type stubRetrieval struct {
	hits []schema.SearchResult

	mu      sync.Mutex
	queries [][]string
}

func (s *stubRetrieval) Retrieve(_ context.Context, queries []string, _ config.RetrievalProfile, _ *metrics.RetrievalMetrics) []schema.SearchResult {
	s.mu.Lock()
	s.queries = append(s.queries, queries)
	s.mu.Unlock()
	return s.hits
}

func (s *stubRetrieval) SetFusionStrategy(fusion.Strategy) {}

func newTestExecutor(t *testing.T, gen Generator, ret retrieval.Provider) *Executor {
	t.Helper()
	e, err := New(gen, nil, ret, post.NewContextBuilder(3000), nil, config.DefaultPipeline())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestExecuteDirectResponse(t *testing.T) {
	gen := &stubGenerator{}
	e := newTestExecutor(t, gen, nil)

	plan := schema.PipelinePlan{Intent: schema.IntentMaliciousContent, DirectResponse: "canned refusal"}
	got, gotCtx, err := e.Execute(context.Background(), plan, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "canned refusal" {
		t.Errorf("got %q", got)
	}
	if gotCtx != "" {
		t.Errorf("direct plan should carry no context, got %q", gotCtx)
	}
	if gen.calls != 0 {
		t.Errorf("direct plan made %d model calls", gen.calls)
	}
}

func TestExecuteKnowledgeFlow(t *testing.T) {
	gen := &stubGenerator{byTask: map[schema.TaskType]string{
		schema.TaskKnowledgeExplanation: "  A bond pays coupons.  ",
	}}
	ret := &stubRetrieval{hits: []schema.SearchResult{
		{Document: schema.Document{ID: "d1", Content: "bonds pay fixed coupons"}},
	}}
	e := newTestExecutor(t, gen, ret)

	plan := schema.PipelinePlan{
		Intent:     schema.IntentKnowledgeQuery,
		Query:      "what is a bond",
		Retrieval:  &schema.RetrievalConfig{Query: "what is a bond"},
		Generation: schema.GenerationConfig{Task: schema.TaskKnowledgeExplanation},
	}
	got, gotCtx, err := e.Execute(context.Background(), plan, nil, "Q1: hi\nA1: hello", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "A bond pays coupons." {
		t.Errorf("answer should be trimmed, got %q", got)
	}
	if !strings.Contains(gotCtx, "bonds pay fixed coupons") {
		t.Errorf("returned context missing the retrieved passage:\n%s", gotCtx)
	}

	prompt := gen.prompts[len(gen.prompts)-1]
	for _, want := range []string{"bonds pay fixed coupons", "what is a bond", "Q1: hi"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestExecuteRetrievalVariants(t *testing.T) {
	gen := &stubGenerator{}
	ret := &stubRetrieval{}
	e := newTestExecutor(t, gen, ret)

	plan := schema.PipelinePlan{
		Intent:     schema.IntentKnowledgeQuery,
		Query:      "what is a bond",
		Retrieval:  &schema.RetrievalConfig{Query: "what is a bond"},
		Generation: schema.GenerationConfig{Task: schema.TaskKnowledgeExplanation},
	}
	processing := &schema.ProcessingResult{
		StepBackQuestion: "how do fixed income securities work",
		HypotheticalDoc:  "A bond is a debt security that...",
	}
	if _, _, err := e.Execute(context.Background(), plan, processing, "", nil); err != nil {
		t.Fatal(err)
	}

	if len(ret.queries) != 1 {
		t.Fatalf("expected one retrieval call, got %d", len(ret.queries))
	}
	variants := ret.queries[0]
	if len(variants) != 3 {
		t.Fatalf("expected original plus two rewrites, got %v", variants)
	}
	if variants[0] != "what is a bond" {
		t.Errorf("original query must lead, got %v", variants)
	}
}

func TestExecuteCalculationFlow(t *testing.T) {
	gen := &stubGenerator{byTask: map[schema.TaskType]string{
		schema.TaskQueryPlanning:      `{"expression": "200*0.05", "reasoning_steps": ["5% of 200"]}`,
		schema.TaskCalcInterpretation: "5% of 200 is 10.",
	}}
	e, err := New(gen, nil, nil, nil, calc.NewEngine(), config.DefaultPipeline())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	plan := schema.PipelinePlan{
		Intent:      schema.IntentCalculation,
		Query:       "what is 5% of 200",
		Calculation: &schema.CalculationConfig{Needed: true},
		Generation:  schema.GenerationConfig{Task: schema.TaskCalcInterpretation},
	}
	got, gotCtx, err := e.Execute(context.Background(), plan, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "5% of 200 is 10." {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(gotCtx, "Expression: 200*0.05") {
		t.Errorf("returned context missing the calculation block:\n%s", gotCtx)
	}

	interpretPrompt := gen.prompts[len(gen.prompts)-1]
	for _, want := range []string{"Expression: 200*0.05", "Result: 10", "5% of 200"} {
		if !strings.Contains(interpretPrompt, want) {
			t.Errorf("interpretation prompt missing %q:\n%s", want, interpretPrompt)
		}
	}
}

func TestExecuteCalculationExtractionFailure(t *testing.T) {
	gen := &stubGenerator{byTask: map[schema.TaskType]string{
		schema.TaskQueryPlanning:      "I cannot find an expression here.",
		schema.TaskCalcInterpretation: "done",
	}}
	e, err := New(gen, nil, nil, nil, calc.NewEngine(), config.DefaultPipeline())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	plan := schema.PipelinePlan{
		Intent:      schema.IntentCalculation,
		Query:       "compute something vague",
		Calculation: &schema.CalculationConfig{Needed: true},
		Generation:  schema.GenerationConfig{Task: schema.TaskCalcInterpretation},
	}
	if _, _, err := e.Execute(context.Background(), plan, nil, "", nil); err != nil {
		t.Fatal(err)
	}

	interpretPrompt := gen.prompts[len(gen.prompts)-1]
	if !strings.Contains(interpretPrompt, "Calculation failed") {
		t.Errorf("failure note missing from prompt:\n%s", interpretPrompt)
	}
}

func TestExecuteGenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("backend down")}
	e := newTestExecutor(t, gen, nil)

	plan := schema.PipelinePlan{
		Intent:     schema.IntentKnowledgeQuery,
		Query:      "q",
		Generation: schema.GenerationConfig{Task: schema.TaskKnowledgeExplanation},
	}
	got, _, err := e.Execute(context.Background(), plan, nil, "", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got != ApologyMessage() {
		t.Errorf("got %q, want apology", got)
	}
}

func TestExecuteAllDropsFailedPlans(t *testing.T) {
	gen := &stubGenerator{err: errors.New("backend down")}
	e := newTestExecutor(t, gen, nil)

	plans := []schema.PipelinePlan{
		{Intent: schema.IntentOutOfDomain, DirectResponse: "off topic"},
		{Intent: schema.IntentKnowledgeQuery, Query: "q", Generation: schema.GenerationConfig{Task: schema.TaskKnowledgeExplanation}},
	}
	answers, _ := e.ExecuteAll(context.Background(), plans, nil, "", nil)
	if len(answers) != 1 || answers[0] != "off topic" {
		t.Errorf("got %v, want just the direct response", answers)
	}
}

func TestExecuteAllPreservesPlanOrder(t *testing.T) {
	gen := &stubGenerator{}
	e := newTestExecutor(t, gen, nil)

	plans := []schema.PipelinePlan{
		{Intent: schema.IntentOutOfDomain, DirectResponse: "first"},
		{Intent: schema.IntentUnsupported, DirectResponse: "second"},
		{Intent: schema.IntentMaliciousContent, DirectResponse: "third"},
	}
	answers, _ := e.ExecuteAll(context.Background(), plans, nil, "", nil)
	if len(answers) != 3 || answers[0] != "first" || answers[1] != "second" || answers[2] != "third" {
		t.Errorf("got %v", answers)
	}
}

func TestExecuteAdvisoryFansOutSubQueries(t *testing.T) {
	gen := &stubGenerator{byTask: map[schema.TaskType]string{
		schema.TaskQueryPlanning:      `{"sub_queries": ["index fund fees", "index fund diversification"]}`,
		schema.TaskAdvisoryGeneration: "partial finding",
		schema.TaskAnswerFusion:       "merged advisory answer",
	}}
	ret := &stubRetrieval{hits: []schema.SearchResult{
		{Document: schema.Document{ID: "d1", Content: "expense ratios compound over decades"}},
	}}
	proc := pre_retrieve.NewProcessor(gen, config.DefaultPipeline())
	e, err := New(gen, proc, ret, post.NewContextBuilder(3000), nil, config.DefaultPipeline())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	plan := schema.PipelinePlan{
		Intent:     schema.IntentAdvisory,
		Query:      "should I move my savings into index funds",
		Retrieval:  &schema.RetrievalConfig{Query: "should I move my savings into index funds"},
		Generation: schema.GenerationConfig{Task: schema.TaskAdvisoryGeneration},
	}
	got, gotCtx, err := e.Execute(context.Background(), plan, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "merged advisory answer" {
		t.Errorf("got %q, want the fused answer", got)
	}
	if !strings.Contains(gotCtx, "expense ratios compound over decades") {
		t.Errorf("returned context missing sub-query passages:\n%s", gotCtx)
	}

	if n := gen.taskCalls(schema.TaskQueryPlanning); n != 1 {
		t.Errorf("expected one planning call, got %d", n)
	}
	if n := gen.taskCalls(schema.TaskAdvisoryGeneration); n != 2 {
		t.Errorf("expected one generation per sub-query, got %d", n)
	}
	if n := gen.taskCalls(schema.TaskAnswerFusion); n != 1 {
		t.Errorf("expected one fusion call, got %d", n)
	}

	ret.mu.Lock()
	retrievals := len(ret.queries)
	leads := make([]string, 0, retrievals)
	for _, variants := range ret.queries {
		leads = append(leads, variants[0])
	}
	ret.mu.Unlock()
	if retrievals != 2 {
		t.Fatalf("expected one retrieval per sub-query, got %d (%v)", retrievals, leads)
	}
	seen := map[string]bool{}
	for _, lead := range leads {
		seen[lead] = true
	}
	if !seen["index fund fees"] || !seen["index fund diversification"] {
		t.Errorf("sub-queries should drive retrieval, got %v", leads)
	}
}

func TestExecuteAdvisoryFallsBackWithoutSubQueries(t *testing.T) {
	gen := &stubGenerator{byTask: map[schema.TaskType]string{
		schema.TaskQueryPlanning:      "no plan came to mind",
		schema.TaskAdvisoryGeneration: "single advisory answer",
	}}
	proc := pre_retrieve.NewProcessor(gen, config.DefaultPipeline())
	e, err := New(gen, proc, nil, nil, nil, config.DefaultPipeline())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	plan := schema.PipelinePlan{
		Intent:     schema.IntentAdvisory,
		Query:      "is now a good time to rebalance",
		Generation: schema.GenerationConfig{Task: schema.TaskAdvisoryGeneration},
	}
	got, _, err := e.Execute(context.Background(), plan, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "single advisory answer" {
		t.Errorf("got %q, want the single-pipeline answer", got)
	}
	if n := gen.taskCalls(schema.TaskAnswerFusion); n != 0 {
		t.Errorf("fallback should not fuse, got %d fusion calls", n)
	}
}

func TestDedupeQueries(t *testing.T) {
	got := dedupeQueries([]string{"What is APR", "  what is apr  ", "", "APY basics"})
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	if got[0] != "What is APR" || got[1] != "APY basics" {
		t.Errorf("got %v", got)
	}
}
