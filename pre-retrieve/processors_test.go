package pre_retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (s *stubGenerator) Generate(context.Context, schema.TaskType, string) (string, error) {
	s.calls++
	return s.response, s.err
}

func TestClassifyIntentMultiTask(t *testing.T) {
	gen := &stubGenerator{response: `[
		{"intent": "knowledge_query", "query": "what is APR", "explanation": "definition"},
		{"intent": "calculation", "query": "compound 1000 at 5% for 3 years", "explanation": "math"}
	]`}
	p := NewProcessor(gen, config.DefaultPipeline())

	tasks, err := p.ClassifyIntent(context.Background(), "what is APR and compound 1000 at 5% for 3 years", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Intent != schema.IntentKnowledgeQuery || tasks[1].Intent != schema.IntentCalculation {
		t.Errorf("intents = %s, %s", tasks[0].Intent, tasks[1].Intent)
	}
	if tasks[0].SubQuery != "what is APR" {
		t.Errorf("sub-query = %q", tasks[0].SubQuery)
	}
}

func TestClassifyIntentFallbacks(t *testing.T) {
	cases := []struct {
		name string
		gen  *stubGenerator
	}{
		{"model error", &stubGenerator{err: errors.New("down")}},
		{"no json", &stubGenerator{response: "sorry, I cannot help"}},
		{"empty array", &stubGenerator{response: "[]"}},
	}
	for _, tc := range cases {
		p := NewProcessor(tc.gen, config.DefaultPipeline())
		tasks, err := p.ClassifyIntent(context.Background(), "hello", "")
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(tasks) != 1 || tasks[0].Intent != schema.IntentUnsupported {
			t.Errorf("%s: expected single unsupported fallback, got %+v", tc.name, tasks)
		}
		if tasks[0].SubQuery != "hello" {
			t.Errorf("%s: fallback should keep the original query", tc.name)
		}
	}
}

func TestClassifyIntentUnknownLabel(t *testing.T) {
	gen := &stubGenerator{response: `[{"intent": "weather_forecast", "query": "rain?"}]`}
	p := NewProcessor(gen, config.DefaultPipeline())

	tasks, err := p.ClassifyIntent(context.Background(), "rain?", "")
	if err != nil {
		t.Fatal(err)
	}
	if tasks[0].Intent != schema.IntentUnsupported {
		t.Errorf("unknown label should map to unsupported, got %s", tasks[0].Intent)
	}
}

func TestClassifyIntentCapsSubQueries(t *testing.T) {
	cfg := config.DefaultPipeline()
	cfg.MaxSubQueries = 2
	gen := &stubGenerator{response: `[
		{"intent": "knowledge_query", "query": "a"},
		{"intent": "knowledge_query", "query": "b"},
		{"intent": "knowledge_query", "query": "c"}
	]`}
	p := NewProcessor(gen, cfg)

	tasks, _ := p.ClassifyIntent(context.Background(), "a b c", "")
	if len(tasks) != 2 {
		t.Errorf("expected cap at 2 tasks, got %d", len(tasks))
	}
}

func TestMultiQueryKeepsOriginalFirst(t *testing.T) {
	gen := &stubGenerator{response: "1. How does APR work\n2. APR meaning\n3. how does apr WORK"}
	p := NewProcessor(gen, config.DefaultPipeline())

	out := p.MultiQuery(context.Background(), "How does APR work", 3)
	if out[0] != "How does APR work" {
		t.Fatalf("original must be first, got %q", out[0])
	}
	// the first variant duplicates the original case-insensitively and the
	// third duplicates the first
	if len(out) != 2 {
		t.Errorf("expected original plus one variant, got %v", out)
	}
}

func TestMultiQueryFailureReturnsOriginal(t *testing.T) {
	gen := &stubGenerator{err: errors.New("down")}
	p := NewProcessor(gen, config.DefaultPipeline())

	out := p.MultiQuery(context.Background(), "q", 3)
	if len(out) != 1 || out[0] != "q" {
		t.Errorf("got %v, want just the original", out)
	}
}

func TestStepBackStripsQuotes(t *testing.T) {
	gen := &stubGenerator{response: "\n \"What are interest rates?\" \n"}
	p := NewProcessor(gen, config.DefaultPipeline())

	got, err := p.StepBack(context.Background(), "why did my savings rate drop")
	if err != nil {
		t.Fatal(err)
	}
	if got != "What are interest rates?" {
		t.Errorf("got %q", got)
	}
}

func TestPlanAdvisoryParsesPlan(t *testing.T) {
	gen := &stubGenerator{response: `{
		"step_back_question": "What drives retirement planning?",
		"hyde_document": "Retirement planning balances...",
		"sub_queries": ["pension types", "", "tax treatment"]
	}`}
	p := NewProcessor(gen, config.DefaultPipeline())

	result, err := p.PlanAdvisory(context.Background(), "how should I save for retirement")
	if err != nil {
		t.Fatal(err)
	}
	if result.StepBackQuestion != "What drives retirement planning?" {
		t.Errorf("step-back = %q", result.StepBackQuestion)
	}
	if result.HypotheticalDoc == "" {
		t.Error("hyde document missing")
	}
	if len(result.Tasks) != 2 {
		t.Fatalf("blank sub-queries should be dropped, got %d tasks", len(result.Tasks))
	}
	for _, task := range result.Tasks {
		if task.Intent != schema.IntentAdvisory {
			t.Errorf("sub-query intent = %s", task.Intent)
		}
	}
}

func TestParseNumberedList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"1. first\n2. second", []string{"first", "second"}},
		{"1) first\n2) second", []string{"first", "second"}},
		{"- first\n* second\n• third", []string{"first", "second", "third"}},
		{"first\n\nsecond", []string{"first", "second"}},
		{"10. keeps double digits", []string{"keeps double digits"}},
		{"", nil},
	}
	for _, tc := range cases {
		got := ParseNumberedList(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("ParseNumberedList(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ParseNumberedList(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestProcessAddsRewritesForKnowledge(t *testing.T) {
	gen := &stubGenerator{response: `[{"intent": "knowledge_query", "query": "what is a bond"}]`}
	p := NewProcessor(gen, config.DefaultPipeline())

	result, err := p.Process(context.Background(), "what is a bond", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tasks) != 1 {
		t.Fatalf("tasks = %+v", result.Tasks)
	}
	// the stub returns the classification JSON for every call, so the
	// rewrites come back as that JSON text; only their presence matters
	if result.StepBackQuestion == "" || result.HypotheticalDoc == "" {
		t.Error("single knowledge task should produce step-back and hyde rewrites")
	}
}
