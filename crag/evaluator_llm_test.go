package crag

import (
	"context"
	"errors"
	"testing"

	"github.com/finchat/ragcore/schema"
)

type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (s *stubGenerator) Generate(_ context.Context, _ schema.TaskType, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func sampleResults() []schema.SearchResult {
	return []schema.SearchResult{
		{Document: schema.Document{ID: "a", Content: "ETF expense ratios explained."}},
		{Document: schema.Document{ID: "b", Content: "Bond duration measures rate sensitivity."}},
	}
}

func TestLLMEvaluator_Evaluate(t *testing.T) {
	tests := []struct {
		name              string
		response          string
		expectedVerdict   Verdict
		expectedQuery     string
		expectedReasoning string
	}{
		{
			name:            "good verdict",
			response:        `{"verdict":"good","score":0.9}`,
			expectedVerdict: VerdictGood,
		},
		{
			name:              "bad verdict with reasoning",
			response:          `{"verdict":"bad","score":0.1,"reasoning":"passages cover bonds, not fees"}`,
			expectedVerdict:   VerdictBad,
			expectedReasoning: "passages cover bonds, not fees",
		},
		{
			name:            "ambiguous with reformulation",
			response:        `{"verdict":"ambiguous","score":0.5,"reformulated_query":"ETF fee structure"}`,
			expectedVerdict: VerdictAmbiguous,
			expectedQuery:   "ETF fee structure",
		},
		{
			name:            "fenced json",
			response:        "```json\n{\"verdict\":\"good\",\"score\":0.8}\n```",
			expectedVerdict: VerdictGood,
		},
		{
			name:            "label sniffing without json",
			response:        "the passages are ambiguous at best",
			expectedVerdict: VerdictAmbiguous,
		},
		{
			name:            "garbage defaults to good",
			response:        "no idea",
			expectedVerdict: VerdictGood,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evaluator := &LLMEvaluator{Gen: &stubGenerator{response: tt.response}}
			ev, err := evaluator.Evaluate(context.Background(), "what are ETF fees", sampleResults())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Verdict != tt.expectedVerdict {
				t.Errorf("expected verdict %v, got %v", tt.expectedVerdict, ev.Verdict)
			}
			if tt.expectedQuery != "" && ev.ReformulatedQuery != tt.expectedQuery {
				t.Errorf("expected reformulated query %q, got %q", tt.expectedQuery, ev.ReformulatedQuery)
			}
			if tt.expectedReasoning != "" && ev.Reasoning != tt.expectedReasoning {
				t.Errorf("expected reasoning %q, got %q", tt.expectedReasoning, ev.Reasoning)
			}
		})
	}
}

func TestLLMEvaluator_FailsOpen(t *testing.T) {
	evaluator := &LLMEvaluator{Gen: &stubGenerator{err: errors.New("model down")}}
	ev, err := evaluator.Evaluate(context.Background(), "q", sampleResults())
	if err != nil {
		t.Fatalf("evaluation must not propagate model errors, got %v", err)
	}
	if ev.Verdict != VerdictGood {
		t.Errorf("expected fail-open good verdict, got %v", ev.Verdict)
	}
}

func TestLLMEvaluator_EmptyResults(t *testing.T) {
	gen := &stubGenerator{response: `{"verdict":"bad"}`}
	evaluator := &LLMEvaluator{Gen: gen}
	ev, err := evaluator.Evaluate(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Verdict != VerdictGood {
		t.Errorf("expected good verdict for empty results, got %v", ev.Verdict)
	}
	if gen.calls != 0 {
		t.Errorf("expected no model call for empty results, got %d", gen.calls)
	}
}

func TestMergeResults(t *testing.T) {
	primary := []schema.SearchResult{
		{Document: schema.Document{ID: "a", Content: "one"}},
		{Document: schema.Document{ID: "b", Content: "two"}},
	}
	secondary := []schema.SearchResult{
		{Document: schema.Document{ID: "b", Content: "two"}},
		{Document: schema.Document{ID: "c", Content: "three"}},
		{Document: schema.Document{ID: "d", Content: "four"}},
	}

	merged := MergeResults(primary, secondary, 3)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged results, got %d", len(merged))
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if merged[i].Document.ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, merged[i].Document.ID)
		}
	}
}
