package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

type stubGenerator struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (s *stubGenerator) Generate(_ context.Context, _ schema.TaskType, prompt string) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func judgeConfig(failMode string) *config.ValidatorConfig {
	cfg := &config.ValidatorConfig{}
	cfg.Judge.Enable = true
	cfg.Judge.FailMode = failMode
	return cfg
}

func TestJudgeAccepts(t *testing.T) {
	gen := &stubGenerator{response: `{"is_valid": true}`}
	j := NewOutputJudge(gen, judgeConfig(""))

	res := j.Judge(context.Background(), "q", "a", "ctx")
	if !res.Valid {
		t.Errorf("expected valid, got %+v", res)
	}
}

func TestJudgePromptCarriesContext(t *testing.T) {
	gen := &stubGenerator{response: `{"is_valid": true}`}
	j := NewOutputJudge(gen, judgeConfig(""))

	j.Judge(context.Background(), "what is a bond", "Bonds pay coupons.", "bonds pay fixed coupons semiannually")
	if len(gen.prompts) != 1 {
		t.Fatalf("expected one judge call, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "bonds pay fixed coupons semiannually") {
		t.Errorf("prompt missing the reference context:\n%s", gen.prompts[0])
	}

	// a context-free answer still gets judged, against a placeholder
	j.Judge(context.Background(), "hello", "Hi there.", "")
	if !strings.Contains(gen.prompts[1], "(none)") {
		t.Errorf("empty context should render as a placeholder:\n%s", gen.prompts[1])
	}
}

func TestJudgeRejectsWithCorrection(t *testing.T) {
	gen := &stubGenerator{response: "Here is my review:\n" +
		`{"is_valid": false, "violation_type": "guarantee", "reason": "promises returns", "corrected_content": "Returns are not guaranteed."}`}
	j := NewOutputJudge(gen, judgeConfig(""))

	res := j.Judge(context.Background(), "q", "you will double your money", "")
	if res.Valid {
		t.Fatal("expected rejection")
	}
	if res.Reason != "promises returns" {
		t.Errorf("reason = %q", res.Reason)
	}
	if res.CorrectedContent != "Returns are not guaranteed." {
		t.Errorf("corrected content = %q", res.CorrectedContent)
	}
}

func TestJudgeReasonFallsBackToViolationType(t *testing.T) {
	gen := &stubGenerator{response: `{"is_valid": false, "violation_type": "abuse"}`}
	j := NewOutputJudge(gen, judgeConfig(""))

	res := j.Judge(context.Background(), "q", "a", "")
	if res.Valid || res.Reason != "abuse" {
		t.Errorf("got %+v, want violation_type as reason", res)
	}
}

func TestJudgeFailOpen(t *testing.T) {
	cases := []struct {
		name string
		gen  *stubGenerator
	}{
		{"model error", &stubGenerator{err: errors.New("timeout")}},
		{"no json", &stubGenerator{response: "I think it looks fine"}},
		{"missing is_valid", &stubGenerator{response: `{"reason": "?"}`}},
	}
	for _, tc := range cases {
		j := NewOutputJudge(tc.gen, judgeConfig("open"))
		if res := j.Judge(context.Background(), "q", "a", ""); !res.Valid {
			t.Errorf("%s: fail-open should accept, got %+v", tc.name, res)
		}
	}
}

func TestJudgeFailClosed(t *testing.T) {
	gen := &stubGenerator{err: errors.New("timeout")}
	j := NewOutputJudge(gen, judgeConfig("closed"))

	res := j.Judge(context.Background(), "q", "a", "")
	if res.Valid {
		t.Fatal("fail-closed should reject on judge failure")
	}
	if res.Reason == "" {
		t.Error("rejection should carry a reason")
	}
}

func TestJudgeDisabled(t *testing.T) {
	gen := &stubGenerator{response: `{"is_valid": false}`}
	cfg := &config.ValidatorConfig{}
	j := NewOutputJudge(gen, cfg)

	if j.Enabled() {
		t.Fatal("judge should be disabled by config")
	}
	res := j.Judge(context.Background(), "q", "a", "")
	if !res.Valid {
		t.Errorf("disabled judge must pass answers through")
	}
	if gen.calls != 0 {
		t.Errorf("disabled judge made %d model calls", gen.calls)
	}
}

func TestJudgeNilGenerator(t *testing.T) {
	j := NewOutputJudge(nil, judgeConfig(""))
	if j.Enabled() {
		t.Error("judge without a generator cannot be enabled")
	}
}
