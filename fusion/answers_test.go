package fusion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/finchat/ragcore/schema"
)

type stubGenerator struct {
	response string
	err      error
	calls    int
	lastTask schema.TaskType
	prompts  []string
}

func (s *stubGenerator) Generate(_ context.Context, task schema.TaskType, prompt string) (string, error) {
	s.calls++
	s.lastTask = task
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func TestFuseNoAnswers(t *testing.T) {
	gen := &stubGenerator{}
	f := NewAnswerFuser(gen)

	got, err := f.Fuse(context.Background(), "q", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != NoInfoMessage() {
		t.Errorf("got %q, want no-info message", got)
	}
	if gen.calls != 0 {
		t.Errorf("zero answers must not call the model, got %d calls", gen.calls)
	}
}

func TestFuseBlankAnswersDropped(t *testing.T) {
	f := NewAnswerFuser(&stubGenerator{})
	got, err := f.Fuse(context.Background(), "q", []string{"", "   ", "\n"})
	if err != nil {
		t.Fatal(err)
	}
	if got != NoInfoMessage() {
		t.Errorf("all-blank answers should yield the no-info message, got %q", got)
	}
}

func TestFuseSingleAnswerVerbatim(t *testing.T) {
	gen := &stubGenerator{response: "should not be used"}
	f := NewAnswerFuser(gen)

	got, err := f.Fuse(context.Background(), "q", []string{"only answer"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "only answer" {
		t.Errorf("single answer must pass through verbatim, got %q", got)
	}
	if gen.calls != 0 {
		t.Errorf("single answer must not call the model, got %d calls", gen.calls)
	}
}

func TestFuseMultipleAnswers(t *testing.T) {
	gen := &stubGenerator{response: "merged"}
	f := NewAnswerFuser(gen)

	got, err := f.Fuse(context.Background(), "what is APR and APY", []string{"APR is ...", "APY is ..."})
	if err != nil {
		t.Fatal(err)
	}
	if got != "merged" {
		t.Errorf("got %q, want merged model output", got)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one fusion call, got %d", gen.calls)
	}
	if gen.lastTask != schema.TaskAnswerFusion {
		t.Errorf("fusion routed to task %s", gen.lastTask)
	}
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "### RESPONSE 1") || !strings.Contains(prompt, "### RESPONSE 2") {
		t.Errorf("prompt missing numbered response blocks:\n%s", prompt)
	}
	if !strings.Contains(prompt, "what is APR and APY") {
		t.Errorf("prompt missing original query")
	}
}

func TestFuseFallsBackOnModelError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream down")}
	f := NewAnswerFuser(gen)

	got, err := f.Fuse(context.Background(), "q", []string{"first", "second"})
	if err == nil {
		t.Fatal("expected error surfaced")
	}
	if got != "first" {
		t.Errorf("fallback should be the first answer, got %q", got)
	}
}

func TestRefuseFeedsReasonBack(t *testing.T) {
	gen := &stubGenerator{response: "compliant answer"}
	f := NewAnswerFuser(gen)

	got, err := f.Refuse(context.Background(), "q", []string{"a1", "a2"}, "contains speculation", "retry_1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "compliant answer" {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(gen.prompts[0], "contains speculation") {
		t.Errorf("rejection reason missing from prompt:\n%s", gen.prompts[0])
	}
	if !strings.Contains(gen.prompts[0], "retry_1") {
		t.Errorf("attempt mode missing from prompt:\n%s", gen.prompts[0])
	}
}

func TestRefuseEmptyAnswers(t *testing.T) {
	gen := &stubGenerator{}
	f := NewAnswerFuser(gen)
	got, err := f.Refuse(context.Background(), "q", nil, "reason", "self-correct")
	if err != nil {
		t.Fatal(err)
	}
	if got != NoInfoMessage() {
		t.Errorf("got %q, want no-info message", got)
	}
	if gen.calls != 0 {
		t.Errorf("no answers must not call the model")
	}
}
