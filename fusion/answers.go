package fusion

import (
	"context"
	"fmt"
	"strings"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/schema"
)

// Generator is the completion surface the answer fuser needs.
type Generator interface {
	Generate(ctx context.Context, task schema.TaskType, prompt string) (string, error)
}

const noInfoMessage = "I could not find relevant information to answer your question. Please try rephrasing it or ask about a different topic."

const answerFusionPrompt = `You are a financial assistant. The user asked:
%s

Several independent partial answers were produced for different aspects of the question:

%s

Merge them into one coherent, non-repetitive answer. Preserve every number and citation exactly as given. Do not invent facts that appear in none of the partial answers. Answer directly, without mentioning that multiple responses were merged.`

// AnswerFuser merges the answers produced by parallel sub-query pipelines
// into a single response.
type AnswerFuser struct {
	gen Generator
}

func NewAnswerFuser(gen Generator) *AnswerFuser {
	return &AnswerFuser{gen: gen}
}

// Fuse combines partial answers. Zero answers yields the no-information
// message, a single answer is returned verbatim without a model call, and
// two or more are merged by the fusion model.
func (f *AnswerFuser) Fuse(ctx context.Context, query string, answers []string) (string, error) {
	kept := make([]string, 0, len(answers))
	for _, a := range answers {
		if strings.TrimSpace(a) != "" {
			kept = append(kept, a)
		}
	}
	switch len(kept) {
	case 0:
		return noInfoMessage, nil
	case 1:
		return kept[0], nil
	}

	prompt := fmt.Sprintf(answerFusionPrompt, query, formatAnswers(kept))
	fused, err := f.gen.Generate(ctx, schema.TaskAnswerFusion, prompt)
	if err != nil {
		logger.Warnf("answer fusion failed, falling back to first answer: %v", err)
		return kept[0], err
	}
	return fused, nil
}

// Refuse regenerates a fused answer after the output judge rejected the
// previous attempt. The rejection reason and the attempt mode tag
// ("self-correct", "retry_1", ...) are fed back into a stricter prompt.
func (f *AnswerFuser) Refuse(ctx context.Context, query string, answers []string, reason, mode string) (string, error) {
	kept := make([]string, 0, len(answers))
	for _, a := range answers {
		if strings.TrimSpace(a) != "" {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		return noInfoMessage, nil
	}
	if mode == "" {
		mode = "self-correct"
	}

	prompt := fmt.Sprintf(answerFusionPrompt, query, formatAnswers(kept))
	prompt += fmt.Sprintf("\n\nA previous attempt was rejected (%s) for this reason: %s\nThe new answer must directly address and fix that problem. Do not repeat the rejected claim.", mode, reason)
	return f.gen.Generate(ctx, schema.TaskAnswerFusion, prompt)
}

// NoInfoMessage is the canned reply for retrieval that came back empty.
func NoInfoMessage() string { return noInfoMessage }

func formatAnswers(answers []string) string {
	var b strings.Builder
	for i, a := range answers {
		fmt.Fprintf(&b, "### RESPONSE %d\n%s\n\n", i+1, strings.TrimSpace(a))
	}
	return strings.TrimRight(b.String(), "\n")
}
