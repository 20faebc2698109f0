package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
	"github.com/finchat/ragcore/schema"
)

// Generator is the completion surface the summarizer needs.
type Generator interface {
	Generate(ctx context.Context, task schema.TaskType, prompt string) (string, error)
}

const summaryPrompt = `Condense the conversation below into a short factual summary a financial
assistant can use as context for future turns. Keep user goals, stated
constraints, and numbers. Drop pleasantries.

Previous summary:
%s

Recent conversation:
%s

Respond with the updated summary only.`

// Summarizer maintains per-session conversation summaries off the request
// path. Enqueue never blocks: when the queue is full the update is
// dropped and the next round catches up.
type Summarizer struct {
	store ConversationStore
	gen   Generator
	lastN int
	queue chan string
	done  chan struct{}
}

func NewSummarizer(store ConversationStore, gen Generator, cfg *config.MemoryConfig) *Summarizer {
	lastN := 5
	queueSize := 64
	if cfg != nil {
		if cfg.SummaryLastN > 0 {
			lastN = cfg.SummaryLastN
		}
		if cfg.QueueSize > 0 {
			queueSize = cfg.QueueSize
		}
	}
	return &Summarizer{
		store: store,
		gen:   gen,
		lastN: lastN,
		queue: make(chan string, queueSize),
		done:  make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (s *Summarizer) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case sessionID, ok := <-s.queue:
				if !ok {
					return
				}
				s.summarize(ctx, sessionID)
			}
		}
	}()
}

// Enqueue schedules a summary refresh for the session.
func (s *Summarizer) Enqueue(sessionID string) {
	select {
	case s.queue <- sessionID:
	default:
		logger.Debugf("memory: summary queue full, skipping refresh for %s", sessionID)
	}
}

func (s *Summarizer) summarize(ctx context.Context, sessionID string) {
	if s.gen == nil || s.store == nil {
		return
	}
	workCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rounds, err := s.store.GetLastNRounds(workCtx, sessionID, s.lastN)
	if err != nil || len(rounds) == 0 {
		return
	}
	previous, _ := s.store.GetSummary(workCtx, sessionID)
	if previous == "" {
		previous = "(none)"
	}

	prompt := fmt.Sprintf(summaryPrompt, previous, RenderHistory("", rounds))
	summary, err := s.gen.Generate(workCtx, schema.TaskSummarization, prompt)
	if err != nil {
		logger.Warnf("memory: summarization failed for %s: %v", sessionID, err)
		return
	}
	if err := s.store.SetSummary(workCtx, sessionID, summary); err != nil {
		logger.Warnf("memory: summary save failed for %s: %v", sessionID, err)
	}
}
