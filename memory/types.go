package memory

import (
	"fmt"
	"strings"
	"time"
)

// ConversationRound is one question/answer exchange.
type ConversationRound struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// RenderHistory formats the running summary and recent rounds into the
// context block prompts expect. Empty when the session has no history.
func RenderHistory(summary string, rounds []ConversationRound) string {
	var b strings.Builder
	if summary != "" {
		b.WriteString("Summary of earlier conversation:\n")
		b.WriteString(summary)
		b.WriteString("\n\n")
	}
	for i, round := range rounds {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, round.Question, i+1, round.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}
