package post

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/schema"
)

// ContextBuilder assembles retrieved passages into the prompt context,
// stopping once the token budget is spent. Passages are consumed in ranked
// order; a passage that would blow the budget is dropped rather than cut
// mid-sentence.
type ContextBuilder struct {
	TokenBudget int
	enc         *tiktoken.Tiktoken
}

func NewContextBuilder(tokenBudget int) *ContextBuilder {
	if tokenBudget <= 0 {
		tokenBudget = 3000
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warnf("context builder: tokenizer unavailable, using word counts: %v", err)
	}
	return &ContextBuilder{TokenBudget: tokenBudget, enc: enc}
}

// Build renders the passages into a numbered context block.
func (b *ContextBuilder) Build(results []schema.SearchResult) string {
	var sb strings.Builder
	used := 0
	n := 0
	for _, r := range results {
		content := strings.TrimSpace(r.Document.Content)
		if content == "" {
			continue
		}
		block := fmt.Sprintf("[%d] %s", n+1, content)
		cost := b.countTokens(block)
		if used+cost > b.TokenBudget {
			if n == 0 {
				// never return an empty context when hits exist
				return b.truncateToBudget(block)
			}
			break
		}
		if n > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(block)
		used += cost
		n++
	}
	return sb.String()
}

func (b *ContextBuilder) countTokens(text string) int {
	if b.enc != nil {
		return len(b.enc.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}

func (b *ContextBuilder) truncateToBudget(text string) string {
	if b.enc != nil {
		tokens := b.enc.Encode(text, nil, nil)
		if len(tokens) <= b.TokenBudget {
			return text
		}
		return b.enc.Decode(tokens[:b.TokenBudget])
	}
	words := strings.Fields(text)
	if len(words) <= b.TokenBudget {
		return text
	}
	return strings.Join(words[:b.TokenBudget], " ")
}
