package crag

import (
	"context"
	"fmt"
	"strings"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/schema"
)

// Reformulator rewrites a query for the corrective retrieval round when
// the evaluator flagged the results as ambiguous without proposing a
// better query itself.
type Reformulator struct {
	Gen Generator
}

const reformulatePrompt = `The following query retrieved documents that were only partially relevant.
Rewrite it to be more specific and keyword-focused so a second retrieval round finds better material.

Original query: %s

Respond with the rewritten query only.`

// Reformulate returns a sharper query, or the original on any failure.
func (r *Reformulator) Reformulate(ctx context.Context, originalQuery string) (string, error) {
	if r.Gen == nil {
		return originalQuery, nil
	}
	response, err := r.Gen.Generate(ctx, schema.TaskCragEvaluation, fmt.Sprintf(reformulatePrompt, originalQuery))
	if err != nil {
		logger.Warnf("crag: reformulation failed, reusing original query: %v", err)
		return originalQuery, err
	}
	rewritten := strings.TrimSpace(strings.Trim(strings.TrimSpace(response), `"`))
	if rewritten == "" {
		return originalQuery, nil
	}
	return rewritten, nil
}

// ExtractContent joins the top passages into one evaluation context.
func ExtractContent(results []schema.SearchResult, limit int) string {
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	var b strings.Builder
	for i := 0; i < limit; i++ {
		b.WriteString(results[i].Document.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
