package post

import (
	"context"
	"fmt"
	"strings"

	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/llm"
	"github.com/finchat/ragcore/schema"
)

// Compressor defines the interface for context compression strategies.
type Compressor interface {
	// Compress compresses a single text chunk based on query relevance
	Compress(ctx context.Context, text string, query string) (compressed string, compressionRatio float64, err error)

	// BatchCompress compresses multiple search results
	BatchCompress(ctx context.Context, results []schema.SearchResult, query string) ([]schema.SearchResult, error)
}

// TruncateCompressor is a simple, query-agnostic compressor.
// It trims the text to a target ratio of its length, preserving the beginning.
type TruncateCompressor struct {
	TargetRatio float64 // target compression ratio (0-1)
}

func (t *TruncateCompressor) Compress(_ context.Context, text string, _ string) (string, float64, error) {
	compressed := CompressText(text, t.TargetRatio)
	return compressed, calculateCompressionRatio(text, compressed), nil
}

func (t *TruncateCompressor) BatchCompress(ctx context.Context, results []schema.SearchResult, query string) ([]schema.SearchResult, error) {
	compressed := make([]schema.SearchResult, len(results))
	for i, result := range results {
		compressedText, _, _ := t.Compress(ctx, result.Document.Content, query)
		result.Document.Content = compressedText
		compressed[i] = result
	}
	return compressed, nil
}

// CompressText trims text to a target ratio of its token count, keeping the head.
func CompressText(text string, targetRatio float64) string {
	if targetRatio <= 0 || targetRatio >= 1 {
		return text
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text
	}
	keep := int(float64(len(tokens)) * targetRatio)
	if keep <= 0 {
		keep = 1
	}
	if keep >= len(tokens) {
		return text
	}
	return strings.Join(tokens[:keep], " ")
}

// SelectiveCompressor extracts only the sentences directly relevant to the
// query. Falls back to the original text on any model failure.
type SelectiveCompressor struct {
	Provider llm.Provider
}

const selectiveSystemPrompt = `You are an expert at information filtering.
Your task is to analyze a document chunk and extract ONLY the sentences or paragraphs that are directly
relevant to the user's query. Remove all irrelevant content.

Your output should:
1. ONLY include text that helps answer the query
2. Preserve the exact wording of relevant sentences (do not paraphrase)
3. Maintain the original order of the text
4. Include ALL relevant content, even if it seems redundant
5. EXCLUDE any text that isn't relevant to the query

Format your response as plain text with no additional comments.`

func (s *SelectiveCompressor) Compress(ctx context.Context, text string, query string) (string, float64, error) {
	if s.Provider == nil {
		return text, 0, nil
	}

	prompt := fmt.Sprintf(`%s

Query: %s

Document Chunk:
%s

Extract only the content relevant to answering this query.`, selectiveSystemPrompt, query, text)

	compressed, err := s.Provider.GenerateCompletion(ctx, prompt)
	if err != nil {
		logger.Warnf("selective compressor: %v, using original", err)
		return text, 0, err
	}
	compressed = strings.TrimSpace(compressed)
	if compressed == "" {
		return text, 0, nil
	}
	return compressed, calculateCompressionRatio(text, compressed), nil
}

func (s *SelectiveCompressor) BatchCompress(ctx context.Context, results []schema.SearchResult, query string) ([]schema.SearchResult, error) {
	compressed := make([]schema.SearchResult, 0, len(results))
	for _, result := range results {
		compressedText, _, err := s.Compress(ctx, result.Document.Content, query)
		if compressedText == "" {
			continue
		}
		if err != nil {
			compressedText = result.Document.Content
		}
		result.Document.Content = compressedText
		compressed = append(compressed, result)
	}
	if len(compressed) == 0 {
		logger.Warnf("selective compressor: all chunks compressed to empty, using originals")
		return results, nil
	}
	return compressed, nil
}

// NewCompressor creates a Compressor by method name.
func NewCompressor(method string, targetRatio float64, provider llm.Provider) Compressor {
	switch strings.ToLower(method) {
	case "selective":
		if provider == nil {
			logger.Warnf("selective compression requires a model provider, falling back to truncate")
			return &TruncateCompressor{TargetRatio: targetRatio}
		}
		return &SelectiveCompressor{Provider: provider}
	case "truncate", "":
		return &TruncateCompressor{TargetRatio: targetRatio}
	default:
		logger.Warnf("unknown compression method %q, using truncate", method)
		return &TruncateCompressor{TargetRatio: targetRatio}
	}
}

// calculateCompressionRatio calculates the compression ratio as a percentage
func calculateCompressionRatio(original, compressed string) float64 {
	if len(original) == 0 {
		return 0
	}
	reduction := float64(len(original)-len(compressed)) / float64(len(original)) * 100
	if reduction < 0 {
		return 0
	}
	return reduction
}
