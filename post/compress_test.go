package post

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/finchat/ragcore/schema"
)

type stubProvider struct {
	response string
	err      error
}

func (s *stubProvider) GenerateCompletion(context.Context, string) (string, error) {
	return s.response, s.err
}

func (s *stubProvider) GenerateWithTemperature(context.Context, string, float64) (string, error) {
	return s.response, s.err
}

func (s *stubProvider) GetProviderType() string { return "stub" }

func TestCompressText(t *testing.T) {
	ten := strings.Repeat("word ", 10)
	cases := []struct {
		ratio     float64
		wantWords int
	}{
		{0.5, 5},
		{0.1, 1},
		{0, 10},
		{1, 10},
		{1.5, 10},
	}
	for _, tc := range cases {
		got := CompressText(ten, tc.ratio)
		if n := len(strings.Fields(got)); n != tc.wantWords {
			t.Errorf("ratio %v: %d words, want %d", tc.ratio, n, tc.wantWords)
		}
	}
	if got := CompressText("", 0.5); got != "" {
		t.Errorf("empty text: %q", got)
	}
}

func TestTruncateCompressorBatch(t *testing.T) {
	c := &TruncateCompressor{TargetRatio: 0.5}
	in := []schema.SearchResult{
		{Document: schema.Document{ID: "a", Content: "one two three four"}},
		{Document: schema.Document{ID: "b", Content: "five six"}},
	}
	out, err := c.BatchCompress(context.Background(), in, "q")
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Document.Content != "one two" {
		t.Errorf("got %q", out[0].Document.Content)
	}
	// the input slice must not be mutated
	if in[0].Document.Content != "one two three four" {
		t.Error("batch compression mutated its input")
	}
}

func TestSelectiveCompressorFallsBackOnError(t *testing.T) {
	c := &SelectiveCompressor{Provider: &stubProvider{err: errors.New("down")}}
	got, _, err := c.Compress(context.Background(), "original text", "q")
	if err == nil {
		t.Fatal("expected error surfaced")
	}
	if got != "original text" {
		t.Errorf("failure must keep the original, got %q", got)
	}
}

func TestSelectiveCompressorKeepsOriginalOnEmpty(t *testing.T) {
	c := &SelectiveCompressor{Provider: &stubProvider{response: "  "}}
	got, _, err := c.Compress(context.Background(), "original text", "q")
	if err != nil {
		t.Fatal(err)
	}
	if got != "original text" {
		t.Errorf("empty completion must keep the original, got %q", got)
	}
}

func TestSelectiveBatchDropsEmptiedChunks(t *testing.T) {
	c := &SelectiveCompressor{Provider: &stubProvider{response: "relevant part"}}
	in := []schema.SearchResult{
		{Document: schema.Document{ID: "a", Content: "relevant part plus noise"}},
	}
	out, err := c.BatchCompress(context.Background(), in, "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Document.Content != "relevant part" {
		t.Errorf("got %+v", out)
	}
}

func TestNewCompressorSelection(t *testing.T) {
	if _, ok := NewCompressor("", 0.5, nil).(*TruncateCompressor); !ok {
		t.Error("empty method should yield truncate")
	}
	if _, ok := NewCompressor("bogus", 0.5, nil).(*TruncateCompressor); !ok {
		t.Error("unknown method should yield truncate")
	}
	if _, ok := NewCompressor("selective", 0.5, nil).(*TruncateCompressor); !ok {
		t.Error("selective without a provider should fall back to truncate")
	}
	if _, ok := NewCompressor("selective", 0.5, &stubProvider{}).(*SelectiveCompressor); !ok {
		t.Error("selective with a provider should yield the selective compressor")
	}
}

func TestCalculateCompressionRatio(t *testing.T) {
	if got := calculateCompressionRatio("aaaa", "aa"); got != 50 {
		t.Errorf("ratio = %v, want 50", got)
	}
	if got := calculateCompressionRatio("", "x"); got != 0 {
		t.Errorf("empty original: %v", got)
	}
	if got := calculateCompressionRatio("a", "aaa"); got != 0 {
		t.Errorf("growth clamps to 0: %v", got)
	}
}
