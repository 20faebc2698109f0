package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/finchat/ragcore/config"
)

// Provider turns text into dense vectors for the dense retrieval channel.
type Provider interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	GetDimensions() int
}

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint.
type OpenAIProvider struct {
	client     openai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

func NewOpenAIProvider(cfg *config.EmbeddingConfig) (*OpenAIProvider, error) {
	if cfg == nil || cfg.Model == "" {
		return nil, fmt.Errorf("embedding: model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := 10 * time.Second
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    timeout,
	}, nil
}

func (p *OpenAIProvider) GetDimensions() int { return p.dimensions }

func (p *OpenAIProvider) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: empty response")
	}
	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
