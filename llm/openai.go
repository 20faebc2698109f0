package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/finchat/ragcore/config"
)

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint.
// Both configured backends (e.g. openai and dashscope/qwen) go through this
// implementation with different base URLs.
type OpenAIProvider struct {
	client       openai.Client
	providerType string
	model        string
	maxTokens    int
	timeout      time.Duration
}

// NewOpenAIProvider builds a provider from one backend config entry.
func NewOpenAIProvider(cfg config.LLMBackendConfig) (*OpenAIProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("backend %q: model is required", cfg.Name)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := 30 * time.Second
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	pt := cfg.Provider
	if pt == "" {
		pt = "openai"
	}
	return &OpenAIProvider{
		client:       openai.NewClient(opts...),
		providerType: pt,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		timeout:      timeout,
	}, nil
}

func (p *OpenAIProvider) GetProviderType() string { return p.providerType }

func (p *OpenAIProvider) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	return p.generate(ctx, prompt, nil)
}

func (p *OpenAIProvider) GenerateWithTemperature(ctx context.Context, prompt string, temperature float64) (string, error) {
	return p.generate(ctx, prompt, &temperature)
}

func (p *OpenAIProvider) generate(ctx context.Context, prompt string, temperature *float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if temperature != nil {
		params.Temperature = openai.Float(*temperature)
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.maxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
