package llm

import (
	"context"
	"errors"
)

// Provider is a single generation backend.
type Provider interface {
	// GenerateCompletion sends a prompt and returns the raw completion text.
	GenerateCompletion(ctx context.Context, prompt string) (string, error)
	// GenerateWithTemperature overrides the backend's default temperature
	// for one call.
	GenerateWithTemperature(ctx context.Context, prompt string, temperature float64) (string, error)
	// GetProviderType returns the backend type identifier.
	GetProviderType() string
}

var ErrEmptyCompletion = errors.New("empty completion from backend")
