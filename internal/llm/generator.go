// Package llm wraps the text-generation backends used for intent
// classification and answer synthesis.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github-insight/internal/common/config"
)

var (
	ErrModelTimeout    = errors.New("LLM_TIMEOUT")
	ErrModelFailed     = errors.New("LLM_SYNTHESIS_FAILED")
	ErrEmptyCompletion = errors.New("LLM_EMPTY_COMPLETION")
)

// Generator turns a prompt into text. One call, no retries.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.GenAIConfig) (Generator, error) {
	timeout := config.GetDuration(cfg.Timeout)
	switch cfg.Backend {
	case config.GenAIBackendGemini:
		return NewGenAIGenerator(ctx, GenAIConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Timeout:     timeout,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case config.GenAIBackendGateway:
		return NewGatewayGenerator(GatewayConfig{
			BaseURL:     cfg.BaseURL,
			Timeout:     timeout,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported genai backend %q", cfg.Backend)
	}
}

// classify maps transport errors onto the package sentinels.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrModelTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrModelFailed, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
