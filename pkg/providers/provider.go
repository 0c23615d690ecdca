package providers

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/brookwillow/kiwi/pkg/config"
)

// CreateProvider is the single entry point for constructing an LLMProvider
// from configuration.
func CreateProvider(cfg *config.Config) (LLMProvider, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		return NewOpenAIProvider(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// ChatWithRetry retries transient chat failures with exponential backoff
// (100ms, 400ms). Context cancellation stops the retry loop.
func ChatWithRetry(
	ctx context.Context,
	p LLMProvider,
	messages []Message,
	tools []ToolDefinition,
	model string,
	options map[string]any,
) (*LLMResponse, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := range maxAttempts {
		resp, err := p.Chat(ctx, messages, tools, model, options)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == maxAttempts-1 {
			break
		}

		backoff := time.Duration(math.Pow(4, float64(attempt))) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("chat failed after %d attempts: %w", maxAttempts, lastErr)
}
