package summarize

import (
	"context"
	"fmt"
	"time"
)

// Completer sends one system+user prompt pair to an LLM and returns its text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterConfig selects and configures the LLM gateway.
type CompleterConfig struct {
	Provider    string // "openrouter", "openai" or "anthropic"
	Model       string
	APIKey      string
	BaseURL     string // custom endpoint (optional)
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

const openRouterBaseURL = "https://openrouter.ai/api/v1/"

// NewCompleter builds the completer for cfg.Provider, filling in defaults.
func NewCompleter(cfg CompleterConfig) (Completer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	switch cfg.Provider {
	case "", "openrouter":
		if cfg.Model == "" {
			cfg.Model = "google/gemini-2.5-flash-lite"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = openRouterBaseURL
		}
		return NewOpenAICompleter(cfg), nil
	case "openai":
		if cfg.Model == "" {
			cfg.Model = "gpt-4o-mini"
		}
		return NewOpenAICompleter(cfg), nil
	case "anthropic":
		if cfg.Model == "" {
			cfg.Model = "claude-sonnet-4-20250514"
		}
		return NewAnthropicCompleter(cfg), nil
	}
	return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
}
