package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/elonfeng/govdigest/internal/retry"
)

// OpenAICompleter talks to OpenAI or any OpenAI-compatible gateway such as
// OpenRouter.
type OpenAICompleter struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewOpenAICompleter creates a chat completion client. SDK retries are
// disabled; the summarizer owns the retry policy.
func NewOpenAICompleter(cfg CompleterConfig) *OpenAICompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAICompleter{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxTokens),
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.temperature),
	}
	// Compatible gateways read max_tokens, not max_completion_tokens.
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(c.maxTokens)
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && !retry.HTTPStatusRetryable(apiErr.StatusCode) {
			return "", retry.Permanent(fmt.Errorf("openai status %d: %w", apiErr.StatusCode, err))
		}
		return "", fmt.Errorf("call openai: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
