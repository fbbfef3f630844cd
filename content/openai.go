package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// OpenAI generates post text with the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// OpenAIConfig holds OpenAI backend configuration.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // Optional; OpenAI-compatible endpoint
	Logger  *slog.Logger
}

// NewOpenAI creates an OpenAI backend.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	cfg.Logger.Info("Initializing OpenAI content backend", "model", model)

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: cfg.Logger,
	}, nil
}

// Generate implements the orchestrator's content contract.
func (o *OpenAI) Generate(ctx context.Context, subject string) (string, error) {
	o.logger.Debug("Generating post via OpenAI", "model", o.model, "topic", subject)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(subject)},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("OpenAI returned no choices")
	}

	o.logger.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return PlainText(resp.Choices[0].Message.Content), nil
}
