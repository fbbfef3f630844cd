package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// Gemini generates post text with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// GeminiConfig holds Gemini backend configuration.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // Optional; overrides the API endpoint
	Logger  *slog.Logger
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	cfg.Logger.Info("Initializing Gemini content backend", "model", model)

	return &Gemini{client: client, model: model, logger: cfg.Logger}, nil
}

// Generate implements the orchestrator's content contract.
func (g *Gemini) Generate(ctx context.Context, subject string) (string, error) {
	g.logger.Debug("Generating post via Gemini", "model", g.model, "topic", subject)

	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(userPrompt(subject)), genConfig)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := PlainText(result.Text())
	if text == "" {
		return "", errors.New("Gemini returned no text")
	}
	return text, nil
}
