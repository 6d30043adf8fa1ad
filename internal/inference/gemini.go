package inference

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
}

// GeminiClient answers questions by calling the Gemini API directly with the
// transcript as prior contents.
type GeminiClient struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	logger *zap.Logger
}

// NewGeminiClient creates a Gemini-backed Answerer.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	var gc *genai.GenerateContentConfig
	if strings.TrimSpace(cfg.SystemPrompt) != "" {
		gc = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser),
		}
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		config: gc,
		logger: logger.Named("gemini"),
	}, nil
}

// Answer sends history followed by the question as a user utterance.
func (c *GeminiClient) Answer(ctx context.Context, req Request) (Response, error) {
	contents := make([]*genai.Content, 0, len(req.ChatHistory)+1)
	contents = append(contents, req.ChatHistory...)
	contents = append(contents, genai.NewContentFromText(req.Question, genai.RoleUser))

	c.logger.Debug("generating content", zap.String("model", c.model), zap.Int("contents", len(contents)))
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, c.config)
	if err != nil {
		return Response{}, &AnswerError{Class: ClassNetwork, Message: err.Error(), Cause: err}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Response{}, &AnswerError{Class: ClassMalformed, Message: "No text in response"}
	}
	return Response{Text: text}, nil
}
