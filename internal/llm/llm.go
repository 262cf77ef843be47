package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/emailtutor/internal/llm/prompts"
	"github.com/pavelanni/emailtutor/internal/model"
)

// Provider names accepted by Open.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures a model backend.
type Config struct {
	Provider       string
	BaseURL        string // OpenAI-compatible endpoint; ignored by the gemini provider
	APIKey         string
	Model          string
	EmbeddingModel string
}

// Backend is everything the application needs from a model service.
type Backend interface {
	ExtractText(ctx context.Context, img model.Image) (string, error)
	Complete(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the backend named by cfg.Provider.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return New(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.EmbeddingModel), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.EmbeddingModel)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName, embeddingModel string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:            openai.NewClientWithConfig(config),
		model:          modelName,
		embeddingModel: embeddingModel,
	}
}

// Ping checks that the endpoint answers and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Close is a no-op; the HTTP client needs no teardown.
func (c *Client) Close() error { return nil }

// ExtractText sends a screenshot with the extraction instruction and returns the
// model's text verbatim (trimmed).
func (c *Client) ExtractText(ctx context.Context, img model.Image) (string, error) {
	instruction, err := prompts.ExtractInstruction()
	if err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: instruction},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL(img),
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("LLM extraction call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices for extraction")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("extracted email text", "image", img.Name, "chars", len(text))
	return text, nil
}

// Complete sends a single user prompt and returns the raw reply text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("LLM embedding call: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("LLM returned no embeddings")
	}
	return resp.Data[0].Embedding, nil
}

func dataURL(img model.Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
