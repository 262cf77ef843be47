package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pavelanni/emailtutor/internal/llm/prompts"
	"github.com/pavelanni/emailtutor/internal/model"
)

// GeminiClient talks to the Gemini API natively.
type GeminiClient struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	embedder *genai.EmbeddingModel
}

// NewGemini creates a Gemini client for the given generation and embedding models.
func NewGemini(ctx context.Context, apiKey, modelName, embeddingModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{
		client:   client,
		model:    client.GenerativeModel(modelName),
		embedder: client.EmbeddingModel(embeddingModel),
	}, nil
}

// Close closes the underlying client.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Ping fetches the model metadata.
func (g *GeminiClient) Ping(ctx context.Context) error {
	if _, err := g.model.Info(ctx); err != nil {
		return fmt.Errorf("model info: %w", err)
	}
	return nil
}

// ExtractText sends a screenshot with the extraction instruction.
func (g *GeminiClient) ExtractText(ctx context.Context, img model.Image) (string, error) {
	instruction, err := prompts.ExtractInstruction()
	if err != nil {
		return "", err
	}
	resp, err := g.model.GenerateContent(ctx, genai.Text(instruction), genai.ImageData(imageFormat(img.MIMEType), img.Data))
	if err != nil {
		return "", fmt.Errorf("Gemini extraction call: %w", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}

// Complete sends a text prompt and returns the raw reply.
func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API call: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("Gemini returned no text")
	}
	return text, nil
}

// Embed returns the embedding vector for text.
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.embedder.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("Gemini embedding call: %w", err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("Gemini returned no embedding")
	}
	return res.Embedding.Values, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		// Only the first candidate is used.
		break
	}
	return sb.String()
}

// imageFormat converts a MIME type to the short form genai.ImageData expects.
func imageFormat(mime string) string {
	if f, ok := strings.CutPrefix(mime, "image/"); ok && f != "" {
		return f
	}
	return "png"
}
