// Package tutor runs the generation pipeline: screenshots are read by the model,
// optionally grounded with similar stored emails, and turned into a parsed quiz.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pavelanni/emailtutor/internal/llm/prompts"
	"github.com/pavelanni/emailtutor/internal/model"
	"github.com/pavelanni/emailtutor/internal/quiz"
	"github.com/pavelanni/emailtutor/internal/retrieval"
)

var (
	ErrNoImages         = errors.New("no images uploaded")
	ErrQuestionCount    = fmt.Errorf("question count must be between %d and %d", model.MinQuestions, model.MaxQuestions)
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// Model is the subset of the model backend the pipeline uses.
type Model interface {
	ExtractText(ctx context.Context, img model.Image) (string, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retriever stores extracted emails and finds similar ones.
type Retriever interface {
	Index(ctx context.Context, text string) (string, error)
	Retrieve(ctx context.Context, text string) ([]string, error)
}

// Result is everything one generation produced.
type Result struct {
	EmailText string
	// Context is the retrieved context, empty without retrieval.
	Context string
	Quiz    model.Quiz
	Elapsed time.Duration
}

// Service runs the pipeline against a model and an optional retriever.
type Service struct {
	model     Model
	retriever Retriever
}

// New creates a Service. A nil retriever disables contextual retrieval.
func New(m Model, r Retriever) *Service {
	return &Service{model: m, retriever: r}
}

// RetrievalEnabled reports whether generation is grounded in stored emails.
func (s *Service) RetrievalEnabled() bool {
	return s.retriever != nil
}

// Extract reads the email text from every image, in order.
func (s *Service) Extract(ctx context.Context, images []model.Image) ([]string, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	texts := make([]string, 0, len(images))
	for _, img := range images {
		text, err := s.model.ExtractText(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", img.Name, err)
		}
		slog.Debug("extracted email text", "image", img.Name, "chars", len(text))
		texts = append(texts, text)
	}
	return texts, nil
}

// Generate extracts the uploaded emails and asks the model for n questions
// about them. On any error nothing is returned, so callers keep their current
// quiz.
func (s *Service) Generate(ctx context.Context, images []model.Image, n int) (*Result, error) {
	if n < model.MinQuestions || n > model.MaxQuestions {
		return nil, fmt.Errorf("%w: got %d", ErrQuestionCount, n)
	}
	start := time.Now()

	emails, err := s.Extract(ctx, images)
	if err != nil {
		return nil, err
	}
	res := &Result{EmailText: strings.Join(emails, "\n\n")}

	if s.retriever != nil {
		for _, text := range emails {
			if _, err := s.retriever.Index(ctx, text); err != nil {
				return nil, fmt.Errorf("index email: %w", err)
			}
		}
		docs, err := s.retriever.Retrieve(ctx, res.EmailText)
		if err != nil {
			return nil, fmt.Errorf("retrieve context: %w", err)
		}
		res.Context = retrieval.JoinContext(docs)
	}

	prompt, err := prompts.BuildQuizPrompt(n, res.Context, res.EmailText)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	raw, err := s.model.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate quiz: %w", err)
	}
	q, err := quiz.Parse(raw)
	if err != nil {
		slog.Warn("model reply rejected", "error", err, "reply_chars", len(raw))
		return nil, err
	}
	if q.Len() != n {
		slog.Info("model returned a different question count", "requested", n, "got", q.Len())
	}
	res.Quiz = q
	res.Elapsed = time.Since(start)
	slog.Info("quiz generated",
		"images", len(images), "questions", q.Len(),
		"context_chars", len(res.Context), "elapsed", res.Elapsed)
	return res, nil
}

// DetectImage builds an Image from an upload, checking the content is PNG or JPEG.
func DetectImage(name string, data []byte) (model.Image, error) {
	mt := mimetype.Detect(data)
	if !mt.Is("image/png") && !mt.Is("image/jpeg") {
		return model.Image{}, fmt.Errorf("%w: %s is %s", ErrUnsupportedImage, name, mt.String())
	}
	return model.Image{Name: name, MIMEType: mt.String(), Data: data}, nil
}
