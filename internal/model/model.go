package model

import (
	"context"
	"time"
)

// QuizQuestion is a single multiple-choice evaluation question as produced by the model.
type QuizQuestion struct {
	Question      string   `json:"question" validate:"required"`
	Options       []string `json:"options" validate:"len=4,dive,required"`
	CorrectAnswer string   `json:"correct_answer" validate:"required"`
	Explanation   string   `json:"explanation" validate:"required"`
}

// Quiz is an ordered, immutable list of questions.
type Quiz []QuizQuestion

// Len returns the number of questions.
func (q Quiz) Len() int { return len(q) }

// Image is an uploaded email screenshot.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Document is an extracted email stored in the vector collection.
type Document struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredDocument is a query hit with its cosine similarity to the query vector.
type ScoredDocument struct {
	Document
	Similarity float64 `json:"similarity"`
}

// Question count bounds for a generated quiz.
const (
	MinQuestions     = 3
	MaxQuestions     = 10
	DefaultQuestions = 5
)

// TutorConfig holds runtime parameters set via CLI flags.
type TutorConfig struct {
	DefaultQuestions int
	MaxUploadBytes   int64 // limit for one multipart request
	BasePath         string
	SecureCookies    bool
	SessionSecret    []byte
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
