// Package retrieval grounds quiz generation in previously uploaded emails: every
// extracted email is embedded and stored, and the most similar stored emails are
// returned as context for the next prompt.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/emailtutor/internal/model"
)

// DefaultTopK is the number of stored emails used as context.
const DefaultTopK = 5

// Embedder computes a fixed-dimension vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Collection stores documents and answers nearest-neighbour queries.
type Collection interface {
	AddDocument(ctx context.Context, doc model.Document) error
	Query(ctx context.Context, embedding []float32, k int) ([]model.ScoredDocument, error)
}

// Retriever pairs an embedder with a vector collection.
type Retriever struct {
	embedder   Embedder
	collection Collection
	topK       int
}

// New creates a Retriever. A non-positive topK falls back to DefaultTopK.
func New(e Embedder, c Collection, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: e, collection: c, topK: topK}
}

// Index embeds text and stores it under a fresh UUID, which it returns.
func (r *Retriever) Index(ctx context.Context, text string) (string, error) {
	emb, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed document: %w", err)
	}
	id := uuid.NewString()
	err = r.collection.AddDocument(ctx, model.Document{
		ID:        id,
		Content:   text,
		Embedding: emb,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("store document: %w", err)
	}
	slog.Debug("indexed email", "id", id, "dim", len(emb))
	return id, nil
}

// Retrieve returns the contents of the stored documents nearest to text, most
// similar first.
func (r *Retriever) Retrieve(ctx context.Context, text string) ([]string, error) {
	emb, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.collection.Query(ctx, emb, r.topK)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	docs := make([]string, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, h.Content)
	}
	slog.Debug("retrieved context", "hits", len(docs))
	return docs, nil
}

// JoinContext joins retrieved documents with single spaces.
func JoinContext(docs []string) string {
	return strings.Join(docs, " ")
}
