package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/pavelanni/emailtutor/internal/store"
)

// keywordEmbedder maps texts onto a tiny vocabulary so similarity is predictable.
type keywordEmbedder struct {
	fail bool
}

func (k keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if k.fail {
		return nil, errors.New("embedding service down")
	}
	vocab := []string{"water", "school", "hunger"}
	vec := make([]float32, len(vocab))
	for i, w := range vocab {
		for j := 0; j+len(w) <= len(text); j++ {
			if text[j:j+len(w)] == w {
				vec[i]++
			}
		}
	}
	return vec, nil
}

func newTestRetriever(t *testing.T, topK int) (*Retriever, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(keywordEmbedder{}, s, topK), s
}

func TestIndexAssignsUUIDs(t *testing.T) {
	r, s := newTestRetriever(t, 0)
	ctx := context.Background()

	id1, err := r.Index(ctx, "clean water for the village")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	id2, err := r.Index(ctx, "clean water for the village")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if id1 == id2 {
		t.Error("expected distinct IDs for repeated text")
	}
	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("ID %q is not a UUID: %v", id1, err)
	}

	count, _ := s.Count(ctx)
	if count != 2 {
		t.Errorf("expected 2 stored documents (no dedup), got %d", count)
	}
}

func TestRetrieveRanksBySimilarity(t *testing.T) {
	r, _ := newTestRetriever(t, 2)
	ctx := context.Background()

	for _, text := range []string{
		"school supplies for kids",
		"water wells and more water",
		"end hunger this winter",
		"water and school meals",
	} {
		if _, err := r.Index(ctx, text); err != nil {
			t.Fatalf("Index(%q): %v", text, err)
		}
	}

	docs, err := r.Retrieve(ctx, "water")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected top 2, got %d", len(docs))
	}
	if docs[0] != "water wells and more water" {
		t.Errorf("first hit = %q", docs[0])
	}
	if docs[1] != "water and school meals" {
		t.Errorf("second hit = %q", docs[1])
	}
	if got := JoinContext(docs); got != "water wells and more water water and school meals" {
		t.Errorf("JoinContext = %q", got)
	}
}

func TestRetrieveEmptyCollection(t *testing.T) {
	r, _ := newTestRetriever(t, 5)
	docs, err := r.Retrieve(context.Background(), "water")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no context, got %v", docs)
	}
}

func TestEmbedFailure(t *testing.T) {
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()
	r := New(keywordEmbedder{fail: true}, s, 5)

	if _, err := r.Index(context.Background(), "x"); err == nil {
		t.Error("Index should surface embedding errors")
	}
	if _, err := r.Retrieve(context.Background(), "x"); err == nil {
		t.Error("Retrieve should surface embedding errors")
	}
}
