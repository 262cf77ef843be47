package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pavelanni/emailtutor/internal/model"

	_ "modernc.org/sqlite"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// dimension fixed by the first stored document.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

const metaEmbeddingDim = "embedding_dim"

// Store is a vector collection of extracted emails backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath. ":memory:" gives a collection that lives as
// long as the process.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every new connection to :memory: is a separate empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS collection_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddDocument stores a document and its embedding. The first document fixes the
// collection's embedding dimension.
func (s *Store) AddDocument(ctx context.Context, doc model.Document) error {
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document %s has no embedding", doc.ID)
	}
	if err := s.checkDimension(ctx, len(doc.Embedding)); err != nil {
		return err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, content, embedding, created_at) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.Content, encodeVector(doc.Embedding), doc.CreatedAt,
	)
	return err
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// Query returns up to k documents ranked by cosine similarity to embedding,
// most similar first. k larger than the collection is clamped.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]model.ScoredDocument, error) {
	if k <= 0 {
		return nil, nil
	}
	dim, err := s.EmbeddingDimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if dim != len(embedding) {
		return nil, fmt.Errorf("%w: collection has %d, got %d", ErrDimensionMismatch, dim, len(embedding))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, embedding, created_at FROM documents ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []model.ScoredDocument
	for rows.Next() {
		var doc model.Document
		var blob []byte
		if err := rows.Scan(&doc.ID, &doc.Content, &blob, &doc.CreatedAt); err != nil {
			return nil, err
		}
		doc.Embedding = decodeVector(blob)
		hits = append(hits, model.ScoredDocument{
			Document:   doc,
			Similarity: cosine(embedding, doc.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// checkDimension records n as the collection dimension if none is set yet, and
// rejects any other length afterwards.
func (s *Store) checkDimension(ctx context.Context, n int) error {
	dim, err := s.EmbeddingDimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		return s.SetMetadata(ctx, metaEmbeddingDim, fmt.Sprint(n))
	}
	if dim != n {
		return fmt.Errorf("%w: collection has %d, got %d", ErrDimensionMismatch, dim, n)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
