package store

import (
	"context"
	"database/sql"
	"strconv"
)

// SetMetadata upserts a key-value pair in the collection_metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collection_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM collection_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// EmbeddingDimension returns the fixed vector length of the collection, or 0 if
// nothing has been stored yet.
func (s *Store) EmbeddingDimension(ctx context.Context) (int, error) {
	v, err := s.GetMetadata(ctx, metaEmbeddingDim)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.Atoi(v)
}
