package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitredict/backend/internal/domain"
)

// CursorStore implements domain.CursorStore using PostgreSQL.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a CursorStore backed by the given pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Get returns the last processed block for a stream, or ErrNotFound when
// the stream has never been indexed.
func (s *CursorStore) Get(ctx context.Context, name string) (uint64, error) {
	var block int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_block FROM oracle.indexer_cursor WHERE name = $1`, name,
	).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get cursor %s: %w", name, err)
	}
	return uint64(block), nil
}

// Set persists the last processed block for a stream.
func (s *CursorStore) Set(ctx context.Context, name string, block uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oracle.indexer_cursor (name, last_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			last_block = EXCLUDED.last_block,
			updated_at = NOW()`, name, int64(block))
	if err != nil {
		return fmt.Errorf("postgres: set cursor %s: %w", name, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.CursorStore = (*CursorStore)(nil)
