package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitredict/backend/internal/domain"
)

// FixtureStore implements domain.FixtureStore using PostgreSQL.
type FixtureStore struct {
	pool *pgxpool.Pool
}

// NewFixtureStore creates a FixtureStore backed by the given pool.
func NewFixtureStore(pool *pgxpool.Pool) *FixtureStore {
	return &FixtureStore{pool: pool}
}

// Upsert inserts or updates fixtures in one batch. The status CASE keeps
// terminal states sticky: a finished fixture never reverts to a live status
// even if the provider glitches.
func (s *FixtureStore) Upsert(ctx context.Context, fixtures []domain.Fixture) error {
	if len(fixtures) == 0 {
		return nil
	}

	const query = `
		INSERT INTO oracle.fixtures (id, home_team, away_team, league, kickoff, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			league = EXCLUDED.league,
			kickoff = EXCLUDED.kickoff,
			status = CASE
				WHEN oracle.fixtures.status IN ('FT', 'AET', 'PEN') THEN oracle.fixtures.status
				ELSE EXCLUDED.status
			END,
			updated_at = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, f := range fixtures {
		batch.Queue(query, f.ID, f.Home, f.Away, f.League, f.Kickoff, string(f.Status), f.UpdatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range fixtures {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert fixture %s: %w", fixtures[i].ID, err)
		}
	}
	return nil
}

// Get returns one fixture by provider id.
func (s *FixtureStore) Get(ctx context.Context, id string) (*domain.Fixture, error) {
	var f domain.Fixture
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, home_team, away_team, league, kickoff, status, updated_at
		FROM oracle.fixtures WHERE id = $1`, id,
	).Scan(&f.ID, &f.Home, &f.Away, &f.League, &f.Kickoff, &status, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get fixture %s: %w", id, err)
	}
	f.Status = domain.FixtureStatus(status)
	return &f, nil
}

// ListFinishedWithoutResult returns finished fixtures with no stored
// derivation, oldest kickoff first.
func (s *FixtureStore) ListFinishedWithoutResult(ctx context.Context, limit int) ([]domain.Fixture, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.home_team, f.away_team, f.league, f.kickoff, f.status, f.updated_at
		FROM oracle.fixtures f
		LEFT JOIN oracle.fixture_results r ON r.fixture_id = f.id
		WHERE f.status IN ('FT', 'AET', 'PEN') AND r.fixture_id IS NULL
		ORDER BY f.kickoff ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list finished without result: %w", err)
	}
	defer rows.Close()

	var out []domain.Fixture
	for rows.Next() {
		var f domain.Fixture
		var status string
		if err := rows.Scan(&f.ID, &f.Home, &f.Away, &f.League, &f.Kickoff, &status, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.Status = domain.FixtureStatus(status)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.FixtureStore = (*FixtureStore)(nil)
