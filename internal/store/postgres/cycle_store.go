package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitredict/backend/internal/domain"
)

// CycleStore implements domain.CycleStore using PostgreSQL.
type CycleStore struct {
	pool *pgxpool.Pool
}

// NewCycleStore creates a CycleStore backed by the given pool.
func NewCycleStore(pool *pgxpool.Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

// cycleMatchJSON is the persisted shape of one frozen snapshot entry.
type cycleMatchJSON struct {
	FixtureID string    `json:"fixture_id"`
	Kickoff   time.Time `json:"kickoff"`
	OddsHome  uint64    `json:"odds_home"`
	OddsDraw  uint64    `json:"odds_draw"`
	OddsAway  uint64    `json:"odds_away"`
	OddsOver  uint64    `json:"odds_over"`
	OddsUnder uint64    `json:"odds_under"`
}

// Upsert inserts or refreshes a cycle. The matches snapshot is written only
// on insert: it is frozen at cycle creation and must never drift.
func (s *CycleStore) Upsert(ctx context.Context, c domain.Cycle) error {
	matches := make([]cycleMatchJSON, len(c.Matches))
	for i, m := range c.Matches {
		matches[i] = cycleMatchJSON(m)
	}
	matchesJSON, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("postgres: marshal cycle matches: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO oracle.oddyssey_cycles (cycle_id, matches_data, cycle_end_time, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (cycle_id) DO UPDATE SET
			cycle_end_time = EXCLUDED.cycle_end_time`,
		c.ID, matchesJSON, c.CycleEndTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert cycle %d: %w", c.ID, err)
	}
	return nil
}

const cycleSelectCols = `cycle_id, matches_data, cycle_end_time, is_resolved,
	evaluation_completed, partial_resolution, resolved_at, created_at`

// Get returns one cycle by id.
func (s *CycleStore) Get(ctx context.Context, id uint64) (*domain.Cycle, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+cycleSelectCols+` FROM oracle.oddyssey_cycles WHERE cycle_id = $1`, id)
	c, err := scanCycle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get cycle %d: %w", id, err)
	}
	return c, nil
}

// ListResolvable returns cycles whose end time has passed and whose work is
// not finished. A cycle resolved on-chain out of band (the indexer projects
// CycleResolved before the resolver runs) still needs its slips evaluated,
// so only the is_resolved + evaluation_completed pair excludes a cycle.
func (s *CycleStore) ListResolvable(ctx context.Context, now time.Time, limit int) ([]domain.Cycle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+cycleSelectCols+` FROM oracle.oddyssey_cycles
		WHERE NOT (is_resolved AND evaluation_completed) AND cycle_end_time < $1
		ORDER BY cycle_end_time ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolvable cycles: %w", err)
	}
	defer rows.Close()

	var cycles []domain.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *c)
	}
	return cycles, rows.Err()
}

// MarkPartialResolution flags a cycle as proceeding with void markets.
func (s *CycleStore) MarkPartialResolution(ctx context.Context, id uint64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE oracle.oddyssey_cycles SET partial_resolution = TRUE
		WHERE cycle_id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark cycle %d partial: %w", id, err)
	}
	return nil
}

// MarkResolved records on-chain resolution of a cycle.
func (s *CycleStore) MarkResolved(ctx context.Context, id uint64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE oracle.oddyssey_cycles SET
			is_resolved = TRUE,
			resolved_at = $2
		WHERE cycle_id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("postgres: mark cycle %d resolved: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanCycle(row pgx.Row) (*domain.Cycle, error) {
	var (
		c           domain.Cycle
		matchesJSON []byte
	)
	err := row.Scan(&c.ID, &matchesJSON, &c.CycleEndTime, &c.IsResolved,
		&c.EvaluationCompleted, &c.PartialResolution, &c.ResolvedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	var matches []cycleMatchJSON
	if err := json.Unmarshal(matchesJSON, &matches); err != nil {
		return nil, fmt.Errorf("postgres: decode cycle %d matches: %w", c.ID, err)
	}
	c.Matches = make([]domain.CycleMatch, len(matches))
	for i, m := range matches {
		c.Matches[i] = domain.CycleMatch(m)
	}
	return &c, nil
}

// Compile-time interface check.
var _ domain.CycleStore = (*CycleStore)(nil)
