package postgres

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/markets"
)

// ResultStore is the single writer of derived results. It writes the
// fixture_results row and the per-market match_results projection in one
// transaction, and refuses conflicting rewrites.
type ResultStore struct {
	pool *pgxpool.Pool
}

// NewResultStore creates a ResultStore backed by the given pool.
func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// rawScoresJSON is the persisted shape of domain.RawScores.
type rawScoresJSON struct {
	HomeFT  int  `json:"home_ft"`
	AwayFT  int  `json:"away_ft"`
	HomeHT  *int `json:"home_ht,omitempty"`
	AwayHT  *int `json:"away_ht,omitempty"`
	HomeET  *int `json:"home_et,omitempty"`
	AwayET  *int `json:"away_et,omitempty"`
	HomePen *int `json:"home_pen,omitempty"`
	AwayPen *int `json:"away_pen,omitempty"`
}

func encodeRaw(r domain.RawScores) rawScoresJSON {
	return rawScoresJSON{
		HomeFT: r.HomeFT, AwayFT: r.AwayFT,
		HomeHT: r.HomeHT, AwayHT: r.AwayHT,
		HomeET: r.HomeET, AwayET: r.AwayET,
		HomePen: r.HomePen, AwayPen: r.AwayPen,
	}
}

func decodeRaw(j rawScoresJSON) domain.RawScores {
	return domain.RawScores{
		HomeFT: j.HomeFT, AwayFT: j.AwayFT,
		HomeHT: j.HomeHT, AwayHT: j.AwayHT,
		HomeET: j.HomeET, AwayET: j.AwayET,
		HomePen: j.HomePen, AwayPen: j.AwayPen,
	}
}

// SaveResult stores the raw scores and derived outcomes for a fixture.
// Calling twice with identical inputs is a no-op. Calling with different
// inputs for the same fixture fails with domain.ErrResultConflict and does
// not mutate; corrections go through Supersede.
func (s *ResultStore) SaveResult(ctx context.Context, fixtureID string, raw domain.RawScores, outcomes map[string]string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin save result: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := getResultTx(ctx, tx, fixtureID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if existing != nil {
		if existing.Raw.Equal(raw) && outcomeMapsEqual(existing.Outcomes, outcomes) {
			return nil // idempotent re-save
		}
		return fmt.Errorf("postgres: fixture %s: stored %v, offered %v: %w",
			fixtureID, existing.Outcomes, outcomes, domain.ErrResultConflict)
	}

	if err := insertResultTx(ctx, tx, fixtureID, raw, outcomes, 0); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit save result: %w", err)
	}
	return nil
}

// Supersede replaces a stored result, keeping an audit row with both sides.
func (s *ResultStore) Supersede(ctx context.Context, fixtureID string, raw domain.RawScores, outcomes map[string]string, reason string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin supersede: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := getResultTx(ctx, tx, fixtureID)
	if err != nil {
		return err
	}

	oldRaw, _ := json.Marshal(encodeRaw(existing.Raw))
	newRaw, _ := json.Marshal(encodeRaw(raw))
	oldOut, _ := json.Marshal(existing.Outcomes)
	newOut, _ := json.Marshal(outcomes)
	if _, err := tx.Exec(ctx, `
		INSERT INTO oracle.result_supersedes
			(id, fixture_id, seq, old_raw, new_raw, old_outcomes, new_outcomes, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), fixtureID, existing.SupersedeSeq+1,
		oldRaw, newRaw, oldOut, newOut, reason,
	); err != nil {
		return fmt.Errorf("postgres: record supersede: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM oracle.match_results WHERE fixture_id = $1`, fixtureID); err != nil {
		return fmt.Errorf("postgres: clear match results: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM oracle.fixture_results WHERE fixture_id = $1`, fixtureID); err != nil {
		return fmt.Errorf("postgres: clear fixture result: %w", err)
	}
	if err := insertResultTx(ctx, tx, fixtureID, raw, outcomes, existing.SupersedeSeq+1); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit supersede: %w", err)
	}
	return nil
}

func insertResultTx(ctx context.Context, tx pgx.Tx, fixtureID string, raw domain.RawScores, outcomes map[string]string, seq int) error {
	rawJSON, err := json.Marshal(encodeRaw(raw))
	if err != nil {
		return fmt.Errorf("postgres: marshal raw scores: %w", err)
	}
	outJSON, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO oracle.fixture_results (fixture_id, raw_scores, outcomes, supersede_seq)
		VALUES ($1, $2, $3, $4)`,
		fixtureID, rawJSON, outJSON, seq,
	); err != nil {
		return fmt.Errorf("postgres: insert fixture result: %w", err)
	}

	for market, outcome := range outcomes {
		enc := markets.Encode32(outcome)
		if _, err := tx.Exec(ctx, `
			INSERT INTO oracle.match_results (fixture_id, market, outcome, outcome_bytes)
			VALUES ($1, $2, $3, $4)`,
			fixtureID, market, outcome, hex.EncodeToString(enc[:]),
		); err != nil {
			return fmt.Errorf("postgres: insert match result %s/%s: %w", fixtureID, market, err)
		}
	}
	return nil
}

func getResultTx(ctx context.Context, tx pgx.Tx, fixtureID string) (*domain.FixtureResult, error) {
	var (
		rawJSON, outJSON []byte
		seq              int
		storedAt         time.Time
	)
	err := tx.QueryRow(ctx, `
		SELECT raw_scores, outcomes, supersede_seq, stored_at
		FROM oracle.fixture_results WHERE fixture_id = $1`, fixtureID,
	).Scan(&rawJSON, &outJSON, &seq, &storedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get result %s: %w", fixtureID, err)
	}
	return decodeResult(fixtureID, rawJSON, outJSON, seq, storedAt)
}

// Get returns the stored result for a fixture.
func (s *ResultStore) Get(ctx context.Context, fixtureID string) (*domain.FixtureResult, error) {
	var (
		rawJSON, outJSON []byte
		seq              int
		storedAt         time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT raw_scores, outcomes, supersede_seq, stored_at
		FROM oracle.fixture_results WHERE fixture_id = $1`, fixtureID,
	).Scan(&rawJSON, &outJSON, &seq, &storedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get result %s: %w", fixtureID, err)
	}
	return decodeResult(fixtureID, rawJSON, outJSON, seq, storedAt)
}

func decodeResult(fixtureID string, rawJSON, outJSON []byte, seq int, storedAt time.Time) (*domain.FixtureResult, error) {
	var rj rawScoresJSON
	if err := json.Unmarshal(rawJSON, &rj); err != nil {
		return nil, fmt.Errorf("postgres: decode raw scores %s: %w", fixtureID, err)
	}
	outcomes := map[string]string{}
	if err := json.Unmarshal(outJSON, &outcomes); err != nil {
		return nil, fmt.Errorf("postgres: decode outcomes %s: %w", fixtureID, err)
	}
	return &domain.FixtureResult{
		FixtureID:    fixtureID,
		Raw:          decodeRaw(rj),
		Outcomes:     outcomes,
		SupersedeSeq: seq,
		StoredAt:     storedAt,
	}, nil
}

// Outcome returns the canonical code for one market family from the
// match_results projection.
func (s *ResultStore) Outcome(ctx context.Context, fixtureID, market string) (string, error) {
	var outcome string
	err := s.pool.QueryRow(ctx, `
		SELECT outcome FROM oracle.match_results
		WHERE fixture_id = $1 AND market = $2`, fixtureID, market,
	).Scan(&outcome)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres: get outcome %s/%s: %w", fixtureID, market, err)
	}
	return outcome, nil
}

func outcomeMapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Compile-time interface check.
var _ domain.ResultStore = (*ResultStore)(nil)
