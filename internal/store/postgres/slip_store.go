package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitredict/backend/internal/domain"
)

// SlipStore implements domain.SlipStore using PostgreSQL.
type SlipStore struct {
	pool *pgxpool.Pool
}

// NewSlipStore creates a SlipStore backed by the given pool.
func NewSlipStore(pool *pgxpool.Pool) *SlipStore {
	return &SlipStore{pool: pool}
}

type pickJSON struct {
	FixtureID string `json:"fixture_id"`
	Market    string `json:"market"`
	Selection string `json:"selection"`
}

// Upsert records an indexed slip. Picks are immutable after placement, so a
// replayed event overwrites with identical data.
func (s *SlipStore) Upsert(ctx context.Context, slip domain.Slip) error {
	picks := make([]pickJSON, len(slip.Picks))
	for i, p := range slip.Picks {
		picks[i] = pickJSON(p)
	}
	picksJSON, err := json.Marshal(picks)
	if err != nil {
		return fmt.Errorf("postgres: marshal picks: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO oracle.oddyssey_slips (slip_id, cycle_id, player, picks, tx_hash, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slip_id) DO UPDATE SET
			tx_hash = EXCLUDED.tx_hash`,
		slip.SlipID, slip.CycleID, slip.Player, picksJSON, slip.TxHash, slip.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert slip %d: %w", slip.SlipID, err)
	}
	return nil
}

// ListByCycle returns all slips of a cycle ordered by slip id.
func (s *SlipStore) ListByCycle(ctx context.Context, cycleID uint64) ([]domain.Slip, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slip_id, cycle_id, player, picks, tx_hash, placed_at
		FROM oracle.oddyssey_slips
		WHERE cycle_id = $1
		ORDER BY slip_id ASC`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list slips for cycle %d: %w", cycleID, err)
	}
	defer rows.Close()

	var slips []domain.Slip
	for rows.Next() {
		var (
			slip      domain.Slip
			picksJSON []byte
		)
		if err := rows.Scan(&slip.SlipID, &slip.CycleID, &slip.Player,
			&picksJSON, &slip.TxHash, &slip.PlacedAt); err != nil {
			return nil, err
		}
		var picks []pickJSON
		if err := json.Unmarshal(picksJSON, &picks); err != nil {
			return nil, fmt.Errorf("postgres: decode slip %d picks: %w", slip.SlipID, err)
		}
		slip.Picks = make([]domain.Pick, len(picks))
		for i, p := range picks {
			slip.Picks[i] = domain.Pick(p)
		}
		slips = append(slips, slip)
	}
	return slips, rows.Err()
}

// EvaluationStore implements domain.EvaluationStore using PostgreSQL.
type EvaluationStore struct {
	pool *pgxpool.Pool
}

// NewEvaluationStore creates an EvaluationStore backed by the given pool.
func NewEvaluationStore(pool *pgxpool.Pool) *EvaluationStore {
	return &EvaluationStore{pool: pool}
}

// SaveBatch writes every evaluation of a cycle and flips the cycle's
// evaluation_completed flag in the same transaction. A stored final_score
// is never rewritten: re-runs insert with DO NOTHING so the first committed
// batch wins.
func (s *EvaluationStore) SaveBatch(ctx context.Context, cycleID uint64, evals []domain.SlipEvaluation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin evaluation batch: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO oracle.slip_evaluations
			(slip_id, cycle_id, correct_count, final_score, rank, disqualified_overflow, evaluated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (slip_id) DO NOTHING`
	for _, e := range evals {
		batch.Queue(query, e.SlipID, e.CycleID, e.CorrectCount, e.FinalScore,
			e.Rank, e.DisqualifiedOverflow, e.EvaluatedAt)
	}
	br := tx.SendBatch(ctx, batch)
	for range evals {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("postgres: insert evaluation: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close evaluation batch: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE oracle.oddyssey_cycles SET evaluation_completed = TRUE
		WHERE cycle_id = $1`, cycleID); err != nil {
		return fmt.Errorf("postgres: flip evaluation_completed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit evaluation batch: %w", err)
	}
	return nil
}

// ListByCycle returns stored evaluations ranked first.
func (s *EvaluationStore) ListByCycle(ctx context.Context, cycleID uint64) ([]domain.SlipEvaluation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slip_id, cycle_id, correct_count, final_score::text, rank, disqualified_overflow, evaluated_at
		FROM oracle.slip_evaluations
		WHERE cycle_id = $1
		ORDER BY CASE WHEN rank = 0 THEN 1 ELSE 0 END, rank ASC, slip_id ASC`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list evaluations for cycle %d: %w", cycleID, err)
	}
	defer rows.Close()

	var evals []domain.SlipEvaluation
	for rows.Next() {
		var e domain.SlipEvaluation
		if err := rows.Scan(&e.SlipID, &e.CycleID, &e.CorrectCount,
			&e.FinalScore, &e.Rank, &e.DisqualifiedOverflow, &e.EvaluatedAt); err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

// Compile-time interface checks.
var (
	_ domain.SlipStore       = (*SlipStore)(nil)
	_ domain.EvaluationStore = (*EvaluationStore)(nil)
)
