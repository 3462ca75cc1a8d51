package postgres

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitredict/backend/internal/domain"
)

// PoolStore implements domain.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a PoolStore backed by the given pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

const poolSelectCols = `pool_id, creator, odds, predicted_outcome, market_id,
	fixture_id, market, oracle_type, event_start, event_end, betting_end,
	status, is_settled, creator_side_won, result, result_timestamp,
	settlement_halted, halt_reason`

// UpsertFromChain inserts or refreshes a pool projected from chain events.
// Settlement bookkeeping columns are preserved on conflict; the indexer only
// owns the identity and schedule fields.
func (s *PoolStore) UpsertFromChain(ctx context.Context, p domain.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oracle.pools (
			pool_id, creator, odds, predicted_outcome, market_id,
			fixture_id, market, oracle_type, event_start, event_end,
			betting_end, status, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (pool_id) DO UPDATE SET
			creator = EXCLUDED.creator,
			odds = EXCLUDED.odds,
			predicted_outcome = EXCLUDED.predicted_outcome,
			event_start = EXCLUDED.event_start,
			event_end = EXCLUDED.event_end,
			betting_end = EXCLUDED.betting_end,
			updated_at = NOW()`,
		p.PoolID, p.Creator, p.Odds, p.PredictedOutcome,
		hex.EncodeToString(p.MarketID[:]), p.FixtureID, p.Market,
		int16(p.OracleType), p.EventStart, p.EventEnd, p.BettingEnd,
		string(p.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pool %d: %w", p.PoolID, err)
	}
	return nil
}

// Get returns one pool by id.
func (s *PoolStore) Get(ctx context.Context, poolID uint64) (*domain.Pool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolSelectCols+` FROM oracle.pools WHERE pool_id = $1`, poolID)
	p, err := scanPool(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get pool %d: %w", poolID, err)
	}
	return p, nil
}

// ListSettleable returns unsettled, unhalted pools whose event end has
// passed, oldest first.
func (s *PoolStore) ListSettleable(ctx context.Context, now time.Time, limit int) ([]domain.Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+poolSelectCols+` FROM oracle.pools
		WHERE NOT is_settled AND NOT settlement_halted
		  AND status <> 'REFUNDED'
		  AND event_end < $1
		ORDER BY event_end ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settleable pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

// MarkSettled records the post-settlement chain state for a pool. The values
// written here are whatever the contract reported, divergences included.
func (s *PoolStore) MarkSettled(ctx context.Context, poolID uint64, creatorSideWon bool, result string, ts time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE oracle.pools SET
			is_settled = TRUE,
			status = 'SETTLED',
			creator_side_won = $2,
			result = $3,
			result_timestamp = $4,
			updated_at = NOW()
		WHERE pool_id = $1`, poolID, creatorSideWon, result, ts)
	if err != nil {
		return fmt.Errorf("postgres: mark pool %d settled: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkRefunded moves a pool to REFUNDED, terminal like SETTLED.
func (s *PoolStore) MarkRefunded(ctx context.Context, poolID uint64, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE oracle.pools SET
			status = 'REFUNDED',
			is_settled = TRUE,
			halt_reason = $2,
			result_timestamp = NOW(),
			updated_at = NOW()
		WHERE pool_id = $1`, poolID, reason)
	if err != nil {
		return fmt.Errorf("postgres: mark pool %d refunded: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkHalted parks a pool after a non-whitelisted revert.
func (s *PoolStore) MarkHalted(ctx context.Context, poolID uint64, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE oracle.pools SET
			settlement_halted = TRUE,
			halt_reason = $2,
			updated_at = NOW()
		WHERE pool_id = $1`, poolID, reason)
	if err != nil {
		return fmt.Errorf("postgres: mark pool %d halted: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPool(row pgx.Row) (*domain.Pool, error) {
	var (
		p          domain.Pool
		marketHex  string
		oracleType int16
		status     string
	)
	err := row.Scan(
		&p.PoolID, &p.Creator, &p.Odds, &p.PredictedOutcome, &marketHex,
		&p.FixtureID, &p.Market, &oracleType, &p.EventStart, &p.EventEnd,
		&p.BettingEnd, &status, &p.IsSettled, &p.CreatorSideWon, &p.Result,
		&p.ResultTimestamp, &p.SettlementHalted, &p.HaltReason,
	)
	if err != nil {
		return nil, err
	}
	p.OracleType = domain.OracleType(oracleType)
	p.Status = domain.PoolStatus(status)
	if b, decErr := hex.DecodeString(marketHex); decErr == nil && len(b) == 32 {
		copy(p.MarketID[:], b)
	}
	return &p, nil
}

// Compile-time interface check.
var _ domain.PoolStore = (*PoolStore)(nil)
