package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bitredict/backend/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// Upsert records an indexed bet, idempotent by (tx_hash, log_index) so
// reorg rescans are safe to replay.
func (s *BetStore) Upsert(ctx context.Context, b domain.Bet) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oracle.bets
			(tx_hash, log_index, pool_id, bettor, amount, is_for_outcome, block_number, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET
			pool_id = EXCLUDED.pool_id,
			bettor = EXCLUDED.bettor,
			amount = EXCLUDED.amount,
			is_for_outcome = EXCLUDED.is_for_outcome,
			block_number = EXCLUDED.block_number,
			placed_at = EXCLUDED.placed_at`,
		b.TxHash, b.LogIndex, b.PoolID, b.Bettor, b.Amount.String(),
		b.IsForOutcome, b.BlockNumber, b.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert bet %s/%d: %w", b.TxHash, b.LogIndex, err)
	}
	return nil
}

// ListByPool returns all bets on a pool.
func (s *BetStore) ListByPool(ctx context.Context, poolID uint64) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, log_index, pool_id, bettor, amount, is_for_outcome, block_number, placed_at
		FROM oracle.bets WHERE pool_id = $1
		ORDER BY block_number, log_index`, poolID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for pool %d: %w", poolID, err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		var (
			b      domain.Bet
			amount string
		)
		if err := rows.Scan(&b.TxHash, &b.LogIndex, &b.PoolID, &b.Bettor,
			&amount, &b.IsForOutcome, &b.BlockNumber, &b.PlacedAt); err != nil {
			return nil, err
		}
		b.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("postgres: bet amount %q: %w", amount, err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// Compile-time interface check.
var _ domain.BetStore = (*BetStore)(nil)
