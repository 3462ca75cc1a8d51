package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitredict/backend/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore backed by the given pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// RecordSettlementDivergence stores a pool settlement that disagrees with
// the derived outcome.
func (s *AuditStore) RecordSettlementDivergence(ctx context.Context, d domain.SettlementDivergence) error {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oracle.settlement_divergences
			(id, pool_id, derived_outcome, observed_outcome, expected_creator, observed_creator)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, d.PoolID, d.DerivedOutcome, d.ObservedOutcome, d.ExpectedCreator, d.ObservedCreator,
	)
	if err != nil {
		return fmt.Errorf("postgres: record settlement divergence pool %d: %w", d.PoolID, err)
	}
	return nil
}

// RecordResolutionDivergence stores a cycle whose on-chain winners differ
// from the resolver's ranking.
func (s *AuditStore) RecordResolutionDivergence(ctx context.Context, d domain.ResolutionDivergence) error {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	expected := int64Slice(d.ExpectedTop)
	observed := int64Slice(d.ObservedTop)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oracle.resolution_divergences
			(id, cycle_id, expected_top, observed_top)
		VALUES ($1, $2, $3, $4)`,
		id, d.CycleID, expected, observed,
	)
	if err != nil {
		return fmt.Errorf("postgres: record resolution divergence cycle %d: %w", d.CycleID, err)
	}
	return nil
}

func int64Slice(v []uint64) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
