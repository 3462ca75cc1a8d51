package domain

import (
	"context"
	"time"
)

// FixtureStore persists fixtures ingested from the sports provider.
type FixtureStore interface {
	// Upsert inserts or updates fixtures by provider id. Status writes are
	// monotonic: a finished fixture is never reverted to a live status.
	Upsert(ctx context.Context, fixtures []Fixture) error
	Get(ctx context.Context, id string) (*Fixture, error)
	// ListFinishedWithoutResult returns finished fixtures that have no
	// stored derivation yet, oldest kickoff first.
	ListFinishedWithoutResult(ctx context.Context, limit int) ([]Fixture, error)
}

// ResultStore is the single writer of derived results. SaveResult is
// idempotent: identical inputs are a no-op, conflicting derived values for
// the same fixture fail with ErrResultConflict and do not mutate.
type ResultStore interface {
	SaveResult(ctx context.Context, fixtureID string, raw RawScores, outcomes map[string]string) error
	Get(ctx context.Context, fixtureID string) (*FixtureResult, error)
	// Outcome returns the canonical code for one market family, or
	// ErrNotFound when the fixture has no stored result or the market is
	// unavailable for it.
	Outcome(ctx context.Context, fixtureID, market string) (string, error)
	// Supersede replaces a stored result with an explicit audit trail.
	Supersede(ctx context.Context, fixtureID string, raw RawScores, outcomes map[string]string, reason string) error
}

// PoolStore persists pools projected from chain events and their settlement
// bookkeeping.
type PoolStore interface {
	UpsertFromChain(ctx context.Context, p Pool) error
	Get(ctx context.Context, poolID uint64) (*Pool, error)
	// ListSettleable returns unsettled, unhalted pools whose event end has
	// passed, oldest first.
	ListSettleable(ctx context.Context, now time.Time, limit int) ([]Pool, error)
	MarkSettled(ctx context.Context, poolID uint64, creatorSideWon bool, result string, ts time.Time) error
	MarkRefunded(ctx context.Context, poolID uint64, reason string) error
	// MarkHalted parks a pool after a non-whitelisted revert; it is skipped
	// by ListSettleable until an operator clears it.
	MarkHalted(ctx context.Context, poolID uint64, reason string) error
}

// BetStore persists indexed bets. Upsert is idempotent by (tx_hash,
// log_index).
type BetStore interface {
	Upsert(ctx context.Context, b Bet) error
	ListByPool(ctx context.Context, poolID uint64) ([]Bet, error)
}

// CycleStore persists Oddyssey cycles and their resolution state.
type CycleStore interface {
	Upsert(ctx context.Context, c Cycle) error
	Get(ctx context.Context, id uint64) (*Cycle, error)
	// ListResolvable returns ended cycles that are not both resolved and
	// evaluated, so slips of a cycle resolved out of band still get scored.
	ListResolvable(ctx context.Context, now time.Time, limit int) ([]Cycle, error)
	MarkPartialResolution(ctx context.Context, id uint64) error
	MarkResolved(ctx context.Context, id uint64, at time.Time) error
}

// SlipStore persists indexed slips.
type SlipStore interface {
	Upsert(ctx context.Context, s Slip) error
	ListByCycle(ctx context.Context, cycleID uint64) ([]Slip, error)
}

// EvaluationStore persists slip evaluations. SaveBatch writes all
// evaluations of a cycle and flips the cycle's evaluation_completed flag in
// the same transaction; a stored final_score is never rewritten.
type EvaluationStore interface {
	SaveBatch(ctx context.Context, cycleID uint64, evals []SlipEvaluation) error
	ListByCycle(ctx context.Context, cycleID uint64) ([]SlipEvaluation, error)
}

// AuditStore records divergences and result corrections.
type AuditStore interface {
	RecordSettlementDivergence(ctx context.Context, d SettlementDivergence) error
	RecordResolutionDivergence(ctx context.Context, d ResolutionDivergence) error
}

// CursorStore persists the indexer's last processed block per stream.
type CursorStore interface {
	Get(ctx context.Context, name string) (uint64, error)
	Set(ctx context.Context, name string, block uint64) error
}

// LockManager provides cross-process mutual exclusion per entity key
// (pool:<id>, cycle:<id>, ingest:<window>). Acquire returns ErrLockHeld when
// another holder owns the key; the returned unlock function is safe to call
// more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string) (func(), error)
}
