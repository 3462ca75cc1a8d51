// Package settlement drives guided pools from event end to on-chain
// settlement: derive the outcome, make sure the oracle holds it, relay the
// settlement call, then reconcile the database against what the chain
// actually recorded.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/bitredict/backend/internal/chain/contracts"
	"github.com/bitredict/backend/internal/config"
	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/markets"
	"github.com/bitredict/backend/internal/metrics"
	"github.com/bitredict/backend/internal/notify"
)

// OracleContract is the read surface of the guided oracle.
type OracleContract interface {
	OracleBot(ctx context.Context) (common.Address, error)
	GetOutcome(ctx context.Context, marketID [32]byte) (bool, [32]byte, error)
}

// PoolContract reads pool state from the chain.
type PoolContract interface {
	GetPool(ctx context.Context, poolID uint64) (*contracts.PoolState, error)
}

// TxSender signs and submits oracle bot transactions.
type TxSender interface {
	Address() common.Address
	Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
}

// Alerter is the operator notification hook.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Engine settles pools. All chain writes go through the guided oracle's
// executeCall relay, so the contract sees the oracle bot as caller.
type Engine struct {
	pools  domain.PoolStore
	bets   domain.BetStore
	results domain.ResultStore
	audits domain.AuditStore
	locks  domain.LockManager

	oracle   OracleContract
	poolCore PoolContract
	sender   TxSender
	alerts   Alerter

	poolCoreAddr common.Address
	oracleAddr   common.Address

	cfg    config.SettlementConfig
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	retries map[uint64]retryState
}

type retryState struct {
	attempts int
	next     time.Time
}

// New creates a settlement engine.
func New(
	pools domain.PoolStore,
	bets domain.BetStore,
	results domain.ResultStore,
	audits domain.AuditStore,
	locks domain.LockManager,
	oracle OracleContract,
	poolCore PoolContract,
	sender TxSender,
	alerts Alerter,
	poolCoreAddr, oracleAddr common.Address,
	cfg config.SettlementConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		pools:        pools,
		bets:         bets,
		results:      results,
		audits:       audits,
		locks:        locks,
		oracle:       oracle,
		poolCore:     poolCore,
		sender:       sender,
		alerts:       alerts,
		poolCoreAddr: poolCoreAddr,
		oracleAddr:   oracleAddr,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "settlement")),
		now:          time.Now,
		retries:      make(map[uint64]retryState),
	}
}

// VerifyAuthorization checks that the configured signer is the oracle bot
// registered on the guided oracle contract. A mismatch would make every
// submitOutcome revert, so it is fatal-config.
func (e *Engine) VerifyAuthorization(ctx context.Context) error {
	bot, err := e.oracle.OracleBot(ctx)
	if err != nil {
		return err
	}
	if bot != e.sender.Address() {
		return domain.FatalConfig(fmt.Errorf(
			"settlement: signer %s is not the registered oracle bot %s",
			e.sender.Address().Hex(), bot.Hex()))
	}
	return nil
}

// Run scans for settleable pools until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Tick())
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "settlement loop started",
		slog.Duration("tick", e.cfg.Tick()),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep settles every due pool once. Transient failures push the pool onto a
// capped exponential backoff schedule instead of hot-looping.
func (e *Engine) Sweep(ctx context.Context) {
	batch := e.cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	pools, err := e.pools.ListSettleable(ctx, e.now(), batch)
	if err != nil {
		e.logger.ErrorContext(ctx, "list settleable pools", slog.String("error", err.Error()))
		return
	}

	for _, p := range pools {
		if !e.due(p.PoolID) {
			continue
		}
		err := e.SettleOne(ctx, p.PoolID)
		switch {
		case err == nil:
			e.clearRetry(p.PoolID)
		case errors.Is(err, domain.ErrLockHeld):
			metrics.SettlementAttempts.WithLabelValues("lock_held").Inc()
		case domain.ClassOf(err) == domain.ClassDataIncomplete:
			metrics.SettlementAttempts.WithLabelValues("deferred").Inc()
		case domain.ClassOf(err) == domain.ClassTransient:
			metrics.SettlementAttempts.WithLabelValues("transient").Inc()
			e.scheduleRetry(p.PoolID)
			e.logger.WarnContext(ctx, "settlement attempt failed, will retry",
				slog.Uint64("pool_id", p.PoolID),
				slog.String("error", err.Error()),
			)
		default:
			metrics.SettlementAttempts.WithLabelValues("failed").Inc()
			e.logger.ErrorContext(ctx, "settlement attempt failed",
				slog.Uint64("pool_id", p.PoolID),
				slog.String("class", domain.ClassOf(err).String()),
				slog.String("error", err.Error()),
			)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (e *Engine) due(poolID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.retries[poolID]
	return !ok || !e.now().Before(st.next)
}

func (e *Engine) scheduleRetry(poolID uint64) {
	base := time.Duration(e.cfg.BackoffBaseSeconds) * time.Second
	if base <= 0 {
		base = 2 * time.Second
	}
	cap := time.Duration(e.cfg.BackoffCapSeconds) * time.Second
	if cap <= 0 {
		cap = 10 * time.Minute
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.retries[poolID]
	delay := base << uint(st.attempts)
	if delay > cap || delay <= 0 {
		delay = cap
	}
	e.retries[poolID] = retryState{attempts: st.attempts + 1, next: e.now().Add(delay)}
}

func (e *Engine) clearRetry(poolID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.retries, poolID)
}

// SettleOne runs the full settlement workflow for a single pool under its
// advisory lock. It is safe to call concurrently from multiple processes:
// at most one performs chain writes, the rest back off with ErrLockHeld.
func (e *Engine) SettleOne(ctx context.Context, poolID uint64) error {
	unlock, err := e.locks.Acquire(ctx, fmt.Sprintf("pool:%d", poolID))
	if err != nil {
		return err
	}
	defer unlock()

	pool, err := e.pools.Get(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.IsSettled || pool.SettlementHalted {
		return nil
	}

	state, err := e.poolCore.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if state.Settled {
		// Someone else already settled on chain; absorb their result.
		return e.reconcile(ctx, pool, state)
	}

	outcome, err := e.results.Outcome(ctx, pool.FixtureID, pool.Market)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		if e.now().After(pool.ArbitrationDeadline(e.cfg.ArbitrationWindow())) {
			return e.refund(ctx, pool, "outcome underivable past arbitration deadline")
		}
		return domain.DataIncomplete(fmt.Errorf("settlement: pool %d: no derived outcome for fixture %s market %s yet",
			poolID, pool.FixtureID, pool.Market))
	default:
		return err
	}

	if err := e.ensureOracleOutcome(ctx, pool, outcome); err != nil {
		return err
	}
	if err := e.settleOnChain(ctx, pool); err != nil {
		return err
	}

	state, err = e.poolCore.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if !state.Settled {
		return domain.Transient(fmt.Errorf("settlement: pool %d still unsettled after confirmed call", poolID))
	}
	return e.reconcile(ctx, pool, state)
}

// ensureOracleOutcome submits the derived outcome unless the oracle already
// holds one. A concurrent submission losing the race is fine; the stored
// value wins either way.
func (e *Engine) ensureOracleOutcome(ctx context.Context, pool *domain.Pool, outcome string) error {
	isSet, _, err := e.oracle.GetOutcome(ctx, pool.MarketID)
	if err != nil {
		return err
	}
	if isSet {
		return nil
	}

	data, err := contracts.PackSubmitOutcome(pool.MarketID, markets.Encode32(outcome))
	if err != nil {
		return fmt.Errorf("settlement: pack submitOutcome: %w", err)
	}
	_, err = e.sender.Send(ctx, e.oracleAddr, data)
	switch {
	case err == nil:
		metrics.TxSent.WithLabelValues("submitOutcome", "ok").Inc()
		e.logger.InfoContext(ctx, "outcome submitted",
			slog.Uint64("pool_id", pool.PoolID),
			slog.String("fixture_id", pool.FixtureID),
			slog.String("market", pool.Market),
			slog.String("outcome", outcome),
		)
		return nil
	case errors.Is(err, domain.ErrAlreadyExists):
		// Lost a race with another writer; proceed with the stored value.
		return nil
	default:
		metrics.TxSent.WithLabelValues("submitOutcome", "error").Inc()
		return e.maybeHalt(ctx, pool, err)
	}
}

// settleOnChain relays settlePoolAutomatically through the oracle contract.
func (e *Engine) settleOnChain(ctx context.Context, pool *domain.Pool) error {
	inner, err := contracts.PackSettlePoolAutomatically(pool.PoolID)
	if err != nil {
		return fmt.Errorf("settlement: pack settlePoolAutomatically: %w", err)
	}
	data, err := contracts.PackExecuteCall(e.poolCoreAddr, inner)
	if err != nil {
		return fmt.Errorf("settlement: pack executeCall: %w", err)
	}

	_, err = e.sender.Send(ctx, e.oracleAddr, data)
	switch {
	case err == nil:
		metrics.TxSent.WithLabelValues("settlePool", "ok").Inc()
		return nil
	case errors.Is(err, domain.ErrAlreadySettled):
		// Whitelisted revert: a concurrent settler won. Reconcile below.
		return nil
	default:
		metrics.TxSent.WithLabelValues("settlePool", "error").Inc()
		return e.maybeHalt(ctx, pool, err)
	}
}

// maybeHalt parks the pool on a non-whitelisted revert and alerts the
// operator; every other class passes through for the sweep to handle.
func (e *Engine) maybeHalt(ctx context.Context, pool *domain.Pool, err error) error {
	if domain.ClassOf(err) != domain.ClassPermanentChain {
		return err
	}
	if herr := e.pools.MarkHalted(ctx, pool.PoolID, err.Error()); herr != nil {
		e.logger.ErrorContext(ctx, "mark pool halted", slog.Uint64("pool_id", pool.PoolID), slog.String("error", herr.Error()))
	}
	metrics.SettlementAttempts.WithLabelValues("halted").Inc()
	_ = e.alerts.Notify(ctx, notify.EventSettlementHalted,
		"Pool settlement halted",
		fmt.Sprintf("pool %d (fixture %s, market %s) halted: %v", pool.PoolID, pool.FixtureID, pool.Market, err))
	return err
}

// reconcile writes the chain's settled state into the database. The chain is
// authoritative: a mismatch with the local derivation is audited, never
// overwritten.
func (e *Engine) reconcile(ctx context.Context, pool *domain.Pool, state *contracts.PoolState) error {
	chainOutcome := markets.Decode32(state.Result)

	derived, derr := e.results.Outcome(ctx, pool.FixtureID, pool.Market)
	if derr == nil {
		expectedCreator := derived != pool.PredictedOutcome
		if derived != chainOutcome || expectedCreator != state.CreatorSideWon {
			metrics.SettlementDivergences.Inc()
			d := domain.SettlementDivergence{
				ID:              uuid.NewString(),
				PoolID:          pool.PoolID,
				DerivedOutcome:  derived,
				ObservedOutcome: chainOutcome,
				ExpectedCreator: expectedCreator,
				ObservedCreator: state.CreatorSideWon,
				CreatedAt:       e.now(),
			}
			if aerr := e.audits.RecordSettlementDivergence(ctx, d); aerr != nil {
				return aerr
			}
			e.logger.WarnContext(ctx, "settlement divergence",
				slog.Uint64("pool_id", pool.PoolID),
				slog.String("derived", derived),
				slog.String("observed", chainOutcome),
			)
			_ = e.alerts.Notify(ctx, notify.EventDivergence,
				"Settlement divergence",
				fmt.Sprintf("pool %d: derived %q but chain settled %q", pool.PoolID, derived, chainOutcome))
		}
	}

	if err := e.pools.MarkSettled(ctx, pool.PoolID, state.CreatorSideWon, chainOutcome, e.now()); err != nil {
		return err
	}
	metrics.SettlementAttempts.WithLabelValues("settled").Inc()

	betCount := 0
	if bets, berr := e.bets.ListByPool(ctx, pool.PoolID); berr == nil {
		betCount = len(bets)
	}
	e.logger.InfoContext(ctx, "pool settled",
		slog.Uint64("pool_id", pool.PoolID),
		slog.String("result", chainOutcome),
		slog.Bool("creator_side_won", state.CreatorSideWon),
		slog.Int("bets", betCount),
	)
	return nil
}

// refund relays refundPool for a pool whose market can never be derived.
func (e *Engine) refund(ctx context.Context, pool *domain.Pool, reason string) error {
	inner, err := contracts.PackRefundPool(pool.PoolID)
	if err != nil {
		return fmt.Errorf("settlement: pack refundPool: %w", err)
	}
	data, err := contracts.PackExecuteCall(e.poolCoreAddr, inner)
	if err != nil {
		return fmt.Errorf("settlement: pack executeCall: %w", err)
	}

	_, err = e.sender.Send(ctx, e.oracleAddr, data)
	switch {
	case err == nil, errors.Is(err, domain.ErrAlreadySettled):
	default:
		metrics.TxSent.WithLabelValues("refundPool", "error").Inc()
		return e.maybeHalt(ctx, pool, err)
	}
	metrics.TxSent.WithLabelValues("refundPool", "ok").Inc()

	if err := e.pools.MarkRefunded(ctx, pool.PoolID, reason); err != nil {
		return err
	}
	metrics.SettlementAttempts.WithLabelValues("refunded").Inc()
	e.logger.InfoContext(ctx, "pool refunded",
		slog.Uint64("pool_id", pool.PoolID),
		slog.String("reason", reason),
	)
	_ = e.alerts.Notify(ctx, notify.EventPoolRefunded,
		"Pool refunded",
		fmt.Sprintf("pool %d (fixture %s, market %s): %s", pool.PoolID, pool.FixtureID, pool.Market, reason))
	return nil
}
