// Package app wires the component dependencies and runs each binary's
// long-lived mode or one-shot operator command.
package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bitredict/backend/internal/config"
	"github.com/bitredict/backend/internal/indexer"
	"github.com/bitredict/backend/internal/ingestor"
	"github.com/bitredict/backend/internal/metrics"
	"github.com/bitredict/backend/internal/oddyssey"
	"github.com/bitredict/backend/internal/settlement"
)

// App owns the configuration and logger shared by all run modes.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// runWithOps runs the component loop next to the ops listener and blocks
// until both drain after context cancellation.
func (a *App) runWithOps(ctx context.Context, deps *Dependencies, loop func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Ops.ListenAddr != "" {
		ops := metrics.NewServer(a.cfg.Ops.ListenAddr, deps.Health, a.logger)
		g.Go(ops.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ops.Shutdown(shutCtx)
		})
	}

	g.Go(func() error { return loop(ctx) })
	return g.Wait()
}

// newIngestor builds the ingestor over the wired dependencies. The cache
// and archiver stay nil interfaces when not configured.
func (a *App) newIngestor(deps *Dependencies) *ingestor.Ingestor {
	var cache ingestor.SnapshotCache
	if deps.FixtureCache != nil {
		cache = deps.FixtureCache
	}
	var archiver ingestor.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	return ingestor.New(
		deps.Provider, deps.Fixtures, deps.Results, deps.Locks,
		cache, archiver, deps.Notifier,
		a.cfg.Ingestor, a.logger,
	)
}

// RunIngestor runs the scheduled ingest windows until shutdown.
func (a *App) RunIngestor(ctx context.Context, deps *Dependencies) error {
	in := a.newIngestor(deps)
	return a.runWithOps(ctx, deps, in.Run)
}

// BackfillIngest replays one historical kickoff window.
func (a *App) BackfillIngest(ctx context.Context, deps *Dependencies, from, to time.Time) error {
	in := a.newIngestor(deps)
	count, err := in.Backfill(ctx, from, to)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "backfill finished",
		slog.Time("from", from),
		slog.Time("to", to),
		slog.Int("fixtures", count),
	)
	return nil
}

// newSettlement builds the settlement engine over the wired dependencies.
func (a *App) newSettlement(deps *Dependencies) *settlement.Engine {
	return settlement.New(
		deps.Pools, deps.Bets, deps.Results, deps.Audits, deps.Locks,
		deps.Oracle, deps.PoolCore, deps.Tx, deps.Notifier,
		deps.PoolCoreAddr, deps.OracleAddr,
		a.cfg.Settlement, a.logger,
	)
}

// RunSettlement verifies the signer authorization and runs the settlement
// loop until shutdown.
func (a *App) RunSettlement(ctx context.Context, deps *Dependencies) error {
	eng := a.newSettlement(deps)
	if err := eng.VerifyAuthorization(ctx); err != nil {
		return err
	}
	return a.runWithOps(ctx, deps, eng.Run)
}

// SettlePool settles one pool immediately.
func (a *App) SettlePool(ctx context.Context, deps *Dependencies, poolID uint64) error {
	eng := a.newSettlement(deps)
	if err := eng.VerifyAuthorization(ctx); err != nil {
		return err
	}
	return eng.SettleOne(ctx, poolID)
}

// newResolver builds the cycle resolver over the wired dependencies.
func (a *App) newResolver(deps *Dependencies) *oddyssey.Resolver {
	return oddyssey.NewResolver(
		deps.Cycles, deps.Slips, deps.Evals, deps.Results, deps.Audits, deps.Locks,
		deps.Tx, deps.Notifier, deps.OddysseyAddr,
		a.cfg.Oddyssey, a.logger,
	)
}

// RunResolver runs the cycle resolution loop until shutdown.
func (a *App) RunResolver(ctx context.Context, deps *Dependencies) error {
	res := a.newResolver(deps)
	return a.runWithOps(ctx, deps, res.Run)
}

// ResolveCycle resolves one cycle immediately.
func (a *App) ResolveCycle(ctx context.Context, deps *Dependencies, cycleID uint64) error {
	return a.newResolver(deps).ResolveOne(ctx, cycleID)
}

// ReevaluateCycle recomputes a resolved cycle's evaluations and reports
// mismatches against the stored ones without rewriting anything.
func (a *App) ReevaluateCycle(ctx context.Context, deps *Dependencies, cycleID uint64) error {
	mismatches, err := a.newResolver(deps).Reevaluate(ctx, cycleID)
	if err != nil {
		return err
	}
	if len(mismatches) == 0 {
		a.logger.InfoContext(ctx, "reevaluation clean", slog.Uint64("cycle_id", cycleID))
		return nil
	}
	for _, m := range mismatches {
		a.logger.WarnContext(ctx, "reevaluation mismatch",
			slog.Uint64("cycle_id", cycleID),
			slog.String("detail", m),
		)
	}
	return nil
}

// newIndexer builds the indexer over the wired dependencies.
func (a *App) newIndexer(deps *Dependencies) *indexer.Indexer {
	return indexer.New(
		deps.Cursors, deps.Pools, deps.Bets, deps.Cycles, deps.Slips,
		deps.Chain, deps.Oddyssey,
		deps.PoolCoreAddr, deps.OracleAddr, deps.OddysseyAddr,
		a.cfg.Indexer, a.logger,
	)
}

// RunIndexer runs the event projection loop until shutdown.
func (a *App) RunIndexer(ctx context.Context, deps *Dependencies) error {
	ix := a.newIndexer(deps)
	return a.runWithOps(ctx, deps, ix.Run)
}

// RescanFrom replays chain events from the given block to head.
func (a *App) RescanFrom(ctx context.Context, deps *Dependencies, fromBlock uint64) error {
	return a.newIndexer(deps).RescanFrom(ctx, fromBlock)
}
