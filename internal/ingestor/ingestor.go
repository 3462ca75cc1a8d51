// Package ingestor polls the sports provider on two schedules, upserts
// fixtures, and feeds finished fixtures through derivation into the results
// store. It is the only writer of fixtures and, through the results store,
// of derived outcomes.
package ingestor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	rediscache "github.com/bitredict/backend/internal/cache/redis"
	"github.com/bitredict/backend/internal/config"
	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/markets"
	"github.com/bitredict/backend/internal/metrics"
	"github.com/bitredict/backend/internal/notify"
	"github.com/bitredict/backend/internal/provider/sportmonks"
)

// Provider fetches fixtures in a kickoff window, returning the mapped wire
// fixtures plus the raw response pages for archival.
type Provider interface {
	FixturesBetween(ctx context.Context, from, to time.Time) ([]sportmonks.Fixture, [][]byte, error)
}

// SnapshotCache short-circuits live polls for fixtures that have not moved.
type SnapshotCache interface {
	Get(ctx context.Context, fixtureID string) (rediscache.FixtureSnapshot, error)
	Set(ctx context.Context, fixtureID string, snap rediscache.FixtureSnapshot) error
}

// Archiver stores the raw pages of one poll.
type Archiver interface {
	Archive(ctx context.Context, window string, at time.Time, pages [][]byte) (string, error)
}

// Alerter is the operator notification hook.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Ingestor drives the upcoming and live ingest windows.
type Ingestor struct {
	provider Provider
	fixtures domain.FixtureStore
	results  domain.ResultStore
	locks    domain.LockManager
	cache    SnapshotCache // nil disables the skip path
	archiver Archiver      // nil disables payload archival
	alerts   Alerter

	cfg    config.IngestorConfig
	logger *slog.Logger
	now    func() time.Time
}

// New creates an ingestor. cache and archiver may be nil.
func New(
	provider Provider,
	fixtures domain.FixtureStore,
	results domain.ResultStore,
	locks domain.LockManager,
	cache SnapshotCache,
	archiver Archiver,
	alerts Alerter,
	cfg config.IngestorConfig,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		provider: provider,
		fixtures: fixtures,
		results:  results,
		locks:    locks,
		cache:    cache,
		archiver: archiver,
		alerts:   alerts,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "ingestor")),
		now:      time.Now,
	}
}

// Run schedules the two windows on their cron expressions and blocks until
// the context is cancelled.
func (in *Ingestor) Run(ctx context.Context) error {
	c := cron.New()

	if _, err := c.AddFunc(in.cfg.UpcomingCron, func() {
		if err := in.IngestUpcoming(ctx); err != nil && !errors.Is(err, domain.ErrLockHeld) {
			in.logger.ErrorContext(ctx, "upcoming ingest failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return domain.FatalConfig(fmt.Errorf("ingestor: upcoming cron %q: %w", in.cfg.UpcomingCron, err))
	}

	if _, err := c.AddFunc(in.cfg.LiveCron, func() {
		if err := in.IngestLive(ctx); err != nil && !errors.Is(err, domain.ErrLockHeld) {
			in.logger.ErrorContext(ctx, "live ingest failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return domain.FatalConfig(fmt.Errorf("ingestor: live cron %q: %w", in.cfg.LiveCron, err))
	}

	c.Start()
	in.logger.InfoContext(ctx, "ingest schedules started",
		slog.String("upcoming", in.cfg.UpcomingCron),
		slog.String("live", in.cfg.LiveCron),
	)

	<-ctx.Done()
	stop := c.Stop()
	<-stop.Done()
	return nil
}

// IngestUpcoming refreshes the upcoming window: identity, kickoff, teams,
// league and status for every fixture in the next N days.
func (in *Ingestor) IngestUpcoming(ctx context.Context) error {
	unlock, err := in.locks.Acquire(ctx, "ingest:upcoming")
	if err != nil {
		return err
	}
	defer unlock()

	days := in.cfg.UpcomingDays
	if days <= 0 {
		days = 7
	}
	from := in.now()
	to := from.AddDate(0, 0, days)

	count, err := in.ingestWindow(ctx, "upcoming", from, to, false)
	if err != nil {
		return err
	}
	metrics.IngestedFixtures.WithLabelValues("upcoming").Add(float64(count))
	return nil
}

// IngestLive refreshes the live/recent window and runs derivation for every
// fixture that reached a finished status.
func (in *Ingestor) IngestLive(ctx context.Context) error {
	unlock, err := in.locks.Acquire(ctx, "ingest:live")
	if err != nil {
		return err
	}
	defer unlock()

	before := in.cfg.LiveBeforeHours
	if before <= 0 {
		before = 2
	}
	after := in.cfg.LiveAfterHours
	if after <= 0 {
		after = 3
	}
	now := in.now()
	from := now.Add(-time.Duration(before) * time.Hour)
	to := now.Add(time.Duration(after) * time.Hour)

	count, err := in.ingestWindow(ctx, "live", from, to, true)
	if err != nil {
		return err
	}
	metrics.IngestedFixtures.WithLabelValues("live").Add(float64(count))
	return nil
}

// Backfill replays an arbitrary kickoff window without the snapshot skip,
// deriving results for every finished fixture found. Used by the operator
// CLI after provider outages.
func (in *Ingestor) Backfill(ctx context.Context, from, to time.Time) (int, error) {
	unlock, err := in.locks.Acquire(ctx, fmt.Sprintf("ingest:backfill:%d", from.Unix()))
	if err != nil {
		return 0, err
	}
	defer unlock()

	count, err := in.ingestWindow(ctx, "backfill", from, to, true)
	if err != nil {
		return 0, err
	}
	metrics.IngestedFixtures.WithLabelValues("backfill").Add(float64(count))
	return count, nil
}

// ingestWindow fetches one kickoff window and processes every fixture in
// it. derive controls whether finished fixtures also run derivation; the
// upcoming window skips it because its fixtures have not been played.
func (in *Ingestor) ingestWindow(ctx context.Context, window string, from, to time.Time, derive bool) (int, error) {
	wireFixtures, pages, err := in.provider.FixturesBetween(ctx, from, to)
	if err != nil {
		return 0, err
	}

	now := in.now()
	batch := make([]domain.Fixture, 0, len(wireFixtures))
	type finished struct {
		fixture domain.Fixture
		raw     domain.RawScores
	}
	var done []finished

	for _, wf := range wireFixtures {
		fx, raw, merr := sportmonks.MapFixture(wf, now)
		if merr != nil {
			if domain.ClassOf(merr) == domain.ClassDataIncomplete {
				in.logger.DebugContext(ctx, "fixture finished without scores yet",
					slog.String("fixture_id", fx.ID),
				)
				continue
			}
			in.logger.WarnContext(ctx, "fixture skipped",
				slog.Int64("provider_id", wf.ID),
				slog.String("error", merr.Error()),
			)
			continue
		}

		if window == "live" && in.unchanged(ctx, fx, raw) {
			continue
		}

		batch = append(batch, fx)
		if derive && raw != nil {
			done = append(done, finished{fixture: fx, raw: *raw})
		}
	}

	if len(batch) > 0 {
		if err := in.fixtures.Upsert(ctx, batch); err != nil {
			return 0, err
		}
	}

	for _, f := range done {
		if err := in.deriveAndStore(ctx, f.fixture, f.raw); err != nil {
			// One bad fixture must not stall the rest of the window.
			in.logger.ErrorContext(ctx, "derivation failed",
				slog.String("fixture_id", f.fixture.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if window == "live" && in.cache != nil {
		rawByID := make(map[string]*domain.RawScores, len(done))
		for i := range done {
			rawByID[done[i].fixture.ID] = &done[i].raw
		}
		for _, fx := range batch {
			snap := rediscache.FixtureSnapshot{Status: string(fx.Status), Scores: rawByID[fx.ID]}
			if cerr := in.cache.Set(ctx, fx.ID, snap); cerr != nil {
				in.logger.DebugContext(ctx, "snapshot cache write failed",
					slog.String("fixture_id", fx.ID),
					slog.String("error", cerr.Error()),
				)
			}
		}
	}

	in.archive(ctx, window, now, pages)

	in.logger.InfoContext(ctx, "window ingested",
		slog.String("window", window),
		slog.Int("fixtures", len(batch)),
		slog.Int("finished", len(done)),
	)
	return len(batch), nil
}

// unchanged reports whether the live snapshot cache already holds this
// fixture in the same state.
func (in *Ingestor) unchanged(ctx context.Context, fx domain.Fixture, raw *domain.RawScores) bool {
	if in.cache == nil {
		return false
	}
	snap, err := in.cache.Get(ctx, fx.ID)
	if err != nil {
		return false
	}
	if snap.Status != string(fx.Status) {
		return false
	}
	if raw == nil {
		return snap.Scores == nil
	}
	return snap.Scores != nil && snap.Scores.Equal(*raw)
}

// deriveAndStore runs the pure derivation and persists it. A conflicting
// stored result is surfaced to the operator, never overwritten.
func (in *Ingestor) deriveAndStore(ctx context.Context, fx domain.Fixture, raw domain.RawScores) error {
	derived := markets.Derive(raw)
	outcomes := make(map[string]string, len(derived))
	for m, code := range derived {
		outcomes[string(m)] = code
	}

	err := in.results.SaveResult(ctx, fx.ID, raw, outcomes)
	switch {
	case err == nil:
		metrics.ResultsDerived.Inc()
		in.logger.InfoContext(ctx, "result derived",
			slog.String("fixture_id", fx.ID),
			slog.Int("markets", len(outcomes)),
		)
		return nil
	case errors.Is(err, domain.ErrResultConflict):
		metrics.ResultConflicts.Inc()
		in.logger.WarnContext(ctx, "conflicting result rejected",
			slog.String("fixture_id", fx.ID),
		)
		if in.alerts != nil {
			_ = in.alerts.Notify(ctx, notify.EventResultConflict,
				"Result conflict",
				fmt.Sprintf("fixture %s: provider now reports scores conflicting with the stored derivation", fx.ID))
		}
		return nil
	default:
		return err
	}
}

// archive uploads the raw pages when archival is configured.
func (in *Ingestor) archive(ctx context.Context, window string, at time.Time, pages [][]byte) {
	if in.archiver == nil || !in.cfg.ArchivePayloads {
		return
	}
	path, err := in.archiver.Archive(ctx, window, at, pages)
	if err != nil {
		in.logger.WarnContext(ctx, "payload archive failed",
			slog.String("window", window),
			slog.String("error", err.Error()),
		)
		return
	}
	if path != "" {
		in.logger.DebugContext(ctx, "payloads archived", slog.String("path", path))
	}
}
