package ingestor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	rediscache "github.com/bitredict/backend/internal/cache/redis"
	"github.com/bitredict/backend/internal/config"
	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/markets"
	"github.com/bitredict/backend/internal/provider/sportmonks"
)

type scriptedProvider struct {
	fixtures []sportmonks.Fixture
	pages    [][]byte
	calls    int
}

func (p *scriptedProvider) FixturesBetween(ctx context.Context, from, to time.Time) ([]sportmonks.Fixture, [][]byte, error) {
	p.calls++
	return p.fixtures, p.pages, nil
}

type memFixtures struct {
	mu       sync.Mutex
	fixtures map[string]domain.Fixture
	upserts  int
}

func (m *memFixtures) Upsert(ctx context.Context, fixtures []domain.Fixture) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	for _, f := range fixtures {
		m.fixtures[f.ID] = f
	}
	return nil
}

func (m *memFixtures) Get(ctx context.Context, id string) (*domain.Fixture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fixtures[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

func (m *memFixtures) ListFinishedWithoutResult(ctx context.Context, limit int) ([]domain.Fixture, error) {
	return nil, nil
}

type memResults struct {
	mu      sync.Mutex
	results map[string]*domain.FixtureResult
	saves   int
}

func (m *memResults) SaveResult(ctx context.Context, fixtureID string, raw domain.RawScores, outcomes map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if existing, ok := m.results[fixtureID]; ok {
		if existing.Raw.Equal(raw) {
			return nil
		}
		return domain.ErrResultConflict
	}
	m.results[fixtureID] = &domain.FixtureResult{FixtureID: fixtureID, Raw: raw, Outcomes: outcomes}
	return nil
}

func (m *memResults) Get(ctx context.Context, fixtureID string) (*domain.FixtureResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[fixtureID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (m *memResults) Outcome(ctx context.Context, fixtureID, market string) (string, error) {
	r, err := m.Get(ctx, fixtureID)
	if err != nil {
		return "", err
	}
	code, ok := r.Outcomes[market]
	if !ok {
		return "", domain.ErrNotFound
	}
	return code, nil
}

func (m *memResults) Supersede(ctx context.Context, fixtureID string, raw domain.RawScores, outcomes map[string]string, reason string) error {
	return nil
}

type openLocks struct{}

func (openLocks) Acquire(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

type memCache struct {
	mu    sync.Mutex
	snaps map[string]rediscache.FixtureSnapshot
}

func (m *memCache) Get(ctx context.Context, id string) (rediscache.FixtureSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[id]
	if !ok {
		return rediscache.FixtureSnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *memCache) Set(ctx context.Context, id string, snap rediscache.FixtureSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[id] = snap
	return nil
}

type recordingArchiver struct {
	mu    sync.Mutex
	calls int
	pages int
}

func (r *recordingArchiver) Archive(ctx context.Context, window string, at time.Time, pages [][]byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.pages += len(pages)
	return "raw/" + window + "/x.ndjson", nil
}

type recordingAlerts struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAlerts) Notify(ctx context.Context, event, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func wireFixture(id int64, state string, scores []sportmonks.ScoreEntry) sportmonks.Fixture {
	f := sportmonks.Fixture{
		ID:         id,
		Name:       "Alpha vs Beta",
		StartingAt: "2026-03-01 15:00:00",
		Scores:     scores,
	}
	f.State.State = state
	f.League.Name = "Test League"
	home := sportmonks.Participant{Name: "Alpha"}
	home.Meta.Location = "home"
	away := sportmonks.Participant{Name: "Beta"}
	away.Meta.Location = "away"
	f.Participants = []sportmonks.Participant{home, away}
	return f
}

func score(desc, side string, goals int) sportmonks.ScoreEntry {
	var e sportmonks.ScoreEntry
	e.Description = desc
	e.Score.Participant = side
	e.Score.Goals = goals
	return e
}

func finishedScores(hft, aft, hht, aht int) []sportmonks.ScoreEntry {
	return []sportmonks.ScoreEntry{
		score("CURRENT", "home", hft),
		score("CURRENT", "away", aft),
		score("1ST_HALF", "home", hht),
		score("1ST_HALF", "away", aht),
	}
}

type testEnv struct {
	in       *Ingestor
	provider *scriptedProvider
	fixtures *memFixtures
	results  *memResults
	cache    *memCache
	archiver *recordingArchiver
	alerts   *recordingAlerts
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		provider: &scriptedProvider{},
		fixtures: &memFixtures{fixtures: make(map[string]domain.Fixture)},
		results:  &memResults{results: make(map[string]*domain.FixtureResult)},
		cache:    &memCache{snaps: make(map[string]rediscache.FixtureSnapshot)},
		archiver: &recordingArchiver{},
		alerts:   &recordingAlerts{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.in = New(
		e.provider, e.fixtures, e.results, openLocks{}, e.cache, e.archiver, e.alerts,
		config.IngestorConfig{UpcomingDays: 7, LiveBeforeHours: 2, LiveAfterHours: 3, ArchivePayloads: true},
		logger,
	)
	return e
}

func TestLiveIngestDerivesFinishedFixture(t *testing.T) {
	e := newTestEnv(t)
	e.provider.fixtures = []sportmonks.Fixture{
		wireFixture(19429285, "FT", finishedScores(2, 1, 1, 0)),
	}
	e.provider.pages = [][]byte{[]byte(`{"data":[]}`)}

	if err := e.in.IngestLive(context.Background()); err != nil {
		t.Fatalf("IngestLive: %v", err)
	}

	fx, err := e.fixtures.Get(context.Background(), "19429285")
	if err != nil {
		t.Fatalf("fixture not stored: %v", err)
	}
	if fx.Status != domain.StatusFullTime || fx.Home != "Alpha" || fx.Away != "Beta" {
		t.Errorf("fixture = %+v", fx)
	}

	got, err := e.results.Outcome(context.Background(), "19429285", "1X2")
	if err != nil {
		t.Fatalf("derived outcome missing: %v", err)
	}
	if got != markets.OutcomeHome {
		t.Errorf("1X2 = %q, want %q", got, markets.OutcomeHome)
	}
	if ht, _ := e.results.Outcome(context.Background(), "19429285", "HT_1X2"); ht != markets.OutcomeHome {
		t.Errorf("HT_1X2 = %q, want %q", ht, markets.OutcomeHome)
	}

	if e.archiver.calls != 1 || e.archiver.pages != 1 {
		t.Errorf("archiver calls=%d pages=%d, want 1/1", e.archiver.calls, e.archiver.pages)
	}
}

func TestLiveIngestSkipsUnchangedFixtures(t *testing.T) {
	e := newTestEnv(t)
	e.provider.fixtures = []sportmonks.Fixture{
		wireFixture(77, "INPLAY_2ND_HALF", nil),
	}

	if err := e.in.IngestLive(context.Background()); err != nil {
		t.Fatalf("first IngestLive: %v", err)
	}
	first := e.fixtures.upserts

	// Same status on the next poll: the snapshot cache short-circuits the
	// database write.
	if err := e.in.IngestLive(context.Background()); err != nil {
		t.Fatalf("second IngestLive: %v", err)
	}
	if e.fixtures.upserts != first {
		t.Errorf("upserts = %d, want %d (unchanged fixture must be skipped)", e.fixtures.upserts, first)
	}
}

func TestLiveIngestWritesThroughOnStatusChange(t *testing.T) {
	e := newTestEnv(t)
	e.provider.fixtures = []sportmonks.Fixture{wireFixture(78, "HT", nil)}
	if err := e.in.IngestLive(context.Background()); err != nil {
		t.Fatal(err)
	}

	e.provider.fixtures = []sportmonks.Fixture{
		wireFixture(78, "FT", finishedScores(0, 0, 0, 0)),
	}
	if err := e.in.IngestLive(context.Background()); err != nil {
		t.Fatal(err)
	}

	fx, _ := e.fixtures.Get(context.Background(), "78")
	if fx.Status != domain.StatusFullTime {
		t.Errorf("status = %s, want FT", fx.Status)
	}
	if _, err := e.results.Get(context.Background(), "78"); err != nil {
		t.Errorf("finished fixture must be derived: %v", err)
	}
}

func TestUpcomingIngestDoesNotDerive(t *testing.T) {
	e := newTestEnv(t)
	e.provider.fixtures = []sportmonks.Fixture{
		wireFixture(90, "FT", finishedScores(3, 2, 1, 1)),
	}

	if err := e.in.IngestUpcoming(context.Background()); err != nil {
		t.Fatalf("IngestUpcoming: %v", err)
	}
	if e.results.saves != 0 {
		t.Errorf("upcoming window ran derivation %d times", e.results.saves)
	}
	if _, err := e.fixtures.Get(context.Background(), "90"); err != nil {
		t.Error("fixture itself must still be upserted")
	}
}

func TestConflictingRederivationAlertsOperator(t *testing.T) {
	e := newTestEnv(t)
	e.provider.fixtures = []sportmonks.Fixture{
		wireFixture(55, "FT", finishedScores(1, 0, 0, 0)),
	}
	if err := e.in.IngestLive(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Provider now reports different scores for the same fixture.
	e.provider.fixtures = []sportmonks.Fixture{
		wireFixture(55, "FT", finishedScores(2, 0, 0, 0)),
	}
	e.cache.snaps = map[string]rediscache.FixtureSnapshot{} // force write-through
	if err := e.in.IngestLive(context.Background()); err != nil {
		t.Fatalf("conflicting ingest must not fail the window: %v", err)
	}

	r, _ := e.results.Get(context.Background(), "55")
	if r.Raw.HomeFT != 1 {
		t.Errorf("stored result mutated: %+v", r.Raw)
	}
	found := false
	for _, ev := range e.alerts.events {
		if ev == "result_conflict" {
			found = true
		}
	}
	if !found {
		t.Error("result_conflict alert expected")
	}
}

func TestBackfillIgnoresSnapshotCache(t *testing.T) {
	e := newTestEnv(t)
	e.provider.fixtures = []sportmonks.Fixture{
		wireFixture(60, "FT", finishedScores(2, 2, 1, 1)),
	}
	// Prime the cache as if the live loop had seen the final state already.
	if err := e.in.IngestLive(context.Background()); err != nil {
		t.Fatal(err)
	}

	count, err := e.in.Backfill(context.Background(),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if count != 1 {
		t.Errorf("backfill count = %d, want 1 (cache must not short-circuit)", count)
	}
}
