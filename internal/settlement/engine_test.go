package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bitredict/backend/internal/chain/contracts"
	"github.com/bitredict/backend/internal/config"
	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/markets"
)

type fakePoolStore struct {
	mu    sync.Mutex
	pools map[uint64]*domain.Pool
}

func (f *fakePoolStore) UpsertFromChain(ctx context.Context, p domain.Pool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools[p.PoolID] = &p
	return nil
}

func (f *fakePoolStore) Get(ctx context.Context, id uint64) (*domain.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePoolStore) ListSettleable(ctx context.Context, now time.Time, limit int) ([]domain.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Pool
	for _, p := range f.pools {
		if !p.IsSettled && !p.SettlementHalted && p.Status != domain.PoolRefunded && p.EventEnd.Before(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePoolStore) MarkSettled(ctx context.Context, id uint64, creatorWon bool, result string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.pools[id]
	p.IsSettled = true
	p.CreatorSideWon = &creatorWon
	p.Result = result
	p.ResultTimestamp = &ts
	p.Status = domain.PoolSettled
	return nil
}

func (f *fakePoolStore) MarkRefunded(ctx context.Context, id uint64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools[id].Status = domain.PoolRefunded
	return nil
}

func (f *fakePoolStore) MarkHalted(ctx context.Context, id uint64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools[id].SettlementHalted = true
	f.pools[id].HaltReason = reason
	return nil
}

type fakeBetStore struct{}

func (fakeBetStore) Upsert(ctx context.Context, b domain.Bet) error { return nil }
func (fakeBetStore) ListByPool(ctx context.Context, poolID uint64) ([]domain.Bet, error) {
	return nil, nil
}

type fakeResultStore struct {
	outcomes map[string]map[string]string // fixture -> market -> code
}

func (f *fakeResultStore) SaveResult(ctx context.Context, fixtureID string, raw domain.RawScores, outcomes map[string]string) error {
	return nil
}

func (f *fakeResultStore) Get(ctx context.Context, fixtureID string) (*domain.FixtureResult, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeResultStore) Outcome(ctx context.Context, fixtureID, market string) (string, error) {
	m, ok := f.outcomes[fixtureID]
	if !ok {
		return "", domain.ErrNotFound
	}
	code, ok := m[market]
	if !ok {
		return "", domain.ErrNotFound
	}
	return code, nil
}

func (f *fakeResultStore) Supersede(ctx context.Context, fixtureID string, raw domain.RawScores, outcomes map[string]string, reason string) error {
	return nil
}

type fakeAuditStore struct {
	mu          sync.Mutex
	settlements []domain.SettlementDivergence
	resolutions []domain.ResolutionDivergence
}

func (f *fakeAuditStore) RecordSettlementDivergence(ctx context.Context, d domain.SettlementDivergence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settlements = append(f.settlements, d)
	return nil
}

func (f *fakeAuditStore) RecordResolutionDivergence(ctx context.Context, d domain.ResolutionDivergence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutions = append(f.resolutions, d)
	return nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (f *fakeLocks) Acquire(ctx context.Context, key string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

type fakeOracle struct {
	bot      common.Address
	mu       sync.Mutex
	outcomes map[[32]byte][32]byte
}

func (f *fakeOracle) OracleBot(ctx context.Context) (common.Address, error) { return f.bot, nil }

func (f *fakeOracle) GetOutcome(ctx context.Context, marketID [32]byte) (bool, [32]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.outcomes[marketID]
	return ok, out, nil
}

type fakePoolContract struct {
	mu     sync.Mutex
	states map[uint64]*contracts.PoolState
}

func (f *fakePoolContract) GetPool(ctx context.Context, id uint64) (*contracts.PoolState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[id]
	if !ok {
		return nil, domain.PermanentChain(errors.New("no such pool"))
	}
	cp := *st
	return &cp, nil
}

// fakeSender records submissions and lets tests script the chain's reaction
// to each call.
type fakeSender struct {
	addr   common.Address
	mu     sync.Mutex
	sent   [][]byte
	onSend func(data []byte) error
}

func (f *fakeSender) Address() common.Address { return f.addr }

func (f *fakeSender) Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	f.mu.Lock()
	hook := f.onSend
	f.sent = append(f.sent, data)
	f.mu.Unlock()
	if hook != nil {
		if err := hook(data); err != nil {
			return nil, err
		}
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeAlerter struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAlerter) Notify(ctx context.Context, event, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type harness struct {
	engine  *Engine
	pools   *fakePoolStore
	results *fakeResultStore
	audits  *fakeAuditStore
	oracle  *fakeOracle
	chain   *fakePoolContract
	sender  *fakeSender
	alerts  *fakeAlerter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	bot := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	h := &harness{
		pools:   &fakePoolStore{pools: make(map[uint64]*domain.Pool)},
		results: &fakeResultStore{outcomes: make(map[string]map[string]string)},
		audits:  &fakeAuditStore{},
		oracle:  &fakeOracle{bot: bot, outcomes: make(map[[32]byte][32]byte)},
		chain:   &fakePoolContract{states: make(map[uint64]*contracts.PoolState)},
		sender:  &fakeSender{addr: bot},
		alerts:  &fakeAlerter{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.engine = New(
		h.pools, fakeBetStore{}, h.results, h.audits, &fakeLocks{},
		h.oracle, h.chain, h.sender, h.alerts,
		common.HexToAddress("0x1"), common.HexToAddress("0x2"),
		config.SettlementConfig{ArbitrationHours: 24}, logger,
	)
	return h
}

// addPool seeds both the store and the fake chain with an unsettled pool.
func (h *harness) addPool(poolID uint64, fixtureID, market, predicted string, eventEnd time.Time) {
	mid := markets.MarketID(fixtureID, markets.Market(market))
	p := domain.Pool{
		PoolID:           poolID,
		MarketID:         mid,
		FixtureID:        fixtureID,
		Market:           market,
		PredictedOutcome: predicted,
		EventEnd:         eventEnd,
		Status:           domain.PoolAwaitingResult,
	}
	h.pools.pools[poolID] = &p
	h.chain.states[poolID] = &contracts.PoolState{
		MarketID:         mid,
		PredictedOutcome: markets.Encode32(predicted),
	}
}

// settleOnChainWhenCalled makes the fake chain settle the pool using the
// oracle's stored outcome whenever a transaction arrives, mimicking the
// contract's settlePoolAutomatically path.
func (h *harness) settleOnChainWhenCalled(poolID uint64) {
	h.sender.onSend = func(data []byte) error {
		h.chain.mu.Lock()
		defer h.chain.mu.Unlock()
		st := h.chain.states[poolID]
		h.oracle.mu.Lock()
		out, ok := h.oracle.outcomes[st.MarketID]
		h.oracle.mu.Unlock()
		if !ok {
			// First call is submitOutcome; register it.
			h.oracle.mu.Lock()
			h.oracle.outcomes[st.MarketID] = markets.Encode32("2")
			h.oracle.mu.Unlock()
			return nil
		}
		st.Settled = true
		st.Result = out
		st.CreatorSideWon = out != st.PredictedOutcome
		return nil
	}
}

func TestSettleCreatorWinsWhenPredictionMisses(t *testing.T) {
	h := newHarness(t)
	end := time.Now().Add(-time.Hour)
	h.addPool(7, "fx-100", "1X2", markets.OutcomeHome, end)
	h.results.outcomes["fx-100"] = map[string]string{"1X2": markets.OutcomeAway}
	h.settleOnChainWhenCalled(7)

	if err := h.engine.SettleOne(context.Background(), 7); err != nil {
		t.Fatalf("SettleOne: %v", err)
	}

	p, _ := h.pools.Get(context.Background(), 7)
	if !p.IsSettled {
		t.Fatal("pool not marked settled")
	}
	if p.CreatorSideWon == nil || !*p.CreatorSideWon {
		t.Error("creator predicted 1, result was 2: creator side must win")
	}
	if p.Result != markets.OutcomeAway {
		t.Errorf("stored result = %q, want %q", p.Result, markets.OutcomeAway)
	}
	if len(h.audits.settlements) != 0 {
		t.Errorf("unexpected divergence rows: %d", len(h.audits.settlements))
	}
}

func TestSettleCreatorLosesWhenPredictionHits(t *testing.T) {
	h := newHarness(t)
	h.addPool(8, "fx-101", "OU25", markets.OutcomeOver, time.Now().Add(-time.Hour))
	h.results.outcomes["fx-101"] = map[string]string{"OU25": markets.OutcomeOver}

	mid := markets.MarketID("fx-101", markets.MarketOU25)
	h.oracle.outcomes[mid] = markets.Encode32(markets.OutcomeOver)
	h.sender.onSend = func(data []byte) error {
		st := h.chain.states[8]
		st.Settled = true
		st.Result = markets.Encode32(markets.OutcomeOver)
		st.CreatorSideWon = false
		return nil
	}

	if err := h.engine.SettleOne(context.Background(), 8); err != nil {
		t.Fatalf("SettleOne: %v", err)
	}
	p, _ := h.pools.Get(context.Background(), 8)
	if p.CreatorSideWon == nil || *p.CreatorSideWon {
		t.Error("creator predicted Over and Over happened: creator side must lose")
	}
}

func TestChainAlreadySettledIsAuthoritative(t *testing.T) {
	h := newHarness(t)
	h.addPool(9, "fx-102", "1X2", markets.OutcomeHome, time.Now().Add(-time.Hour))
	h.results.outcomes["fx-102"] = map[string]string{"1X2": markets.OutcomeDraw}

	// Chain settled with a different result than we derived.
	st := h.chain.states[9]
	st.Settled = true
	st.Result = markets.Encode32(markets.OutcomeAway)
	st.CreatorSideWon = true

	if err := h.engine.SettleOne(context.Background(), 9); err != nil {
		t.Fatalf("SettleOne: %v", err)
	}

	if got := h.sender.count(); got != 0 {
		t.Errorf("sent %d transactions against an already settled pool", got)
	}
	p, _ := h.pools.Get(context.Background(), 9)
	if p.Result != markets.OutcomeAway {
		t.Errorf("database result = %q, chain said %q", p.Result, markets.OutcomeAway)
	}
	if len(h.audits.settlements) != 1 {
		t.Fatalf("divergence rows = %d, want 1", len(h.audits.settlements))
	}
	d := h.audits.settlements[0]
	if d.DerivedOutcome != markets.OutcomeDraw || d.ObservedOutcome != markets.OutcomeAway {
		t.Errorf("divergence = %+v", d)
	}
}

func TestSettleDefersUntilOutcomeDerived(t *testing.T) {
	h := newHarness(t)
	h.addPool(10, "fx-103", "1X2", markets.OutcomeHome, time.Now().Add(-time.Hour))

	err := h.engine.SettleOne(context.Background(), 10)
	if domain.ClassOf(err) != domain.ClassDataIncomplete {
		t.Fatalf("error class = %v, want data_incomplete", domain.ClassOf(err))
	}
	if h.sender.count() != 0 {
		t.Error("no transaction should be sent before the outcome exists")
	}
}

func TestRefundAfterArbitrationDeadline(t *testing.T) {
	h := newHarness(t)
	// Event ended two days ago and the HT market never became derivable.
	h.addPool(11, "fx-104", "HT_1X2", markets.OutcomeHome, time.Now().Add(-48*time.Hour))

	if err := h.engine.SettleOne(context.Background(), 11); err != nil {
		t.Fatalf("SettleOne: %v", err)
	}
	p, _ := h.pools.Get(context.Background(), 11)
	if p.Status != domain.PoolRefunded {
		t.Errorf("pool status = %q, want REFUNDED", p.Status)
	}
	if h.sender.count() != 1 {
		t.Errorf("sent %d transactions, want the single refund relay", h.sender.count())
	}
}

func TestHaltOnNonWhitelistedRevert(t *testing.T) {
	h := newHarness(t)
	h.addPool(12, "fx-105", "1X2", markets.OutcomeHome, time.Now().Add(-time.Hour))
	h.results.outcomes["fx-105"] = map[string]string{"1X2": markets.OutcomeAway}
	h.oracle.outcomes[markets.MarketID("fx-105", markets.Market1X2)] = markets.Encode32(markets.OutcomeAway)
	h.sender.onSend = func(data []byte) error {
		return domain.PermanentChain(errors.New("execution reverted: POOL_PAUSED"))
	}

	err := h.engine.SettleOne(context.Background(), 12)
	if domain.ClassOf(err) != domain.ClassPermanentChain {
		t.Fatalf("error class = %v, want permanent_chain", domain.ClassOf(err))
	}
	p, _ := h.pools.Get(context.Background(), 12)
	if !p.SettlementHalted {
		t.Error("pool must be halted after a non-whitelisted revert")
	}
	if len(h.alerts.events) == 0 {
		t.Error("operator alert expected for halted pool")
	}

	// Halted pools are skipped on subsequent attempts.
	h.sender.onSend = nil
	before := h.sender.count()
	if err := h.engine.SettleOne(context.Background(), 12); err != nil {
		t.Fatalf("second SettleOne: %v", err)
	}
	if h.sender.count() != before {
		t.Error("halted pool must not produce further transactions")
	}
}

func TestConcurrentSettlersSendAtMostOnce(t *testing.T) {
	h := newHarness(t)
	h.addPool(13, "fx-106", "1X2", markets.OutcomeHome, time.Now().Add(-time.Hour))
	h.results.outcomes["fx-106"] = map[string]string{"1X2": markets.OutcomeDraw}
	h.oracle.outcomes[markets.MarketID("fx-106", markets.Market1X2)] = markets.Encode32(markets.OutcomeDraw)
	h.sender.onSend = func(data []byte) error {
		h.chain.mu.Lock()
		defer h.chain.mu.Unlock()
		st := h.chain.states[13]
		if st.Settled {
			return fmt.Errorf("chain: %w: ALREADY_SETTLED", domain.ErrAlreadySettled)
		}
		st.Settled = true
		st.Result = markets.Encode32(markets.OutcomeDraw)
		st.CreatorSideWon = true
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.engine.SettleOne(context.Background(), 13)
		}(i)
	}
	wg.Wait()

	if got := h.sender.count(); got > 1 {
		t.Errorf("settlement transaction sent %d times, want at most once", got)
	}
	for _, err := range errs {
		if err != nil && !errors.Is(err, domain.ErrLockHeld) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	p, _ := h.pools.Get(context.Background(), 13)
	if !p.IsSettled {
		t.Error("pool must end settled")
	}
}

func TestVerifyAuthorizationRejectsWrongSigner(t *testing.T) {
	h := newHarness(t)
	h.oracle.bot = common.HexToAddress("0xdead")

	err := h.engine.VerifyAuthorization(context.Background())
	if domain.ClassOf(err) != domain.ClassFatalConfig {
		t.Fatalf("error class = %v, want fatal_config", domain.ClassOf(err))
	}
}
