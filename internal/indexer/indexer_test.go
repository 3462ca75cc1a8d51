package indexer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bitredict/backend/internal/chain/contracts"
	"github.com/bitredict/backend/internal/config"
	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/markets"
)

type fakeSource struct {
	mu   sync.Mutex
	head uint64
	logs []types.Log
}

func (f *fakeSource) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeSource) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= from && lg.BlockNumber <= to {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (f *fakeSource) HeaderTime(ctx context.Context, blockNumber uint64) (time.Time, error) {
	return time.Unix(int64(blockNumber)*12, 0).UTC(), nil
}

type memPools struct {
	mu    sync.Mutex
	pools map[uint64]domain.Pool
}

func (m *memPools) UpsertFromChain(ctx context.Context, p domain.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.pools[p.PoolID]; ok {
		// Settlement bookkeeping survives re-projection.
		p.IsSettled = existing.IsSettled
		p.CreatorSideWon = existing.CreatorSideWon
		p.Result = existing.Result
	}
	m.pools[p.PoolID] = p
	return nil
}

func (m *memPools) Get(ctx context.Context, id uint64) (*domain.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *memPools) ListSettleable(ctx context.Context, now time.Time, limit int) ([]domain.Pool, error) {
	return nil, nil
}

func (m *memPools) MarkSettled(ctx context.Context, id uint64, won bool, result string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pools[id]
	p.PoolID = id
	p.IsSettled = true
	p.CreatorSideWon = &won
	p.Result = result
	m.pools[id] = p
	return nil
}

func (m *memPools) MarkRefunded(ctx context.Context, id uint64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pools[id]
	p.PoolID = id
	p.Status = domain.PoolRefunded
	m.pools[id] = p
	return nil
}

func (m *memPools) MarkHalted(ctx context.Context, id uint64, reason string) error { return nil }

type memBets struct {
	mu   sync.Mutex
	bets map[string]domain.Bet // tx_hash/log_index
}

func (m *memBets) Upsert(ctx context.Context, b domain.Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bets[fmt.Sprintf("%s/%d", b.TxHash, b.LogIndex)] = b
	return nil
}

func (m *memBets) ListByPool(ctx context.Context, poolID uint64) ([]domain.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Bet
	for _, b := range m.bets {
		if b.PoolID == poolID {
			out = append(out, b)
		}
	}
	return out, nil
}

type memCycles struct {
	mu     sync.Mutex
	cycles map[uint64]domain.Cycle
}

func (m *memCycles) Upsert(ctx context.Context, c domain.Cycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cycles[c.ID]; !ok {
		m.cycles[c.ID] = c
	}
	return nil
}

func (m *memCycles) Get(ctx context.Context, id uint64) (*domain.Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cycles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *memCycles) ListResolvable(ctx context.Context, now time.Time, limit int) ([]domain.Cycle, error) {
	return nil, nil
}

func (m *memCycles) MarkPartialResolution(ctx context.Context, id uint64) error { return nil }

func (m *memCycles) MarkResolved(ctx context.Context, id uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.cycles[id]
	c.ID = id
	c.IsResolved = true
	c.ResolvedAt = &at
	m.cycles[id] = c
	return nil
}

type memSlips struct {
	mu    sync.Mutex
	slips map[uint64]domain.Slip
}

func (m *memSlips) Upsert(ctx context.Context, s domain.Slip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slips[s.SlipID] = s
	return nil
}

func (m *memSlips) ListByCycle(ctx context.Context, cycleID uint64) ([]domain.Slip, error) {
	return nil, nil
}

type memCursors struct {
	mu      sync.Mutex
	cursors map[string]uint64
}

func (m *memCursors) Get(ctx context.Context, name string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[name]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return c, nil
}

func (m *memCursors) Set(ctx context.Context, name string, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[name] = block
	return nil
}

type fakeOddyssey struct {
	matches map[uint64][10]contracts.CycleMatchData
	slips   map[uint64]*contracts.SlipData
}

func (f *fakeOddyssey) GetCycleMatches(ctx context.Context, cycleID uint64) ([10]contracts.CycleMatchData, error) {
	return f.matches[cycleID], nil
}

func (f *fakeOddyssey) GetSlip(ctx context.Context, slipID uint64) (*contracts.SlipData, error) {
	return f.slips[slipID], nil
}

func word(v uint64) []byte {
	b := make([]byte, 32)
	new(big.Int).SetUint64(v).FillBytes(b)
	return b
}

func poolCreatedLog(poolID uint64, fixtureID string, market markets.Market, predicted string, block uint64, tx byte) types.Log {
	mid := markets.MarketID(fixtureID, market)
	pred := markets.Encode32(predicted)
	data := make([]byte, 0, 7*32)
	data = append(data, mid[:]...)
	data = append(data, pred[:]...)
	data = append(data, word(165)...)  // odds x100
	data = append(data, word(0)...)    // GUIDED
	data = append(data, word(1000)...) // event start
	data = append(data, word(2000)...) // event end
	data = append(data, word(900)...)  // betting end
	return types.Log{
		Topics: []common.Hash{
			contracts.PoolCreatedTopic,
			common.BigToHash(new(big.Int).SetUint64(poolID)),
			common.BytesToHash(common.HexToAddress("0xaa").Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.Hash{tx},
		Index:       0,
	}
}

func betPlacedLog(poolID, amount uint64, block uint64, tx byte, index uint) types.Log {
	data := append(word(amount), word(1)...) // amount, isForOutcome=true
	return types.Log{
		Topics: []common.Hash{
			contracts.BetPlacedTopic,
			common.BigToHash(new(big.Int).SetUint64(poolID)),
			common.BytesToHash(common.HexToAddress("0xbb").Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.Hash{tx},
		Index:       index,
	}
}

type harness struct {
	ix      *Indexer
	source  *fakeSource
	pools   *memPools
	bets    *memBets
	cycles  *memCycles
	slips   *memSlips
	cursors *memCursors
	chain   *fakeOddyssey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		source:  &fakeSource{},
		pools:   &memPools{pools: make(map[uint64]domain.Pool)},
		bets:    &memBets{bets: make(map[string]domain.Bet)},
		cycles:  &memCycles{cycles: make(map[uint64]domain.Cycle)},
		slips:   &memSlips{slips: make(map[uint64]domain.Slip)},
		cursors: &memCursors{cursors: make(map[string]uint64)},
		chain: &fakeOddyssey{
			matches: make(map[uint64][10]contracts.CycleMatchData),
			slips:   make(map[uint64]*contracts.SlipData),
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.ix = New(
		h.cursors, h.pools, h.bets, h.cycles, h.slips,
		h.source, h.chain,
		common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.HexToAddress("0x3"),
		config.IndexerConfig{BatchBlocks: 1000, ReorgDepth: 12, StartBlock: 1},
		logger,
	)
	return h
}

func TestTickProjectsPoolAndBet(t *testing.T) {
	h := newHarness(t)
	h.source.head = 100
	h.source.logs = []types.Log{
		poolCreatedLog(12, "19429285", markets.Market1X2, markets.OutcomeAway, 50, 0x01),
		betPlacedLog(12, 5000, 60, 0x02, 3),
	}

	if err := h.ix.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	p, err := h.pools.Get(context.Background(), 12)
	if err != nil {
		t.Fatalf("pool not projected: %v", err)
	}
	if p.FixtureID != "19429285" || p.Market != "1X2" {
		t.Errorf("pool binding = %s/%s, want 19429285/1X2", p.FixtureID, p.Market)
	}
	if p.PredictedOutcome != markets.OutcomeAway {
		t.Errorf("predicted outcome = %q, want %q", p.PredictedOutcome, markets.OutcomeAway)
	}

	bets, _ := h.bets.ListByPool(context.Background(), 12)
	if len(bets) != 1 {
		t.Fatalf("bets = %d, want 1", len(bets))
	}
	if bets[0].Amount.String() != "5000" {
		t.Errorf("bet amount = %s, want 5000", bets[0].Amount)
	}

	if cursor, _ := h.cursors.Get(context.Background(), cursorName); cursor != 100 {
		t.Errorf("cursor = %d, want 100", cursor)
	}
}

func TestReorgRescanConvergesToCanonicalChain(t *testing.T) {
	h := newHarness(t)
	h.source.head = 100
	h.source.logs = []types.Log{
		poolCreatedLog(12, "19429285", markets.Market1X2, markets.OutcomeAway, 50, 0x01),
		betPlacedLog(12, 5000, 95, 0x02, 3),
	}
	if err := h.ix.Tick(context.Background()); err != nil {
		t.Fatalf("first Tick: %v", err)
	}

	// A reorg within the last 12 blocks replaced the bet's block contents:
	// same (tx_hash, log_index), different amount on the canonical chain.
	h.source.mu.Lock()
	h.source.logs[1] = betPlacedLog(12, 7777, 95, 0x02, 3)
	h.source.head = 105
	h.source.mu.Unlock()

	if err := h.ix.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick: %v", err)
	}

	bets, _ := h.bets.ListByPool(context.Background(), 12)
	if len(bets) != 1 {
		t.Fatalf("bets = %d, want 1 after rescan", len(bets))
	}
	if bets[0].Amount.String() != "7777" {
		t.Errorf("bet amount = %s, want the canonical 7777", bets[0].Amount)
	}
}

func TestRescanDoesNotDisturbSettlementState(t *testing.T) {
	h := newHarness(t)
	h.source.head = 100
	h.source.logs = []types.Log{
		poolCreatedLog(20, "555", markets.MarketOU25, markets.OutcomeOver, 40, 0x05),
	}
	if err := h.ix.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// Pool settles between ticks (written by the settlement engine).
	if err := h.pools.MarkSettled(context.Background(), 20, true, markets.OutcomeUnder, time.Now()); err != nil {
		t.Fatal(err)
	}

	h.source.mu.Lock()
	h.source.head = 101
	h.source.mu.Unlock()
	if err := h.ix.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick: %v", err)
	}

	p, _ := h.pools.Get(context.Background(), 20)
	if !p.IsSettled || p.Result != markets.OutcomeUnder {
		t.Errorf("settlement state lost on rescan: %+v", p)
	}
}

func TestSlipPlacedFetchesPicksFromContract(t *testing.T) {
	h := newHarness(t)
	h.source.head = 100

	slip := &contracts.SlipData{
		Player:  common.HexToAddress("0xcc"),
		CycleID: 3,
	}
	slip.Predictions[0] = contracts.PredictionData{
		MatchId: 901, BetType: 0, Selection: markets.Encode32(markets.OutcomeDraw),
	}
	slip.Predictions[1] = contracts.PredictionData{
		MatchId: 902, BetType: 1, Selection: markets.Encode32(markets.OutcomeUnder),
	}
	h.chain.slips[44] = slip

	h.source.logs = []types.Log{{
		Topics: []common.Hash{
			contracts.SlipPlacedTopic,
			common.BigToHash(big.NewInt(3)),
			common.BytesToHash(common.HexToAddress("0xcc").Bytes()),
			common.BigToHash(big.NewInt(44)),
		},
		BlockNumber: 70,
		TxHash:      common.Hash{0x09},
	}}

	if err := h.ix.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	s, ok := h.slips.slips[44]
	if !ok {
		t.Fatal("slip not projected")
	}
	if s.CycleID != 3 || len(s.Picks) != 2 {
		t.Fatalf("slip = %+v", s)
	}
	if s.Picks[0].Market != domain.PickMarket1X2 || s.Picks[0].Selection != domain.SelectionDraw {
		t.Errorf("pick 0 = %+v", s.Picks[0])
	}
	if s.Picks[1].Market != domain.PickMarketOU25 || s.Picks[1].Selection != domain.SelectionUnder {
		t.Errorf("pick 1 = %+v", s.Picks[1])
	}
}

func TestCycleStartedSnapshotsMatches(t *testing.T) {
	h := newHarness(t)
	h.source.head = 100

	var matches [10]contracts.CycleMatchData
	for i := range matches {
		matches[i] = contracts.CycleMatchData{
			MatchId:   uint64(800 + i),
			StartTime: 1700000000,
			OddsHome:  1800, OddsDraw: 3500, OddsAway: 4200,
			OddsOver: 1900, OddsUnder: 1900,
		}
	}
	h.chain.matches[9] = matches

	h.source.logs = []types.Log{{
		Topics: []common.Hash{
			contracts.CycleStartedTopic,
			common.BigToHash(big.NewInt(9)),
		},
		Data:        word(1700086400), // end time
		BlockNumber: 30,
		TxHash:      common.Hash{0x0a},
	}}

	if err := h.ix.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	c, err := h.cycles.Get(context.Background(), 9)
	if err != nil {
		t.Fatalf("cycle not projected: %v", err)
	}
	if len(c.Matches) != 10 {
		t.Fatalf("snapshot size = %d, want 10", len(c.Matches))
	}
	if c.Matches[0].FixtureID != "800" || c.Matches[0].OddsHome != 1800 {
		t.Errorf("snapshot entry = %+v", c.Matches[0])
	}
	if !c.CycleEndTime.Equal(time.Unix(1700086400, 0).UTC()) {
		t.Errorf("cycle end = %s", c.CycleEndTime)
	}
}

func TestDecodePickRejectsUnknownSelection(t *testing.T) {
	_, err := decodePick(contracts.PredictionData{
		MatchId: 1, BetType: 0, Selection: markets.Encode32("Bogus"),
	})
	if err == nil {
		t.Fatal("expected error for unknown selection")
	}
	_, err = decodePick(contracts.PredictionData{
		MatchId: 1, BetType: 9, Selection: markets.Encode32(markets.OutcomeHome),
	})
	if err == nil {
		t.Fatal("expected error for unknown bet type")
	}
}
