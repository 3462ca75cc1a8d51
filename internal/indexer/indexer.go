// Package indexer tails the contract event streams with a persisted block
// cursor and projects them into the relational store. Every tick rescans the
// last REORG_DEPTH blocks, so each projection must be idempotent by
// (tx_hash, log_index).
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/bitredict/backend/internal/chain/contracts"
	"github.com/bitredict/backend/internal/config"
	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/markets"
	"github.com/bitredict/backend/internal/metrics"
)

// cursorName is the stream key under which the block cursor persists.
const cursorName = "events"

// LogSource is the read surface the indexer needs from the RPC client.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderTime(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// OddysseyReader fetches the cycle and slip payloads that the events only
// reference by id.
type OddysseyReader interface {
	GetCycleMatches(ctx context.Context, cycleID uint64) ([10]contracts.CycleMatchData, error)
	GetSlip(ctx context.Context, slipID uint64) (*contracts.SlipData, error)
}

// Indexer projects contract events into the store.
type Indexer struct {
	cursors domain.CursorStore
	pools   domain.PoolStore
	bets    domain.BetStore
	cycles  domain.CycleStore
	slips   domain.SlipStore

	source   LogSource
	oddyssey OddysseyReader

	poolCoreAddr common.Address
	oracleAddr   common.Address
	oddysseyAddr common.Address

	cfg    config.IndexerConfig
	logger *slog.Logger
}

// New creates an indexer over the three contract addresses.
func New(
	cursors domain.CursorStore,
	pools domain.PoolStore,
	bets domain.BetStore,
	cycles domain.CycleStore,
	slips domain.SlipStore,
	source LogSource,
	oddyssey OddysseyReader,
	poolCoreAddr, oracleAddr, oddysseyAddr common.Address,
	cfg config.IndexerConfig,
	logger *slog.Logger,
) *Indexer {
	return &Indexer{
		cursors:      cursors,
		pools:        pools,
		bets:         bets,
		cycles:       cycles,
		slips:        slips,
		source:       source,
		oddyssey:     oddyssey,
		poolCoreAddr: poolCoreAddr,
		oracleAddr:   oracleAddr,
		oddysseyAddr: oddysseyAddr,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "indexer")),
	}
}

// Run ticks until the context is cancelled.
func (ix *Indexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(ix.cfg.Tick())
	defer ticker.Stop()

	ix.logger.InfoContext(ctx, "indexer loop started",
		slog.Duration("tick", ix.cfg.Tick()),
		slog.Uint64("reorg_depth", ix.cfg.ReorgDepth),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ix.Tick(ctx); err != nil {
				ix.logger.ErrorContext(ctx, "indexer tick failed",
					slog.String("class", domain.ClassOf(err).String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Tick advances the cursor to the chain head, rewinding by the reorg depth
// so recently reorged logs are replayed and re-projected.
func (ix *Indexer) Tick(ctx context.Context) error {
	head, err := ix.source.BlockNumber(ctx)
	if err != nil {
		return err
	}

	cursor, err := ix.cursors.Get(ctx, cursorName)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		cursor = ix.cfg.StartBlock
	default:
		return err
	}

	from := ix.cfg.StartBlock
	if cursor > ix.cfg.ReorgDepth && cursor-ix.cfg.ReorgDepth > from {
		from = cursor - ix.cfg.ReorgDepth
	}
	if from > head {
		return nil
	}

	if err := ix.Rescan(ctx, from, head); err != nil {
		return err
	}

	if err := ix.cursors.Set(ctx, cursorName, head); err != nil {
		return err
	}
	metrics.IndexerCursor.WithLabelValues(cursorName).Set(float64(head))
	return nil
}

// Rescan replays the given inclusive block range in batches. Used by Tick
// and by the operator CLI for explicit backfills.
func (ix *Indexer) Rescan(ctx context.Context, from, to uint64) error {
	batch := ix.cfg.BatchBlocks
	if batch == 0 {
		batch = 1000
	}

	for start := from; start <= to; start += batch {
		end := start + batch - 1
		if end > to {
			end = to
		}
		logs, err := ix.source.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{ix.poolCoreAddr, ix.oracleAddr, ix.oddysseyAddr},
		})
		if err != nil {
			return err
		}

		blockTimes := make(map[uint64]time.Time)
		for _, lg := range logs {
			if lg.Removed || len(lg.Topics) == 0 {
				continue
			}
			if err := ix.project(ctx, lg, blockTimes); err != nil {
				return fmt.Errorf("indexer: block %d log %d: %w", lg.BlockNumber, lg.Index, err)
			}
		}
		ix.logger.DebugContext(ctx, "block range scanned",
			slog.Uint64("from", start),
			slog.Uint64("to", end),
			slog.Int("logs", len(logs)),
		)
	}
	return nil
}

// RescanFrom replays everything from the given block to the current head
// and moves the cursor there. Used by the operator CLI after a missed range
// or a deep reorg.
func (ix *Indexer) RescanFrom(ctx context.Context, from uint64) error {
	head, err := ix.source.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if from > head {
		return fmt.Errorf("indexer: rescan start %d is past head %d", from, head)
	}
	if err := ix.Rescan(ctx, from, head); err != nil {
		return err
	}
	if err := ix.cursors.Set(ctx, cursorName, head); err != nil {
		return err
	}
	metrics.IndexerCursor.WithLabelValues(cursorName).Set(float64(head))
	return nil
}

// blockTime memoizes header timestamps per scanned batch.
func (ix *Indexer) blockTime(ctx context.Context, block uint64, cache map[uint64]time.Time) (time.Time, error) {
	if t, ok := cache[block]; ok {
		return t, nil
	}
	t, err := ix.source.HeaderTime(ctx, block)
	if err != nil {
		return time.Time{}, err
	}
	cache[block] = t
	return t, nil
}

func (ix *Indexer) project(ctx context.Context, lg types.Log, blockTimes map[uint64]time.Time) error {
	switch lg.Topics[0] {
	case contracts.PoolCreatedTopic:
		return ix.projectPoolCreated(ctx, lg)
	case contracts.BetPlacedTopic:
		return ix.projectBetPlaced(ctx, lg, blockTimes)
	case contracts.PoolSettledTopic:
		return ix.projectPoolSettled(ctx, lg)
	case contracts.PoolRefundedTopic:
		return ix.projectPoolRefunded(ctx, lg)
	case contracts.CycleStartedTopic:
		return ix.projectCycleStarted(ctx, lg)
	case contracts.SlipPlacedTopic:
		return ix.projectSlipPlaced(ctx, lg, blockTimes)
	case contracts.CycleResolvedTopic:
		return ix.projectCycleResolved(ctx, lg, blockTimes)
	case contracts.OutcomeSubmittedTopic:
		metrics.IndexedEvents.WithLabelValues("OutcomeSubmitted").Inc()
		return nil
	default:
		return nil
	}
}

func (ix *Indexer) projectPoolCreated(ctx context.Context, lg types.Log) error {
	ev, err := contracts.ParsePoolCreated(lg)
	if err != nil {
		return err
	}

	p := domain.Pool{
		PoolID:           ev.PoolID,
		Creator:          ev.Creator.Hex(),
		Odds:             ev.Odds,
		PredictedOutcome: markets.Decode32(ev.PredictedOutcome),
		MarketID:         ev.MarketID,
		OracleType:       domain.OracleType(ev.OracleType),
		EventStart:       time.Unix(int64(ev.EventStartTime), 0).UTC(),
		EventEnd:         time.Unix(int64(ev.EventEndTime), 0).UTC(),
		BettingEnd:       time.Unix(int64(ev.BettingEndTime), 0).UTC(),
		Status:           domain.PoolOpen,
	}
	// The market id embeds the fixture binding; a malformed one still gets
	// projected so the settlement engine can park it.
	if fixtureID, market, perr := markets.ParseMarketID(ev.MarketID); perr == nil {
		p.FixtureID = fixtureID
		p.Market = string(market)
	} else {
		ix.logger.WarnContext(ctx, "pool with undecodable market id",
			slog.Uint64("pool_id", ev.PoolID),
			slog.String("error", perr.Error()),
		)
	}

	if err := ix.pools.UpsertFromChain(ctx, p); err != nil {
		return err
	}
	metrics.IndexedEvents.WithLabelValues("PoolCreated").Inc()
	return nil
}

func (ix *Indexer) projectBetPlaced(ctx context.Context, lg types.Log, blockTimes map[uint64]time.Time) error {
	ev, err := contracts.ParseBetPlaced(lg)
	if err != nil {
		return err
	}
	placedAt, err := ix.blockTime(ctx, lg.BlockNumber, blockTimes)
	if err != nil {
		return err
	}

	b := domain.Bet{
		PoolID:       ev.PoolID,
		Bettor:       ev.Bettor.Hex(),
		Amount:       decimal.NewFromBigInt(ev.Amount, 0),
		IsForOutcome: ev.IsForOutcome,
		TxHash:       lg.TxHash.Hex(),
		LogIndex:     uint32(lg.Index),
		BlockNumber:  lg.BlockNumber,
		PlacedAt:     placedAt,
	}
	if err := ix.bets.Upsert(ctx, b); err != nil {
		return err
	}
	metrics.IndexedEvents.WithLabelValues("BetPlaced").Inc()
	return nil
}

func (ix *Indexer) projectPoolSettled(ctx context.Context, lg types.Log) error {
	ev, err := contracts.ParsePoolSettled(lg)
	if err != nil {
		return err
	}
	ts := time.Unix(int64(ev.Timestamp), 0).UTC()
	if err := ix.pools.MarkSettled(ctx, ev.PoolID, ev.CreatorSideWon, markets.Decode32(ev.Result), ts); err != nil {
		return err
	}
	metrics.IndexedEvents.WithLabelValues("PoolSettled").Inc()
	return nil
}

func (ix *Indexer) projectPoolRefunded(ctx context.Context, lg types.Log) error {
	ev, err := contracts.ParsePoolRefunded(lg)
	if err != nil {
		return err
	}
	if err := ix.pools.MarkRefunded(ctx, ev.PoolID, ev.Reason); err != nil {
		return err
	}
	metrics.IndexedEvents.WithLabelValues("PoolRefunded").Inc()
	return nil
}

// projectCycleStarted snapshots the cycle's ten matches and frozen odds. The
// store keeps the first snapshot it sees; historical scores must never track
// later odds drift.
func (ix *Indexer) projectCycleStarted(ctx context.Context, lg types.Log) error {
	ev, err := contracts.ParseCycleStarted(lg)
	if err != nil {
		return err
	}
	matchData, err := ix.oddyssey.GetCycleMatches(ctx, ev.CycleID)
	if err != nil {
		return err
	}

	c := domain.Cycle{
		ID:           ev.CycleID,
		CycleEndTime: time.Unix(int64(ev.EndTime), 0).UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	for _, m := range matchData {
		if m.MatchId == 0 {
			continue
		}
		c.Matches = append(c.Matches, domain.CycleMatch{
			FixtureID: fmt.Sprintf("%d", m.MatchId),
			Kickoff:   time.Unix(int64(m.StartTime), 0).UTC(),
			OddsHome:  uint64(m.OddsHome),
			OddsDraw:  uint64(m.OddsDraw),
			OddsAway:  uint64(m.OddsAway),
			OddsOver:  uint64(m.OddsOver),
			OddsUnder: uint64(m.OddsUnder),
		})
	}
	if err := ix.cycles.Upsert(ctx, c); err != nil {
		return err
	}
	metrics.IndexedEvents.WithLabelValues("CycleStarted").Inc()
	return nil
}

func (ix *Indexer) projectSlipPlaced(ctx context.Context, lg types.Log, blockTimes map[uint64]time.Time) error {
	ev, err := contracts.ParseSlipPlaced(lg)
	if err != nil {
		return err
	}
	data, err := ix.oddyssey.GetSlip(ctx, ev.SlipID)
	if err != nil {
		return err
	}
	placedAt, err := ix.blockTime(ctx, lg.BlockNumber, blockTimes)
	if err != nil {
		return err
	}

	s := domain.Slip{
		SlipID:   ev.SlipID,
		CycleID:  ev.CycleID,
		Player:   ev.Player.Hex(),
		TxHash:   lg.TxHash.Hex(),
		PlacedAt: placedAt,
	}
	for _, p := range data.Predictions {
		if p.MatchId == 0 {
			continue
		}
		pick, perr := decodePick(p)
		if perr != nil {
			return fmt.Errorf("indexer: slip %d: %w", ev.SlipID, perr)
		}
		s.Picks = append(s.Picks, pick)
	}
	if err := ix.slips.Upsert(ctx, s); err != nil {
		return err
	}
	metrics.IndexedEvents.WithLabelValues("SlipPlaced").Inc()
	return nil
}

func (ix *Indexer) projectCycleResolved(ctx context.Context, lg types.Log, blockTimes map[uint64]time.Time) error {
	ev, err := contracts.ParseCycleResolved(lg)
	if err != nil {
		return err
	}
	at, err := ix.blockTime(ctx, lg.BlockNumber, blockTimes)
	if err != nil {
		return err
	}
	if err := ix.cycles.MarkResolved(ctx, ev.CycleID, at); err != nil {
		return err
	}
	metrics.IndexedEvents.WithLabelValues("CycleResolved").Inc()
	return nil
}

// decodePick maps an on-chain prediction to the domain pick encoding.
func decodePick(p contracts.PredictionData) (domain.Pick, error) {
	pick := domain.Pick{FixtureID: fmt.Sprintf("%d", p.MatchId)}
	code := markets.Decode32(p.Selection)

	switch p.BetType {
	case 0:
		pick.Market = domain.PickMarket1X2
		switch code {
		case markets.OutcomeHome:
			pick.Selection = domain.SelectionHome
		case markets.OutcomeDraw:
			pick.Selection = domain.SelectionDraw
		case markets.OutcomeAway:
			pick.Selection = domain.SelectionAway
		default:
			return pick, fmt.Errorf("unknown moneyline selection %q", code)
		}
	case 1:
		pick.Market = domain.PickMarketOU25
		switch code {
		case markets.OutcomeOver:
			pick.Selection = domain.SelectionOver
		case markets.OutcomeUnder:
			pick.Selection = domain.SelectionUnder
		default:
			return pick, fmt.Errorf("unknown over/under selection %q", code)
		}
	default:
		return pick, fmt.Errorf("unknown bet type %d", p.BetType)
	}
	return pick, nil
}
