package oddyssey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/bitredict/backend/internal/chain/contracts"
	"github.com/bitredict/backend/internal/config"
	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/metrics"
	"github.com/bitredict/backend/internal/notify"
)

// TxSender signs and submits oracle bot transactions.
type TxSender interface {
	Address() common.Address
	Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
}

// Alerter is the operator notification hook.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// winnersLen is how many winning slips the contract reports per cycle.
const winnersLen = 5

// Resolver scores each due cycle's slips, persists the evaluations, and
// triggers on-chain resolution, verifying the contract's winner list against
// its own ranking.
type Resolver struct {
	cycles  domain.CycleStore
	slips   domain.SlipStore
	evals   domain.EvaluationStore
	results domain.ResultStore
	audits  domain.AuditStore
	locks   domain.LockManager

	sender       TxSender
	alerts       Alerter
	oddysseyAddr common.Address

	cfg    config.OddysseyConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver creates a cycle resolver.
func NewResolver(
	cycles domain.CycleStore,
	slips domain.SlipStore,
	evals domain.EvaluationStore,
	results domain.ResultStore,
	audits domain.AuditStore,
	locks domain.LockManager,
	sender TxSender,
	alerts Alerter,
	oddysseyAddr common.Address,
	cfg config.OddysseyConfig,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		cycles:       cycles,
		slips:        slips,
		evals:        evals,
		results:      results,
		audits:       audits,
		locks:        locks,
		sender:       sender,
		alerts:       alerts,
		oddysseyAddr: oddysseyAddr,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "resolver")),
		now:          time.Now,
	}
}

// Run scans for resolvable cycles until the context is cancelled.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Tick())
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "resolver loop started", slog.Duration("tick", r.cfg.Tick()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep resolves every cycle whose end time has passed.
func (r *Resolver) Sweep(ctx context.Context) {
	cycles, err := r.cycles.ListResolvable(ctx, r.now(), 10)
	if err != nil {
		r.logger.ErrorContext(ctx, "list resolvable cycles", slog.String("error", err.Error()))
		return
	}
	for _, c := range cycles {
		err := r.ResolveOne(ctx, c.ID)
		switch {
		case err == nil, errors.Is(err, domain.ErrLockHeld):
		case domain.ClassOf(err) == domain.ClassDataIncomplete:
			r.logger.DebugContext(ctx, "cycle not resolvable yet",
				slog.Uint64("cycle_id", c.ID),
				slog.String("reason", err.Error()),
			)
		default:
			r.logger.ErrorContext(ctx, "cycle resolution failed",
				slog.Uint64("cycle_id", c.ID),
				slog.String("class", domain.ClassOf(err).String()),
				slog.String("error", err.Error()),
			)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// ResolveOne runs the full resolution workflow for one cycle under its
// advisory lock.
func (r *Resolver) ResolveOne(ctx context.Context, cycleID uint64) error {
	unlock, err := r.locks.Acquire(ctx, fmt.Sprintf("cycle:%d", cycleID))
	if err != nil {
		return err
	}
	defer unlock()

	cycle, err := r.cycles.Get(ctx, cycleID)
	if err != nil {
		return err
	}
	if cycle.IsResolved && cycle.EvaluationCompleted {
		return nil
	}
	if r.now().Before(cycle.CycleEndTime) {
		return domain.DataIncomplete(fmt.Errorf("oddyssey: cycle %d ends at %s", cycleID, cycle.CycleEndTime))
	}

	outcomes, missing, err := r.collectOutcomes(ctx, cycle)
	if err != nil {
		return err
	}
	partial := false
	if missing > 0 {
		if r.now().Before(cycle.CycleEndTime.Add(r.cfg.Grace())) {
			return domain.DataIncomplete(fmt.Errorf("oddyssey: cycle %d: %d fixture outcomes still missing within grace", cycleID, missing))
		}
		if !r.cfg.AllowPartial {
			_ = r.alerts.Notify(ctx, notify.EventSettlementHalted,
				"Cycle resolution blocked",
				fmt.Sprintf("cycle %d: %d fixture outcomes missing past grace and partial resolution is disabled", cycleID, missing))
			return domain.PermanentChain(fmt.Errorf("oddyssey: cycle %d: outcomes missing past grace, partial resolution disabled", cycleID))
		}
		partial = true
	}

	slips, err := r.slips.ListByCycle(ctx, cycleID)
	if err != nil {
		return err
	}

	snapshot := make(map[string]domain.CycleMatch, len(cycle.Matches))
	for _, m := range cycle.Matches {
		snapshot[m.FixtureID] = m
	}

	minCorrect := r.cfg.MinCorrect
	if minCorrect <= 0 {
		minCorrect = 7
	}
	at := r.now()
	scored := make([]scoredSlip, len(slips))
	for i, s := range slips {
		scored[i] = evaluate(s, snapshot, outcomes, minCorrect, at)
	}
	rank(scored)

	evals := make([]domain.SlipEvaluation, len(scored))
	for i := range scored {
		evals[i] = scored[i].eval
	}
	if err := r.evals.SaveBatch(ctx, cycleID, evals); err != nil {
		return err
	}
	metrics.SlipsEvaluated.Add(float64(len(evals)))

	if partial {
		if err := r.cycles.MarkPartialResolution(ctx, cycleID); err != nil {
			return err
		}
		r.logger.WarnContext(ctx, "cycle resolved partially, void markets scored as factor one",
			slog.Uint64("cycle_id", cycleID),
			slog.Int("missing_outcomes", missing),
		)
	}

	observed, err := r.resolveOnChain(ctx, cycleID)
	if err != nil {
		return err
	}

	expected := topN(scored, winnersLen)
	if observed != nil && !sameWinners(expected, observed) {
		metrics.SettlementDivergences.Inc()
		d := domain.ResolutionDivergence{
			ID:          uuid.NewString(),
			CycleID:     cycleID,
			ExpectedTop: expected,
			ObservedTop: observed,
			CreatedAt:   r.now(),
		}
		if aerr := r.audits.RecordResolutionDivergence(ctx, d); aerr != nil {
			return aerr
		}
		r.logger.WarnContext(ctx, "resolution divergence",
			slog.Uint64("cycle_id", cycleID),
			slog.Any("expected", expected),
			slog.Any("observed", observed),
		)
		_ = r.alerts.Notify(ctx, notify.EventDivergence,
			"Cycle resolution divergence",
			fmt.Sprintf("cycle %d: resolver ranked %v, contract reported %v", cycleID, expected, observed))
	}

	if err := r.cycles.MarkResolved(ctx, cycleID, r.now()); err != nil {
		return err
	}
	metrics.CyclesResolved.Inc()
	r.logger.InfoContext(ctx, "cycle resolved",
		slog.Uint64("cycle_id", cycleID),
		slog.Int("slips", len(slips)),
		slog.Bool("partial", partial),
	)
	_ = r.alerts.Notify(ctx, notify.EventCycleResolved,
		"Cycle resolved",
		fmt.Sprintf("cycle %d resolved with %d slips", cycleID, len(slips)))
	return nil
}

// collectOutcomes reads the derived 1X2 and OU25 codes for every fixture in
// the cycle snapshot. Markets without a stored outcome are left out of the
// map and counted as missing.
func (r *Resolver) collectOutcomes(ctx context.Context, cycle *domain.Cycle) (map[string]map[string]string, int, error) {
	outcomes := make(map[string]map[string]string, len(cycle.Matches))
	missing := 0
	for _, m := range cycle.Matches {
		entry := make(map[string]string, 2)
		for _, market := range []string{domain.PickMarket1X2, domain.PickMarketOU25} {
			code, err := r.results.Outcome(ctx, m.FixtureID, market)
			switch {
			case err == nil:
				entry[market] = code
			case errors.Is(err, domain.ErrNotFound):
				missing++
			default:
				return nil, 0, err
			}
		}
		outcomes[m.FixtureID] = entry
	}
	return outcomes, missing, nil
}

// resolveOnChain submits resolveDailyCycle and extracts the contract's
// winner list from the receipt. A whitelisted CYCLE_ALREADY_RESOLVED revert
// means another process won the race; winners are then unknown and
// verification is skipped.
func (r *Resolver) resolveOnChain(ctx context.Context, cycleID uint64) ([]uint64, error) {
	data, err := contracts.PackResolveDailyCycle(cycleID)
	if err != nil {
		return nil, fmt.Errorf("oddyssey: pack resolveDailyCycle: %w", err)
	}

	receipt, err := r.sender.Send(ctx, r.oddysseyAddr, data)
	switch {
	case err == nil:
		metrics.TxSent.WithLabelValues("resolveDailyCycle", "ok").Inc()
	case errors.Is(err, domain.ErrAlreadySettled):
		return nil, nil
	default:
		metrics.TxSent.WithLabelValues("resolveDailyCycle", "error").Inc()
		return nil, err
	}

	for _, lg := range receipt.Logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != contracts.CycleResolvedTopic {
			continue
		}
		ev, perr := contracts.ParseCycleResolved(*lg)
		if perr != nil {
			return nil, perr
		}
		winners := make([]uint64, 0, winnersLen)
		for _, id := range ev.WinningSlipIDs {
			if id != 0 {
				winners = append(winners, id)
			}
		}
		return winners, nil
	}
	return nil, nil
}

// Reevaluate recomputes evaluations for a cycle and reports mismatches with
// the stored rows without rewriting them. Used by the operator CLI after a
// result supersede.
func (r *Resolver) Reevaluate(ctx context.Context, cycleID uint64) ([]string, error) {
	cycle, err := r.cycles.Get(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	outcomes, _, err := r.collectOutcomes(ctx, cycle)
	if err != nil {
		return nil, err
	}
	slips, err := r.slips.ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	stored, err := r.evals.ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	storedBySlip := make(map[uint64]domain.SlipEvaluation, len(stored))
	for _, ev := range stored {
		storedBySlip[ev.SlipID] = ev
	}

	snapshot := make(map[string]domain.CycleMatch, len(cycle.Matches))
	for _, m := range cycle.Matches {
		snapshot[m.FixtureID] = m
	}
	minCorrect := r.cfg.MinCorrect
	if minCorrect <= 0 {
		minCorrect = 7
	}

	scored := make([]scoredSlip, len(slips))
	for i, s := range slips {
		scored[i] = evaluate(s, snapshot, outcomes, minCorrect, r.now())
	}
	rank(scored)

	var mismatches []string
	for _, sc := range scored {
		old, ok := storedBySlip[sc.eval.SlipID]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("slip %d: no stored evaluation", sc.eval.SlipID))
			continue
		}
		if old.FinalScore != sc.eval.FinalScore || old.CorrectCount != sc.eval.CorrectCount || old.Rank != sc.eval.Rank {
			mismatches = append(mismatches, fmt.Sprintf(
				"slip %d: stored score=%s correct=%d rank=%d, recomputed score=%s correct=%d rank=%d",
				sc.eval.SlipID, old.FinalScore, old.CorrectCount, old.Rank,
				sc.eval.FinalScore, sc.eval.CorrectCount, sc.eval.Rank))
		}
	}
	return mismatches, nil
}

func sameWinners(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
