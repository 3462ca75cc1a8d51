// Package oddyssey scores and ranks daily parlay slips and drives on-chain
// cycle resolution. The scoring rule mirrors the contract bit for bit: the
// final score is the 128-bit product of the frozen x1000 odds on correct
// picks, wrong picks contribute a factor of one, and overflow disqualifies
// the slip.
package oddyssey

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/markets"
)

// maxScoreBits bounds the product; the contract computes in uint128.
const maxScoreBits = 128

// selectionCode maps an on-chain pick selection to the canonical outcome
// code of its market family. Unknown selections never match anything.
func selectionCode(market, selection string) string {
	switch market {
	case domain.PickMarket1X2:
		switch selection {
		case domain.SelectionHome:
			return markets.OutcomeHome
		case domain.SelectionDraw:
			return markets.OutcomeDraw
		case domain.SelectionAway:
			return markets.OutcomeAway
		}
	case domain.PickMarketOU25:
		switch selection {
		case domain.SelectionOver:
			return markets.OutcomeOver
		case domain.SelectionUnder:
			return markets.OutcomeUnder
		}
	}
	return ""
}

// pickOdds returns the frozen odds for a pick from the cycle snapshot.
func pickOdds(m domain.CycleMatch, pick domain.Pick) uint64 {
	if pick.Market == domain.PickMarketOU25 {
		if pick.Selection == domain.SelectionUnder {
			return m.OddsUnder
		}
		return m.OddsOver
	}
	switch pick.Selection {
	case domain.SelectionDraw:
		return m.OddsDraw
	case domain.SelectionAway:
		return m.OddsAway
	default:
		return m.OddsHome
	}
}

// scoredSlip pairs an evaluation with its exact score for ranking.
type scoredSlip struct {
	eval     domain.SlipEvaluation
	score    *uint256.Int
	eligible bool
}

// evaluate scores one slip against the cycle snapshot and the derived
// outcomes. outcomes maps fixture id -> pick market -> canonical code; a
// missing entry is a void market, which neither scores nor counts.
func evaluate(
	slip domain.Slip,
	snapshot map[string]domain.CycleMatch,
	outcomes map[string]map[string]string,
	minCorrect int,
	at time.Time,
) scoredSlip {
	score := uint256.NewInt(1)
	correct := 0
	disqualified := false

	for _, pick := range slip.Picks {
		fixtureOutcomes, ok := outcomes[pick.FixtureID]
		if !ok {
			continue
		}
		code, ok := fixtureOutcomes[pick.Market]
		if !ok {
			// Void market: factor of one, no correct increment.
			continue
		}
		if code != selectionCode(pick.Market, pick.Selection) {
			continue
		}
		correct++
		if disqualified {
			continue
		}
		odds := pickOdds(snapshot[pick.FixtureID], pick)
		if _, overflow := score.MulOverflow(score, uint256.NewInt(odds)); overflow || score.BitLen() > maxScoreBits {
			disqualified = true
		}
	}

	eligible := !disqualified && correct >= minCorrect
	final := "0"
	if eligible {
		final = score.Dec()
	}
	return scoredSlip{
		eval: domain.SlipEvaluation{
			SlipID:               slip.SlipID,
			CycleID:              slip.CycleID,
			CorrectCount:         correct,
			FinalScore:           final,
			DisqualifiedOverflow: disqualified,
			EvaluatedAt:          at,
		},
		score:    score,
		eligible: eligible,
	}
}
