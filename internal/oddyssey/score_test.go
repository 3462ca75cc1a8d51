package oddyssey

import (
	"fmt"
	"testing"
	"time"

	"github.com/bitredict/backend/internal/domain"
	"github.com/bitredict/backend/internal/markets"
)

// tenMatchCycle builds a snapshot of ten fixtures all carrying the given
// home odds, plus a slip picking home on every fixture.
func tenMatchCycle(oddsHome uint64) (map[string]domain.CycleMatch, domain.Slip) {
	snapshot := make(map[string]domain.CycleMatch, 10)
	slip := domain.Slip{SlipID: 1, CycleID: 5}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("fx-%d", i)
		snapshot[id] = domain.CycleMatch{
			FixtureID: id,
			OddsHome:  oddsHome,
			OddsDraw:  3500,
			OddsAway:  4200,
			OddsOver:  1900,
			OddsUnder: 1900,
		}
		slip.Picks = append(slip.Picks, domain.Pick{
			FixtureID: id,
			Market:    domain.PickMarket1X2,
			Selection: domain.SelectionHome,
		})
	}
	return snapshot, slip
}

// homeOutcomes marks the first n fixtures as home wins and the rest as away.
func homeOutcomes(n int) map[string]map[string]string {
	out := make(map[string]map[string]string, 10)
	for i := 0; i < 10; i++ {
		code := markets.OutcomeAway
		if i < n {
			code = markets.OutcomeHome
		}
		out[fmt.Sprintf("fx-%d", i)] = map[string]string{
			domain.PickMarket1X2:  code,
			domain.PickMarketOU25: markets.OutcomeOver,
		}
	}
	return out
}

func TestScoreEightCorrectAtFrozenOdds(t *testing.T) {
	snapshot, slip := tenMatchCycle(1800)
	outcomes := homeOutcomes(8)

	got := evaluate(slip, snapshot, outcomes, 7, time.Now())

	if got.eval.CorrectCount != 8 {
		t.Errorf("correct_count = %d, want 8", got.eval.CorrectCount)
	}
	// 1800^8 with the x1000 scaling retained; wrong picks contribute 1.
	const want = "110199605760000000000000000"
	if got.eval.FinalScore != want {
		t.Errorf("final_score = %s, want %s", got.eval.FinalScore, want)
	}
	if !got.eligible {
		t.Error("eight correct with MIN_CORRECT=7 must be eligible")
	}
	if got.eval.DisqualifiedOverflow {
		t.Error("no overflow expected")
	}
}

func TestScoreBelowMinCorrectIsIneligible(t *testing.T) {
	snapshot, slip := tenMatchCycle(1800)
	outcomes := homeOutcomes(6)

	got := evaluate(slip, snapshot, outcomes, 7, time.Now())

	if got.eval.CorrectCount != 6 {
		t.Errorf("correct_count = %d, want 6", got.eval.CorrectCount)
	}
	if got.eligible {
		t.Error("six correct with MIN_CORRECT=7 must be ineligible")
	}
	if got.eval.FinalScore != "0" {
		t.Errorf("ineligible final_score = %s, want 0", got.eval.FinalScore)
	}
}

func TestScoreOverflowDisqualifies(t *testing.T) {
	// Ten correct picks at odds of 2^60 push the product past 2^128.
	snapshot, slip := tenMatchCycle(1 << 60)
	outcomes := homeOutcomes(10)

	got := evaluate(slip, snapshot, outcomes, 7, time.Now())

	if got.eval.CorrectCount != 10 {
		t.Errorf("correct_count = %d, want 10", got.eval.CorrectCount)
	}
	if !got.eval.DisqualifiedOverflow {
		t.Fatal("slip must be flagged disqualified on overflow")
	}
	if got.eval.FinalScore != "0" {
		t.Errorf("disqualified final_score = %s, want 0", got.eval.FinalScore)
	}
	if got.eligible {
		t.Error("disqualified slip must not be eligible")
	}
}

func TestVoidMarketContributesFactorOne(t *testing.T) {
	snapshot, slip := tenMatchCycle(2000)
	outcomes := homeOutcomes(10)
	// fx-9 never had its outcomes derived: void for both markets.
	delete(outcomes, "fx-9")

	got := evaluate(slip, snapshot, outcomes, 7, time.Now())

	if got.eval.CorrectCount != 9 {
		t.Errorf("correct_count = %d, want 9 (void pick does not count)", got.eval.CorrectCount)
	}
	// 2000^9, not 2000^10.
	const want = "512000000000000000000000000000"
	if got.eval.FinalScore != want {
		t.Errorf("final_score = %s, want %s", got.eval.FinalScore, want)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	snapshot, slip := tenMatchCycle(1937)
	outcomes := homeOutcomes(7)

	first := evaluate(slip, snapshot, outcomes, 7, time.Unix(0, 0))
	for i := 0; i < 50; i++ {
		again := evaluate(slip, snapshot, outcomes, 7, time.Unix(0, 0))
		if again.eval.FinalScore != first.eval.FinalScore || again.eval.CorrectCount != first.eval.CorrectCount {
			t.Fatalf("run %d diverged: %+v vs %+v", i, again.eval, first.eval)
		}
	}
}

func TestRankingTiebreakBySlipID(t *testing.T) {
	snapshot, _ := tenMatchCycle(1800)
	outcomes := homeOutcomes(8)

	// Identical picks on three slips: equal score, equal correct count.
	var slips []scoredSlip
	for _, id := range []uint64{42, 7, 19} {
		s := domain.Slip{SlipID: id, CycleID: 5}
		for i := 0; i < 10; i++ {
			s.Picks = append(s.Picks, domain.Pick{
				FixtureID: fmt.Sprintf("fx-%d", i),
				Market:    domain.PickMarket1X2,
				Selection: domain.SelectionHome,
			})
		}
		slips = append(slips, evaluate(s, snapshot, outcomes, 7, time.Now()))
	}
	rank(slips)

	byID := make(map[uint64]int, len(slips))
	for _, s := range slips {
		byID[s.eval.SlipID] = s.eval.Rank
	}
	if byID[7] != 1 || byID[19] != 2 || byID[42] != 3 {
		t.Errorf("ranks = %v, want slip 7 first, 19 second, 42 third", byID)
	}
}

func TestRankingSkipsIneligible(t *testing.T) {
	snapshot, winner := tenMatchCycle(1800)
	outcomes := homeOutcomes(8)

	loser := domain.Slip{SlipID: 2, CycleID: 5}
	for i := 0; i < 10; i++ {
		loser.Picks = append(loser.Picks, domain.Pick{
			FixtureID: fmt.Sprintf("fx-%d", i),
			Market:    domain.PickMarket1X2,
			Selection: domain.SelectionAway,
		})
	}

	slips := []scoredSlip{
		evaluate(winner, snapshot, outcomes, 7, time.Now()),
		evaluate(loser, snapshot, outcomes, 7, time.Now()),
	}
	rank(slips)

	if slips[0].eval.Rank != 1 {
		t.Errorf("winner rank = %d, want 1", slips[0].eval.Rank)
	}
	if slips[1].eval.Rank != 0 {
		t.Errorf("ineligible slip rank = %d, want 0", slips[1].eval.Rank)
	}
	if got := topN(slips, winnersLen); len(got) != 1 || got[0] != winner.SlipID {
		t.Errorf("topN = %v, want [%d]", got, winner.SlipID)
	}
}

func TestSelectionMapping(t *testing.T) {
	cases := []struct {
		market, sel, want string
	}{
		{domain.PickMarket1X2, domain.SelectionHome, markets.OutcomeHome},
		{domain.PickMarket1X2, domain.SelectionDraw, markets.OutcomeDraw},
		{domain.PickMarket1X2, domain.SelectionAway, markets.OutcomeAway},
		{domain.PickMarketOU25, domain.SelectionOver, markets.OutcomeOver},
		{domain.PickMarketOU25, domain.SelectionUnder, markets.OutcomeUnder},
		{domain.PickMarket1X2, "Z", ""},
		{domain.PickMarketOU25, domain.SelectionHome, ""},
	}
	for _, c := range cases {
		if got := selectionCode(c.market, c.sel); got != c.want {
			t.Errorf("selectionCode(%s, %s) = %q, want %q", c.market, c.sel, got, c.want)
		}
	}
}
