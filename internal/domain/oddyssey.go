package domain

import "time"

// CycleMatch is one entry of a cycle's frozen match snapshot: a fixture plus
// the odds captured at cycle start. Odds are fixed-point x1000 integers,
// matching the contract's scaling. Historical scores are always computed
// from these frozen values, never from live odds.
type CycleMatch struct {
	FixtureID string
	Kickoff   time.Time
	OddsHome  uint64
	OddsDraw  uint64
	OddsAway  uint64
	OddsOver  uint64 // OU 2.5
	OddsUnder uint64
}

// Cycle is one daily parlay round: ten frozen matches, a hard end time, and
// resolution bookkeeping. EvaluationCompleted is a write-ahead flag: it is
// flipped only after the full evaluation batch commits, so readers must skip
// cycles where it is false.
type Cycle struct {
	ID                  uint64
	Matches             []CycleMatch
	CycleEndTime        time.Time
	IsResolved          bool
	EvaluationCompleted bool
	PartialResolution   bool
	ResolvedAt          *time.Time
	CreatedAt           time.Time
}

// Pick market families. Oddyssey slips only ever carry these two.
const (
	PickMarket1X2  = "1X2"
	PickMarketOU25 = "OU25"
)

// Pick selections as submitted on-chain.
const (
	SelectionHome  = "H"
	SelectionDraw  = "D"
	SelectionAway  = "A"
	SelectionOver  = "O"
	SelectionUnder = "U"
)

// Pick is a single prediction inside a slip.
type Pick struct {
	FixtureID string
	Market    string // PickMarket1X2 or PickMarketOU25
	Selection string // H/D/A for 1X2, O/U for OU25
}

// SlipSize is the fixed number of picks per slip.
const SlipSize = 10

// Slip is one player's set of ten picks for a cycle. Immutable after
// placement.
type Slip struct {
	SlipID   uint64
	CycleID  uint64
	Player   string
	Picks    []Pick
	TxHash   string
	PlacedAt time.Time
}

// SlipEvaluation is the resolver's verdict for one slip, written exactly
// once per cycle resolution. FinalScore is the decimal rendering of the
// 128-bit product of frozen odds on correct picks (x1000 scaling retained);
// it is zero for ineligible and overflow-disqualified slips. Rank is 1-based
// among eligible slips and zero otherwise.
type SlipEvaluation struct {
	SlipID               uint64
	CycleID              uint64
	CorrectCount         int
	FinalScore           string
	Rank                 int
	DisqualifiedOverflow bool
	EvaluatedAt          time.Time
}
