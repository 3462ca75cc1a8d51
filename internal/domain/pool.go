package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OracleType distinguishes how a pool's outcome is sourced.
type OracleType uint8

const (
	OracleGuided     OracleType = 0
	OracleOptimistic OracleType = 1
)

func (t OracleType) String() string {
	if t == OracleOptimistic {
		return "OPTIMISTIC"
	}
	return "GUIDED"
}

// PoolStatus is the settlement lifecycle of a pool.
type PoolStatus string

const (
	PoolOpen           PoolStatus = "OPEN"
	PoolBettingClosed  PoolStatus = "BETTING_CLOSED"
	PoolAwaitingResult PoolStatus = "AWAITING_RESULT"
	PoolSettled        PoolStatus = "SETTLED"
	PoolRefunded       PoolStatus = "REFUNDED"
)

// Pool mirrors an on-chain prediction pool. PoolID is assigned monotonically
// by the contract. The pool is contrarian: the creator wins when the
// predicted outcome does not occur. MarketID binds the pool to one fixture
// and one market family; FixtureID and Market are its decoded projection.
type Pool struct {
	PoolID           uint64
	Creator          string
	Odds             uint32 // fixed-point x100
	PredictedOutcome string // decoded outcome code
	MarketID         [32]byte
	FixtureID        string
	Market           string
	OracleType       OracleType
	EventStart       time.Time
	EventEnd         time.Time
	BettingEnd       time.Time
	Status           PoolStatus
	IsSettled        bool
	CreatorSideWon   *bool
	Result           string // decoded outcome code observed at settlement
	ResultTimestamp  *time.Time
	SettlementHalted bool
	HaltReason       string
}

// ArbitrationDeadline is the instant after which a pool whose market can
// never be derived (for example an HT market with no reported halves) is
// refunded instead of settled.
func (p Pool) ArbitrationDeadline(window time.Duration) time.Time {
	return p.EventEnd.Add(window)
}

// Bet is one indexed wager on a pool. Amount is kept in on-chain base units
// as an exact decimal. Bets are immutable once indexed.
type Bet struct {
	PoolID       uint64
	Bettor       string
	Amount       decimal.Decimal
	IsForOutcome bool
	TxHash       string
	LogIndex     uint32
	BlockNumber  uint64
	PlacedAt     time.Time
}
