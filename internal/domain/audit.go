package domain

import "time"

// SettlementDivergence records a pool whose on-chain settlement disagrees
// with the outcome we derived. The chain is authoritative for settled state;
// the row preserves both sides for the operator.
type SettlementDivergence struct {
	ID              string // uuid
	PoolID          uint64
	DerivedOutcome  string
	ObservedOutcome string
	ExpectedCreator bool // creator_side_won under contrarian semantics
	ObservedCreator bool
	CreatedAt       time.Time
}

// ResolutionDivergence records a cycle whose on-chain winner list differs
// from the resolver's own ranking. The DB still reflects the chain.
type ResolutionDivergence struct {
	ID           string // uuid
	CycleID      uint64
	ExpectedTop  []uint64 // slip ids, resolver order
	ObservedTop  []uint64 // slip ids, contract order
	CreatedAt    time.Time
}

// ResultSupersede is the audit trail for an explicit correction of stored
// derived outcomes. Raw payloads are kept verbatim on both sides.
type ResultSupersede struct {
	ID          string // uuid
	FixtureID   string
	Seq         int
	OldRaw      RawScores
	NewRaw      RawScores
	OldOutcomes map[string]string
	NewOutcomes map[string]string
	Reason      string
	CreatedAt   time.Time
}
