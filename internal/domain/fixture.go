// Package domain defines the core entities of the oracle and settlement
// pipeline (fixtures, pools, cycles, slips), the store interfaces they are
// persisted through, and the shared error taxonomy.
package domain

import "time"

// FixtureStatus is the lifecycle state of a fixture as reported by the
// sports provider, mapped to our internal enum.
type FixtureStatus string

const (
	StatusScheduled FixtureStatus = "SCHEDULED"
	StatusInplay1st FixtureStatus = "INPLAY_1ST"
	StatusHalftime  FixtureStatus = "HT"
	StatusInplay2nd FixtureStatus = "INPLAY_2ND"
	StatusFullTime  FixtureStatus = "FT"
	StatusExtraTime FixtureStatus = "AET"
	StatusPenalties FixtureStatus = "PEN"
	StatusPostponed FixtureStatus = "POSTPONED"
	StatusCancelled FixtureStatus = "CANCELLED"
)

// Finished reports whether the fixture has reached a terminal played state.
// Status is monotonic: once finished a fixture never reverts to live.
func (s FixtureStatus) Finished() bool {
	return s == StatusFullTime || s == StatusExtraTime || s == StatusPenalties
}

// Live reports whether the fixture is currently in play.
func (s FixtureStatus) Live() bool {
	switch s {
	case StatusInplay1st, StatusHalftime, StatusInplay2nd:
		return true
	}
	return false
}

// Abandoned reports whether the fixture will never produce a result.
func (s FixtureStatus) Abandoned() bool {
	return s == StatusPostponed || s == StatusCancelled
}

// Fixture is a scheduled or played match. ID is the external provider id and
// is stable across the fixture's lifetime. Fixtures are created by the
// ingestor and mutated as status progresses; they are never deleted.
type Fixture struct {
	ID        string
	Home      string
	Away      string
	League    string
	Kickoff   time.Time
	Status    FixtureStatus
	UpdatedAt time.Time
}

// RawScores holds the provider-reported scores of a finished fixture.
// FT is the settling full-time score: the 90-minute score for fixtures that
// ended FT, or the after-extra-time score for AET/PEN fixtures (the provider
// reports shootout goals separately, they never enter FT).
//
// HT, ET and Pen are nil when the provider did not report the corresponding
// period (cup formats without halves, no extra time, no shootout).
type RawScores struct {
	HomeFT  int
	AwayFT  int
	HomeHT  *int
	AwayHT  *int
	HomeET  *int
	AwayET  *int
	HomePen *int
	AwayPen *int
}

// HasHalfTime reports whether both half-time scores are present.
func (r RawScores) HasHalfTime() bool {
	return r.HomeHT != nil && r.AwayHT != nil
}

// Equal reports field-wise equality, treating nil pointers as distinct from
// present zeros.
func (r RawScores) Equal(o RawScores) bool {
	return r.HomeFT == o.HomeFT && r.AwayFT == o.AwayFT &&
		intPtrEq(r.HomeHT, o.HomeHT) && intPtrEq(r.AwayHT, o.AwayHT) &&
		intPtrEq(r.HomeET, o.HomeET) && intPtrEq(r.AwayET, o.AwayET) &&
		intPtrEq(r.HomePen, o.HomePen) && intPtrEq(r.AwayPen, o.AwayPen)
}

func intPtrEq(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// FixtureResult is the stored unit of derivation output: the raw scores a
// derivation was computed from plus the canonical outcome code per market
// family. Outcomes only contains derivable markets; an absent key means the
// market is unavailable for this fixture.
type FixtureResult struct {
	FixtureID    string
	Raw          RawScores
	Outcomes     map[string]string
	SupersedeSeq int
	StoredAt     time.Time
}
