package sportmonks

import "github.com/bitredict/backend/internal/domain"

// mapState converts a provider state string to the internal fixture status.
// Unknown states map to SCHEDULED so a new provider state never corrupts a
// finished fixture (status writes are monotonic at the store).
func mapState(s string) domain.FixtureStatus {
	switch s {
	case "NS", "TBA":
		return domain.StatusScheduled
	case "INPLAY_1ST_HALF", "1st-half":
		return domain.StatusInplay1st
	case "HT", "half-time":
		return domain.StatusHalftime
	case "INPLAY_2ND_HALF", "2nd-half", "INPLAY_ET", "extra-time", "INPLAY_PENALTIES":
		return domain.StatusInplay2nd
	case "FT", "FT_PEN_DELAYED":
		return domain.StatusFullTime
	case "AET":
		return domain.StatusExtraTime
	case "FT_PEN", "PEN":
		return domain.StatusPenalties
	case "POSTPONED", "DELAYED", "SUSPENDED":
		return domain.StatusPostponed
	case "CANCELLED", "ABANDONED", "WALKOVER":
		return domain.StatusCancelled
	default:
		return domain.StatusScheduled
	}
}
