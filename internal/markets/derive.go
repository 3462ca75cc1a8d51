package markets

import "github.com/bitredict/backend/internal/domain"

// Derive computes the canonical outcome code for every derivable market
// family of a finished fixture. It is a pure function of the raw scores:
// identical inputs always produce identical codes.
//
// Full-time families settle on the after-extra-time score when extra time
// was played; penalty shootout goals never enter the totals. Half-time
// families are omitted from the result when the provider reported no halves;
// pools bound to them become refund candidates downstream.
func Derive(raw domain.RawScores) map[Market]string {
	h, a := raw.HomeFT, raw.AwayFT
	if raw.HomeET != nil && raw.AwayET != nil {
		h, a = *raw.HomeET, *raw.AwayET
	}

	out := map[Market]string{
		Market1X2:  winner(h, a),
		MarketOU05: overUnder(h+a, 0),
		MarketOU15: overUnder(h+a, 1),
		MarketOU25: overUnder(h+a, 2),
		MarketOU35: overUnder(h+a, 3),
	}

	if h >= 1 && a >= 1 {
		out[MarketBTTS] = OutcomeYes
	} else {
		out[MarketBTTS] = OutcomeNo
	}

	if raw.HasHalfTime() {
		hh, ha := *raw.HomeHT, *raw.AwayHT
		out[MarketHT1X2] = winner(hh, ha)
		out[MarketHTOU05] = overUnder(hh+ha, 0)
		out[MarketHTOU15] = overUnder(hh+ha, 1)
	}

	return out
}

// Unavailable lists the market families that cannot be derived for the given
// raw scores.
func Unavailable(raw domain.RawScores) []Market {
	if raw.HasHalfTime() {
		return nil
	}
	return []Market{MarketHT1X2, MarketHTOU05, MarketHTOU15}
}

func winner(h, a int) string {
	switch {
	case h > a:
		return OutcomeHome
	case a > h:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}

// overUnder settles total goals against a half-goal line; whole is the
// integer part of the line (e.g. 2 for the 2.5 line), so strictly-greater
// means over.
func overUnder(total, whole int) string {
	if total > whole {
		return OutcomeOver
	}
	return OutcomeUnder
}
