// Package markets derives canonical market outcomes from raw scores and
// defines the fixed 32-byte outcome encoding shared with the contracts.
package markets

import (
	"bytes"
	"fmt"
	"strings"
)

// Market identifies a market family. Codes are never reused across families.
type Market string

const (
	Market1X2   Market = "1X2"
	MarketOU05  Market = "OU05"
	MarketOU15  Market = "OU15"
	MarketOU25  Market = "OU25"
	MarketOU35  Market = "OU35"
	MarketBTTS  Market = "BTTS"
	MarketHT1X2 Market = "HT_1X2"
	MarketHTOU05 Market = "HT_OU05"
	MarketHTOU15 Market = "HT_OU15"
)

// All lists every supported market family.
var All = []Market{
	Market1X2, MarketOU05, MarketOU15, MarketOU25, MarketOU35,
	MarketBTTS, MarketHT1X2, MarketHTOU05, MarketHTOU15,
}

// Canonical outcome codes. Short ASCII strings, zero-padded to 32 bytes for
// byte-for-byte comparison with the contract's bytes32 values.
const (
	OutcomeHome  = "1"
	OutcomeDraw  = "X"
	OutcomeAway  = "2"
	OutcomeOver  = "Over"
	OutcomeUnder = "Under"
	OutcomeYes   = "Yes"
	OutcomeNo    = "No"
)

// Valid reports whether m is a known market family.
func (m Market) Valid() bool {
	for _, k := range All {
		if m == k {
			return true
		}
	}
	return false
}

// HalfTime reports whether m derives from half-time scores.
func (m Market) HalfTime() bool {
	return m == MarketHT1X2 || m == MarketHTOU05 || m == MarketHTOU15
}

// Encode32 right-pads an ASCII outcome code with NULs to 32 bytes.
func Encode32(code string) [32]byte {
	var out [32]byte
	copy(out[:], code)
	return out
}

// Decode32 strips trailing NULs from a 32-byte outcome value.
func Decode32(v [32]byte) string {
	return string(bytes.TrimRight(v[:], "\x00"))
}

// MarketID binds one fixture and one market family into the contract's
// bytes32 market identifier: "<family>:<fixture id>", zero-padded.
func MarketID(fixtureID string, m Market) [32]byte {
	return Encode32(string(m) + ":" + fixtureID)
}

// ParseMarketID decodes a market identifier back into its fixture id and
// market family.
func ParseMarketID(v [32]byte) (fixtureID string, m Market, err error) {
	s := Decode32(v)
	i := strings.IndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("markets: malformed market id %q", s)
	}
	m = Market(s[:i])
	if !m.Valid() {
		return "", "", fmt.Errorf("markets: unknown market family %q", s[:i])
	}
	return s[i+1:], m, nil
}
