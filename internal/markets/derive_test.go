package markets

import (
	"reflect"
	"testing"

	"github.com/bitredict/backend/internal/domain"
)

func ip(v int) *int { return &v }

func TestDeriveFullGame(t *testing.T) {
	// Fixture 19429285: FT 2-1, HT 1-0.
	raw := domain.RawScores{HomeFT: 2, AwayFT: 1, HomeHT: ip(1), AwayHT: ip(0)}
	out := Derive(raw)

	want := map[Market]string{
		Market1X2:    "1",
		MarketOU05:   "Over",
		MarketOU15:   "Over",
		MarketOU25:   "Over",
		MarketOU35:   "Under",
		MarketBTTS:   "Yes",
		MarketHT1X2:  "1",
		MarketHTOU05: "Over",
		MarketHTOU15: "Under",
	}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("Derive mismatch:\n got %v\nwant %v", out, want)
	}
}

func TestDeriveBTTSNo(t *testing.T) {
	out := Derive(domain.RawScores{HomeFT: 2, AwayFT: 0})
	if out[MarketBTTS] != OutcomeNo {
		t.Errorf("BTTS for 2-0 = %q, want No", out[MarketBTTS])
	}
}

func TestDeriveDraw(t *testing.T) {
	out := Derive(domain.RawScores{HomeFT: 1, AwayFT: 1, HomeHT: ip(0), AwayHT: ip(0)})
	if out[Market1X2] != OutcomeDraw {
		t.Errorf("1X2 for 1-1 = %q, want X", out[Market1X2])
	}
	if out[MarketHT1X2] != OutcomeDraw {
		t.Errorf("HT_1X2 for 0-0 = %q, want X", out[MarketHT1X2])
	}
	if out[MarketOU15] != OutcomeOver {
		t.Errorf("OU15 for 2 goals = %q, want Over", out[MarketOU15])
	}
	if out[MarketOU25] != OutcomeUnder {
		t.Errorf("OU25 for 2 goals = %q, want Under", out[MarketOU25])
	}
}

func TestDeriveExtraTime(t *testing.T) {
	// 1-1 after 90, 2-1 after extra time, shootout ignored.
	raw := domain.RawScores{
		HomeFT: 1, AwayFT: 1,
		HomeHT: ip(0), AwayHT: ip(1),
		HomeET: ip(2), AwayET: ip(1),
		HomePen: ip(4), AwayPen: ip(3),
	}
	out := Derive(raw)
	if out[Market1X2] != OutcomeHome {
		t.Errorf("1X2 after ET = %q, want 1", out[Market1X2])
	}
	if out[MarketOU25] != OutcomeOver {
		t.Errorf("OU25 after ET (3 goals) = %q, want Over", out[MarketOU25])
	}
	// HT markets still settle on the half-time score.
	if out[MarketHT1X2] != OutcomeAway {
		t.Errorf("HT_1X2 = %q, want 2", out[MarketHT1X2])
	}
}

func TestDeriveMissingHalfTime(t *testing.T) {
	raw := domain.RawScores{HomeFT: 3, AwayFT: 0}
	out := Derive(raw)
	for _, m := range []Market{MarketHT1X2, MarketHTOU05, MarketHTOU15} {
		if _, ok := out[m]; ok {
			t.Errorf("%s derived despite missing half-time scores", m)
		}
	}
	unavail := Unavailable(raw)
	if len(unavail) != 3 {
		t.Errorf("Unavailable = %v, want the three HT families", unavail)
	}
}

func TestDeriveDeterministic(t *testing.T) {
	raw := domain.RawScores{HomeFT: 2, AwayFT: 2, HomeHT: ip(1), AwayHT: ip(2)}
	first := Derive(raw)
	for i := 0; i < 100; i++ {
		if !reflect.DeepEqual(Derive(raw), first) {
			t.Fatal("Derive is not deterministic")
		}
	}
}

func TestEncodeDecode32(t *testing.T) {
	for _, code := range []string{OutcomeHome, OutcomeDraw, OutcomeAway, OutcomeOver, OutcomeUnder, OutcomeYes, OutcomeNo} {
		enc := Encode32(code)
		if got := Decode32(enc); got != code {
			t.Errorf("Decode32(Encode32(%q)) = %q", code, got)
		}
	}
	enc := Encode32("1")
	if enc[0] != '1' || enc[1] != 0 || enc[31] != 0 {
		t.Errorf("Encode32 padding wrong: %v", enc)
	}
}

func TestMarketIDRoundTrip(t *testing.T) {
	id := MarketID("19429285", MarketHT1X2)
	fixture, market, err := ParseMarketID(id)
	if err != nil {
		t.Fatalf("ParseMarketID: %v", err)
	}
	if fixture != "19429285" || market != MarketHT1X2 {
		t.Errorf("round trip = (%q, %q)", fixture, market)
	}

	if _, _, err := ParseMarketID(Encode32("nonsense")); err == nil {
		t.Error("ParseMarketID accepted a value with no separator")
	}
	if _, _, err := ParseMarketID(Encode32("WAT:123")); err == nil {
		t.Error("ParseMarketID accepted an unknown family")
	}
}
