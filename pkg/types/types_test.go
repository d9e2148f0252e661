package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPriceLevelEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lvl  PriceLevel
		want bool
	}{
		{"both zero", PriceLevel{Price: dec("100"), BidSize: decimal.Zero, AskSize: decimal.Zero}, true},
		{"bid only", PriceLevel{Price: dec("100"), BidSize: dec("1"), AskSize: decimal.Zero}, false},
		{"ask only", PriceLevel{Price: dec("100"), BidSize: decimal.Zero, AskSize: dec("1")}, false},
		{"both set", PriceLevel{Price: dec("100"), BidSize: dec("1"), AskSize: dec("1")}, false},
	}

	for _, tt := range tests {
		if got := tt.lvl.Empty(); got != tt.want {
			t.Errorf("%s: Empty() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTradeNotional(t *testing.T) {
	t.Parallel()

	tr := Trade{Price: dec("1800.5"), Size: dec("2")}
	want := dec("3601.0")
	if got := tr.Notional(); !got.Equal(want) {
		t.Errorf("Notional() = %s, want %s", got, want)
	}
}

func TestConfirmedSweepZoneMinMax(t *testing.T) {
	t.Parallel()

	s := ConfirmedSweep{
		Direction: SweepDown,
		Prices:    []decimal.Decimal{dec("1800"), dec("1799.5"), dec("1799"), dec("1798.5")},
	}

	if got := s.ZoneMin(); !got.Equal(dec("1798.5")) {
		t.Errorf("ZoneMin() = %s, want 1798.5", got)
	}
	if got := s.ZoneMax(); !got.Equal(dec("1800")) {
		t.Errorf("ZoneMax() = %s, want 1800", got)
	}
}
