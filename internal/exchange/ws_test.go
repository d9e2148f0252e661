package exchange

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

func TestRawLevelToLevelUpdate(t *testing.T) {
	t.Parallel()

	lvl, err := rawLevel{"1800.50", "2.5"}.toLevelUpdate()
	if err != nil {
		t.Fatalf("toLevelUpdate: %v", err)
	}
	if !lvl.Price.Equal(dec("1800.50")) {
		t.Errorf("price = %s, want 1800.50", lvl.Price)
	}
	if !lvl.Size.Equal(dec("2.5")) {
		t.Errorf("size = %s, want 2.5", lvl.Size)
	}
}

func TestRawLevelToLevelUpdateMalformed(t *testing.T) {
	t.Parallel()

	if _, err := (rawLevel{"not-a-price", "1"}).toLevelUpdate(); err == nil {
		t.Error("expected error for malformed price")
	}
	if _, err := (rawLevel{"1", "not-a-size"}).toLevelUpdate(); err == nil {
		t.Error("expected error for malformed size")
	}
}

func TestToLevelUpdates(t *testing.T) {
	t.Parallel()

	raw := []rawLevel{{"100", "1"}, {"101", "2"}}
	out, err := toLevelUpdates(raw)
	if err != nil {
		t.Fatalf("toLevelUpdates: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if !out[1].Price.Equal(dec("101")) {
		t.Errorf("out[1].Price = %s, want 101", out[1].Price)
	}
}

func TestToLevelUpdatesPropagatesError(t *testing.T) {
	t.Parallel()

	raw := []rawLevel{{"100", "1"}, {"bad", "2"}}
	if _, err := toLevelUpdates(raw); err == nil {
		t.Error("expected error to propagate from malformed level")
	}
}
