package flow

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/config"
	"orderflow-engine/pkg/types"
)

type fakeBook struct {
	levels map[string]types.PriceLevel
	mid    decimal.Decimal
	hasMid bool
	depth  decimal.Decimal
}

func (f *fakeBook) Depth(types.Side, int) decimal.Decimal      { return f.depth }
func (f *fakeBook) MidPrice() (decimal.Decimal, bool)          { return f.mid, f.hasMid }
func (f *fakeBook) SnapshotCopy() map[string]types.PriceLevel  { return f.levels }

func testAnalyzer() *Analyzer {
	cfg := config.FlowConfig{
		DeltaWindowSeconds:      5,
		TradeHistorySeconds:     60,
		PriceMovementThreshold:  0.01,
		MinAbsorptionRatio:      2.0,
		SweepMinLevels:          2,
		SweepConfirmWindowMs:    500,
		MinSweepNotional:        100,
		MinTradeConfirmNotional: 100,
	}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAnalyzerTickBasicDelta(t *testing.T) {
	t.Parallel()
	a := testAnalyzer()

	a.OnTrade(types.Trade{Price: dec("100"), Size: dec("3"), Side: types.Buy, TimestampMs: 9000})
	a.OnTrade(types.Trade{Price: dec("100"), Size: dec("1"), Side: types.Sell, TimestampMs: 9500})

	fb := &fakeBook{levels: bookLevels(map[string][2]string{"100": {"1", "1"}}), mid: dec("100"), hasMid: true, depth: dec("10")}
	state := a.Tick(fb, 10000, true)

	if !state.Delta.Raw.Equal(dec("2")) {
		t.Errorf("Delta.Raw = %s, want 2", state.Delta.Raw)
	}
	if state.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2", state.TotalTrades)
	}
	if !state.HasMidPrice || !state.MidPrice.Equal(dec("100")) {
		t.Errorf("MidPrice = %v (has=%v), want 100", state.MidPrice, state.HasMidPrice)
	}
	if state.Sweep != nil {
		t.Error("expected no sweep on first tick (no previous book)")
	}
}

func TestAnalyzerTickDetectsSweepAcrossTicks(t *testing.T) {
	t.Parallel()
	a := testAnalyzer()

	prevBook := &fakeBook{
		levels: bookLevels(map[string][2]string{
			"100":   {"1", "0"},
			"99.5":  {"1", "0"},
			"99":    {"1", "0"},
		}),
		mid: dec("100"), hasMid: true, depth: dec("10"),
	}
	a.Tick(prevBook, 9000, true)

	a.OnTrade(types.Trade{Price: dec("99.5"), Size: dec("50"), Side: types.Sell, TimestampMs: 9400})

	currBook := &fakeBook{levels: bookLevels(map[string][2]string{}), mid: decimal.Zero, hasMid: false, depth: dec("10")}
	state := a.Tick(currBook, 9500, true)

	if state.Sweep == nil {
		t.Fatal("expected sweep confirmed on second tick")
	}
	if state.Sweep.Direction != types.SweepDown {
		t.Errorf("Direction = %v, want down", state.Sweep.Direction)
	}
}

func TestAnalyzerTickSkipsSweepWhenUnsynced(t *testing.T) {
	t.Parallel()
	a := testAnalyzer()

	prevBook := &fakeBook{levels: bookLevels(map[string][2]string{"100": {"1", "0"}, "99.5": {"1", "0"}}), depth: dec("10")}
	a.Tick(prevBook, 9000, true)

	a.OnTrade(types.Trade{Price: dec("99.5"), Size: dec("50"), Side: types.Sell, TimestampMs: 9400})
	currBook := &fakeBook{levels: bookLevels(map[string][2]string{}), depth: dec("10")}
	state := a.Tick(currBook, 9500, false)

	if state.Sweep != nil {
		t.Error("expected no sweep while unsynced")
	}
	if state.IsSynced {
		t.Error("IsSynced should reflect the synced argument")
	}
}

func TestAnalyzerTickSkipsSweepWhenStale(t *testing.T) {
	t.Parallel()
	a := testAnalyzer()

	prevBook := &fakeBook{levels: bookLevels(map[string][2]string{"100": {"1", "0"}, "99.5": {"1", "0"}}), depth: dec("10")}
	a.Tick(prevBook, 9000, true)

	a.OnTrade(types.Trade{Price: dec("99.5"), Size: dec("50"), Side: types.Sell, TimestampMs: 20000})
	currBook := &fakeBook{levels: bookLevels(map[string][2]string{}), depth: dec("10")}
	// SweepConfirmWindowMs is 500; 11000ms elapsed since the previous tick far exceeds it.
	state := a.Tick(currBook, 20000, true)

	if state.Sweep != nil {
		t.Error("expected no sweep once freshness window has elapsed")
	}
}
