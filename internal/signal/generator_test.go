package signal

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/config"
	"orderflow-engine/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testGenerator() *Generator {
	cfg := config.SignalConfig{
		CooldownSeconds: 30,
		MinDeltaFlip:    30,
		HistorySize:     100,
	}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// sweepState builds a MarketState for a given delta value. No ATR is
// simulated here, so Raw and Normalized carry the same value, matching
// ComputeDelta's no-ATR behavior (internal/flow).
func sweepState(ts int64, price string, delta float64, sweep *types.ConfirmedSweep, absorption *types.Absorption, synced bool, regime types.VolatilityRegime) types.MarketState {
	d := decimal.NewFromFloat(delta)
	return types.MarketState{
		TimestampMs: ts,
		Price:       dec(price),
		Delta:       types.Delta{Raw: d, Normalized: d},
		Sweep:       sweep,
		Absorption:  absorption,
		Volatility:  regime,
		IsSynced:    synced,
	}
}

// TestGeneratorS4ConfirmedDownSweepBuy reproduces spec scenario S4: a
// confirmed down-sweep, a bullish delta flip from -60 to +60 against
// MIN_DELTA_FLIP=30, active absorption, normal volatility. Expected BUY at
// confidence 90 (30 sweep + 40 flip + 20 absorption), pattern sweep.
func TestGeneratorS4ConfirmedDownSweepBuy(t *testing.T) {
	t.Parallel()
	g := testGenerator()

	sweep := &types.ConfirmedSweep{
		Direction:     types.SweepDown,
		Prices:        []decimal.Decimal{dec("1998"), dec("1999"), dec("2000")},
		LevelsRemoved: 5,
		Notional:      dec("60000"),
	}

	// Tick 1: prime prevNormalizedDelta at -60, no sweep yet.
	g.Process(sweepState(1000, "2000", -60, nil, nil, true, types.RegimeNormal))

	// Tick 2: sweep arrives, delta flips to +60, absorption active. Price sits
	// at the sweep's own floor (1998) so price-reclaim (price > min(sweep
	// prices)) does not also fire, matching the spec's literal S4 confidence.
	absorption := &types.Absorption{AbsorbingSide: types.AbsorbingBid}
	sig, ok := g.Process(sweepState(2000, "1998", 60, sweep, absorption, true, types.RegimeNormal))

	if !ok {
		t.Fatal("expected BUY signal")
	}
	if sig.Type != types.SignalBuy {
		t.Errorf("Type = %v, want BUY", sig.Type)
	}
	if sig.Confidence != 90 {
		t.Errorf("Confidence = %d, want 90", sig.Confidence)
	}
	if sig.Pattern != types.PatternSweep {
		t.Errorf("Pattern = %v, want sweep", sig.Pattern)
	}
}

// TestGeneratorS6ExtremeVolatilitySuppresses reproduces spec scenario S6:
// identical conditions to S4 but regime = extreme. No signal should be
// emitted, and the rejection should be attributed to extreme_volatility.
func TestGeneratorS6ExtremeVolatilitySuppresses(t *testing.T) {
	t.Parallel()
	g := testGenerator()

	sweep := &types.ConfirmedSweep{Direction: types.SweepDown, Prices: []decimal.Decimal{dec("1998"), dec("2000")}, LevelsRemoved: 5}
	absorption := &types.Absorption{AbsorbingSide: types.AbsorbingBid}

	g.Process(sweepState(1000, "2000", -60, nil, nil, true, types.RegimeExtreme))
	_, ok := g.Process(sweepState(2000, "1999", 60, sweep, absorption, true, types.RegimeExtreme))

	if ok {
		t.Fatal("expected no signal under extreme volatility")
	}
	_, _, _, filtered, _, _, reasons := g.Stats()
	if filtered == 0 {
		t.Fatal("expected a filtered count")
	}
	if reasons["extreme_volatility"] == 0 {
		t.Error("expected extreme_volatility to be among filter reasons")
	}
}

func TestGeneratorRejectsWhenUnsynced(t *testing.T) {
	t.Parallel()
	g := testGenerator()

	_, ok := g.Process(sweepState(1000, "2000", 0, nil, nil, false, types.RegimeNormal))
	if ok {
		t.Fatal("expected no signal while unsynced")
	}
	_, _, _, _, _, _, reasons := g.Stats()
	if reasons["not_synced"] == 0 {
		t.Error("expected not_synced filter reason")
	}
}

func TestGeneratorCooldownBlocksRepeatSignal(t *testing.T) {
	t.Parallel()
	g := testGenerator()

	sweep := &types.ConfirmedSweep{Direction: types.SweepDown, Prices: []decimal.Decimal{dec("1998"), dec("2000")}, LevelsRemoved: 5}
	absorption := &types.Absorption{AbsorbingSide: types.AbsorbingBid}

	g.Process(sweepState(1000, "2000", -60, nil, nil, true, types.RegimeNormal))
	_, ok := g.Process(sweepState(2000, "1999", 60, sweep, absorption, true, types.RegimeNormal))
	if !ok {
		t.Fatal("expected first signal to emit")
	}

	// Second identical setup 5s later, well within the 30s cooldown.
	g.Process(sweepState(2500, "2000", -60, nil, nil, true, types.RegimeNormal))
	_, ok = g.Process(sweepState(7000, "1999", 60, sweep, absorption, true, types.RegimeNormal))
	if ok {
		t.Fatal("expected cooldown to block the second signal")
	}
}

func TestGeneratorAlternativePathNoSweep(t *testing.T) {
	t.Parallel()
	g := testGenerator()

	absorption := &types.Absorption{AbsorbingSide: types.AbsorbingAsk}

	g.Process(sweepState(1000, "2000", -60, nil, nil, true, types.RegimeNormal))
	sig, ok := g.Process(sweepState(2000, "2000", 95, nil, absorption, true, types.RegimeNormal))

	if !ok {
		t.Fatal("expected alternative-path BUY signal")
	}
	if sig.Pattern != types.PatternNoSweep {
		t.Errorf("Pattern = %v, want no_sweep", sig.Pattern)
	}
	if sig.SweepLevels != 0 {
		t.Errorf("SweepLevels = %d, want 0", sig.SweepLevels)
	}
	// delta 95 > 3*30=90, so the +20 strong_delta bonus applies: 50+30+20=100.
	if sig.Confidence != 100 {
		t.Errorf("Confidence = %d, want 100", sig.Confidence)
	}
}

func TestGeneratorHistoryRingBuffer(t *testing.T) {
	t.Parallel()
	cfg := config.SignalConfig{CooldownSeconds: 0.001, MinDeltaFlip: 30, HistorySize: 2}
	g := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	absorption := &types.Absorption{AbsorbingSide: types.AbsorbingAsk}
	var lastTs int64 = 1000
	for i := 0; i < 3; i++ {
		g.Process(sweepState(lastTs, "2000", -60, nil, nil, true, types.RegimeNormal))
		lastTs += 1000
		g.Process(sweepState(lastTs, "2000", 95, nil, absorption, true, types.RegimeNormal))
		lastTs += 1000
	}

	hist := g.History()
	if len(hist) != 2 {
		t.Fatalf("History() len = %d, want 2 (bounded ring buffer)", len(hist))
	}
}
