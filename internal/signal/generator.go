// Package signal implements the Signal Generator: it tracks derived
// features across market-state ticks (sweep recency, delta flip,
// absorption, price reclaim), applies cooldown and volatility-regime
// gating, and emits confidence-scored BUY/SELL signals.
package signal

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/config"
	"orderflow-engine/pkg/types"
)

const (
	sweepTTL     = 10 * time.Second
	flipTTL      = 5 * time.Second
	buyThreshold = 70
	altThreshold = 60
)

// featureState is the Signal Generator's per-tick derived view, reset on
// every emitted signal.
type featureState struct {
	sweep      *types.ConfirmedSweep
	sweepAt    time.Time
	flip       types.DeltaFlipDirection
	absorption *types.Absorption
	priceReclaim bool

	prevNormalizedDelta float64
	havePrevDelta       bool
}

// Generator is the Signal Generator.
type Generator struct {
	cooldown     time.Duration
	minDeltaFlip float64
	feature      featureState

	lastSignalTime time.Time
	haveLastSignal bool

	history    []types.Signal
	historyPos int

	totalSignals  int
	buySignals    int
	sellSignals   int
	sumConfidence int

	filtered      int
	filterReasons map[string]int

	logger *slog.Logger
}

// New creates a Signal Generator from config.
func New(cfg config.SignalConfig, logger *slog.Logger) *Generator {
	return &Generator{
		cooldown:      time.Duration(cfg.CooldownSeconds * float64(time.Second)),
		minDeltaFlip:  cfg.MinDeltaFlip,
		history:       make([]types.Signal, 0, cfg.HistorySize),
		filterReasons: make(map[string]int),
		logger:        logger.With("component", "signal_generator"),
	}
}

// Process evaluates one market-state tick and returns an emitted signal, if
// any. Evaluation order: update feature state, regime filter, cooldown,
// check BUY (primary then alternative), if none check SELL.
func (g *Generator) Process(state types.MarketState) (types.Signal, bool) {
	now := time.UnixMilli(state.TimestampMs)
	g.updateFeatures(state, now)

	if state.Volatility == types.RegimeExtreme {
		g.reject("extreme_volatility")
		return types.Signal{}, false
	}
	if !state.IsSynced {
		g.reject("not_synced")
		return types.Signal{}, false
	}
	if g.haveLastSignal && now.Sub(g.lastSignalTime) < g.cooldown {
		g.reject("cooldown")
		return types.Signal{}, false
	}

	if sig, ok := g.checkBuy(state, now); ok {
		g.emit(sig, now)
		return sig, true
	}
	if sig, ok := g.checkSell(state, now); ok {
		g.emit(sig, now)
		return sig, true
	}

	g.reject("no_pattern_matched")
	return types.Signal{}, false
}

func (g *Generator) updateFeatures(state types.MarketState, now time.Time) {
	f := &g.feature

	if state.Sweep != nil {
		f.sweep = state.Sweep
		f.sweepAt = now
	} else if f.sweep != nil && now.Sub(f.sweepAt) > sweepTTL {
		f.sweep = nil
	}

	atr := 0.0
	if state.HasATR {
		atr = state.ATR
	}
	minFlip := g.minDeltaFlip * clamp(atr/3e-4, 0.5, 2.0)

	cur, _ := state.Delta.Normalized.Float64()
	newFlip := types.FlipNone
	if f.havePrevDelta {
		switch {
		case f.prevNormalizedDelta < -minFlip && cur > minFlip:
			newFlip = types.FlipBullish
		case f.prevNormalizedDelta > minFlip && cur < -minFlip:
			newFlip = types.FlipBearish
		}
	}
	f.prevNormalizedDelta = cur
	f.havePrevDelta = true

	if newFlip != types.FlipNone {
		f.flip = newFlip
	} else if f.flip != types.FlipNone && now.Sub(f.sweepAt) > flipTTL {
		f.flip = types.FlipNone
	}

	f.absorption = state.Absorption

	f.priceReclaim = false
	if f.sweep != nil && !state.Price.IsZero() {
		switch f.sweep.Direction {
		case types.SweepDown:
			f.priceReclaim = state.Price.GreaterThan(f.sweep.ZoneMin())
		case types.SweepUp:
			f.priceReclaim = state.Price.LessThan(f.sweep.ZoneMax())
		}
	}
}

func (g *Generator) checkBuy(state types.MarketState, now time.Time) (types.Signal, bool) {
	f := g.feature

	if f.sweep != nil && f.sweep.Direction == types.SweepDown && f.flip == types.FlipBullish {
		confidence := 30 + 40
		reasons := []string{"down_sweep", "bullish_delta_flip"}
		if f.absorption != nil {
			confidence += 20
			reasons = append(reasons, "absorption")
		}
		if f.priceReclaim {
			confidence += 10
			reasons = append(reasons, "price_reclaim")
		}
		if confidence >= buyThreshold {
			return g.buildSignal(types.SignalBuy, state, now, confidence, reasons, types.PatternSweep, f.sweep.LevelsRemoved), true
		}
	}

	if f.flip == types.FlipBullish && f.absorption != nil && state.Delta.Raw.GreaterThan(decimal.NewFromFloat(2*g.minDeltaFlip)) {
		confidence := 50 + 30
		reasons := []string{"bullish_delta_flip", "absorption"}
		if state.Delta.Raw.GreaterThan(decimal.NewFromFloat(3 * g.minDeltaFlip)) {
			confidence += 20
			reasons = append(reasons, "strong_delta")
		}
		if confidence >= altThreshold {
			return g.buildSignal(types.SignalBuy, state, now, confidence, reasons, types.PatternNoSweep, 0), true
		}
	}

	return types.Signal{}, false
}

func (g *Generator) checkSell(state types.MarketState, now time.Time) (types.Signal, bool) {
	f := g.feature

	if f.sweep != nil && f.sweep.Direction == types.SweepUp && f.flip == types.FlipBearish {
		confidence := 30 + 40
		reasons := []string{"up_sweep", "bearish_delta_flip"}
		if f.absorption != nil {
			confidence += 20
			reasons = append(reasons, "absorption")
		}
		if f.priceReclaim {
			confidence += 10
			reasons = append(reasons, "price_reclaim")
		}
		if confidence >= buyThreshold {
			return g.buildSignal(types.SignalSell, state, now, confidence, reasons, types.PatternSweep, f.sweep.LevelsRemoved), true
		}
	}

	if f.flip == types.FlipBearish && f.absorption != nil && state.Delta.Raw.LessThan(decimal.NewFromFloat(-2*g.minDeltaFlip)) {
		confidence := 50 + 30
		reasons := []string{"bearish_delta_flip", "absorption"}
		if state.Delta.Raw.LessThan(decimal.NewFromFloat(-3 * g.minDeltaFlip)) {
			confidence += 20
			reasons = append(reasons, "strong_delta")
		}
		if confidence >= altThreshold {
			return g.buildSignal(types.SignalSell, state, now, confidence, reasons, types.PatternNoSweep, 0), true
		}
	}

	return types.Signal{}, false
}

func (g *Generator) buildSignal(t types.SignalType, state types.MarketState, now time.Time, confidence int, reasons []string, pattern types.SignalPattern, sweepLevels int) types.Signal {
	return types.Signal{
		Type:        t,
		Price:       state.Price,
		Timestamp:   now,
		Confidence:  confidence,
		Reasons:     reasons,
		Delta:       state.Delta.Raw,
		SweepLevels: sweepLevels,
		Volatility:  state.Volatility,
		Pattern:     pattern,
	}
}

// emit records the signal into history, updates cooldown/stats state, and
// resets all tracked features per spec.
func (g *Generator) emit(sig types.Signal, now time.Time) {
	g.lastSignalTime = now
	g.haveLastSignal = true

	if len(g.history) < cap(g.history) {
		g.history = append(g.history, sig)
	} else {
		g.history[g.historyPos] = sig
		g.historyPos = (g.historyPos + 1) % cap(g.history)
	}

	g.totalSignals++
	g.sumConfidence += sig.Confidence
	if sig.Type == types.SignalBuy {
		g.buySignals++
	} else {
		g.sellSignals++
	}

	g.feature = featureState{}
	g.logger.Info("signal emitted", "type", sig.Type, "confidence", sig.Confidence, "pattern", sig.Pattern)
}

func (g *Generator) reject(reason string) {
	g.filtered++
	g.filterReasons[reason]++
}

// History returns the signals currently retained in the ring buffer, oldest
// first.
func (g *Generator) History() []types.Signal {
	if len(g.history) < cap(g.history) {
		out := make([]types.Signal, len(g.history))
		copy(out, g.history)
		return out
	}
	out := make([]types.Signal, 0, len(g.history))
	out = append(out, g.history[g.historyPos:]...)
	out = append(out, g.history[:g.historyPos]...)
	return out
}

// Stats summarizes signal-generation activity for the final shutdown report.
func (g *Generator) Stats() (total, buy, sell, filtered int, avgConfidence, filterRate float64, reasons map[string]int) {
	avg := 0.0
	if g.totalSignals > 0 {
		avg = float64(g.sumConfidence) / float64(g.totalSignals)
	}
	rate := 0.0
	if denom := g.totalSignals + g.filtered; denom > 0 {
		rate = float64(g.filtered) / float64(denom)
	}
	reasonsCopy := make(map[string]int, len(g.filterReasons))
	for k, v := range g.filterReasons {
		reasonsCopy[k] = v
	}
	return g.totalSignals, g.buySignals, g.sellSignals, g.filtered, avg, rate, reasonsCopy
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
