package flow

import (
	"math"
	"sync"

	"orderflow-engine/pkg/types"
)

// maxPriceHistory bounds the retained price-change ratios, per spec.md §5
// ("price/change history (100)"), independent of the configurable ATR
// lookback used to compute the proxy itself.
const maxPriceHistory = 100

// defaultATRLookback is used when config.FlowConfig.ATRLookback is unset.
const defaultATRLookback = 20

// VolatilityTracker computes the ATR proxy (mean absolute per-trade
// price-change ratio) and classifies the current volatility regime.
type VolatilityTracker struct {
	mu        sync.Mutex
	lastPrice float64
	hasLast   bool
	changes   []float64 // |Δp_i| / p_{i-1}, most recent maxPriceHistory entries
	lookback  int        // number of most-recent changes averaged into ATR
}

// NewVolatilityTracker creates an empty tracker. lookback is the number of
// most-recent per-trade price changes averaged into the ATR proxy, per
// spec.md §4.3 ("over the last 20 trades"); <= 0 uses defaultATRLookback.
func NewVolatilityTracker(lookback int) *VolatilityTracker {
	if lookback <= 0 {
		lookback = defaultATRLookback
	}
	return &VolatilityTracker{lookback: lookback}
}

// Observe feeds the price of the latest trade into the ATR proxy.
func (v *VolatilityTracker) Observe(price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.hasLast && v.lastPrice != 0 {
		ratio := math.Abs(price-v.lastPrice) / v.lastPrice
		v.changes = append(v.changes, ratio)
		if len(v.changes) > maxPriceHistory {
			v.changes = v.changes[len(v.changes)-maxPriceHistory:]
		}
	}
	v.lastPrice = price
	v.hasLast = true
}

// ATR returns the current ATR-proxy reading: the mean of the most recent
// lookback price-change ratios. ok is false until at least lookback price
// changes (lookback+1 observed prices) have been recorded.
func (v *VolatilityTracker) ATR() (atr float64, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.changes) < v.lookback {
		return 0, false
	}

	recent := v.changes[len(v.changes)-v.lookback:]
	sum := 0.0
	for _, c := range recent {
		sum += c
	}
	return sum / float64(len(recent)), true
}

// Regime classifies the current ATR-proxy reading per spec.md §4.3.
// Returns RegimeUnknown if ATR is not yet available.
func (v *VolatilityTracker) Regime() types.VolatilityRegime {
	atr, ok := v.ATR()
	if !ok {
		return types.RegimeUnknown
	}
	return classifyRegime(atr)
}

func classifyRegime(atr float64) types.VolatilityRegime {
	switch {
	case atr < 1e-4:
		return types.RegimeCalm
	case atr < 3e-4:
		return types.RegimeNormal
	case atr < 7e-4:
		return types.RegimeVolatile
	default:
		return types.RegimeExtreme
	}
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
