package flow

import (
	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

// AdaptiveWindowSeconds computes W_t = base_window x clamp(0.0001/max(ATR,1e-5), 0.6, 2.0),
// per spec.md §4.3. hasATR false is treated as ATR == 0, i.e. clamp saturates at 2.0.
func AdaptiveWindowSeconds(base float64, atr float64, hasATR bool) float64 {
	if !hasATR {
		atr = 0
	}
	denom := atr
	if denom < 1e-5 {
		denom = 1e-5
	}
	factor := clamp(0.0001/denom, 0.6, 2.0)
	return base * factor
}

// ComputeDelta aggregates buy/sell volume over all the given trades and
// returns the Delta reading, ATR-normalized when available. It does not
// filter by time: the caller passes only the trades inside the window, and
// windowSeconds is recorded on the result as-is.
func ComputeDelta(trades []types.Trade, windowSeconds float64, atr float64, hasATR bool) types.Delta {
	buy := decimal.Zero
	sell := decimal.Zero
	for _, t := range trades {
		if t.Side == types.Buy {
			buy = buy.Add(t.Size)
		} else {
			sell = sell.Add(t.Size)
		}
	}

	raw := buy.Sub(sell)

	normalized := raw
	if hasATR {
		denom := decimal.NewFromFloat(1).Add(raw.Abs().Mul(decimal.NewFromFloat(atr)))
		if !denom.IsZero() {
			normalized = raw.Div(denom)
		}
	}

	ratio := 0.0
	if !sell.IsZero() {
		ratio, _ = buy.Div(sell).Float64()
	}

	return types.Delta{
		BuyVolume:     buy,
		SellVolume:    sell,
		Raw:           raw,
		Normalized:    normalized,
		Ratio:         ratio,
		WindowSeconds: windowSeconds,
	}
}
