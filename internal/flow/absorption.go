package flow

import (
	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

// DepthFunc returns the order book's resting depth on a side over n levels.
type DepthFunc func(side types.Side, n int) decimal.Decimal

// AbsorptionDetectionConfig bundles absorption's gates, per spec.md §4.3 /
// §6 (ABSORPTION_THRESHOLD, MIN_ABSORPTION_RATIO, PRICE_MOVEMENT_THRESHOLD).
type AbsorptionDetectionConfig struct {
	WindowMs               int64
	MinTrades              int
	PriceMovementThreshold float64
	MinAbsorptionRatio     float64
	MinAggressiveVolume    decimal.Decimal
	DepthLevels            int
}

// DetectAbsorption implements spec.md §4.3's absorption algorithm over the
// trades in the configured lookback window up to nowMs.
func DetectAbsorption(trades []types.Trade, nowMs int64, atr float64, hasATR bool, depth DepthFunc, cfg AbsorptionDetectionConfig) (*types.Absorption, bool) {
	cutoff := nowMs - cfg.WindowMs
	var window []types.Trade
	for _, t := range trades {
		if t.TimestampMs >= cutoff {
			window = append(window, t)
		}
	}
	if len(window) == 0 || len(window) < cfg.MinTrades {
		return nil, false
	}

	minPrice, maxPrice := window[0].Price, window[0].Price
	buyVol, sellVol := decimal.Zero, decimal.Zero
	priceSum := decimal.Zero
	for _, t := range window {
		if t.Price.LessThan(minPrice) {
			minPrice = t.Price
		}
		if t.Price.GreaterThan(maxPrice) {
			maxPrice = t.Price
		}
		if t.Side == types.Buy {
			buyVol = buyVol.Add(t.Size)
		} else {
			sellVol = sellVol.Add(t.Size)
		}
		priceSum = priceSum.Add(t.Price)
	}

	if minPrice.IsZero() {
		return nil, false
	}
	priceRangePct, _ := maxPrice.Sub(minPrice).Div(minPrice).Float64()

	// Mirrors order_flow_analyzer_v2.py:403-406: the base threshold applies
	// until ATR is known; only then is it volatility-adjusted.
	maxMovement := cfg.PriceMovementThreshold
	if hasATR {
		maxMovement = cfg.PriceMovementThreshold * clamp(atr/1e-4, 0, 3.0)
	}
	if priceRangePct > maxMovement {
		return nil, false
	}

	absorbingSide := types.AbsorbingBid
	aggressiveVol := sellVol
	if buyVol.GreaterThan(sellVol) {
		absorbingSide = types.AbsorbingAsk
		aggressiveVol = buyVol
	}

	if aggressiveVol.LessThan(cfg.MinAggressiveVolume) {
		return nil, false
	}

	depthSide := types.Buy
	if absorbingSide == types.AbsorbingAsk {
		depthSide = types.Sell
	}
	availableDepth := depth(depthSide, cfg.DepthLevels)
	if availableDepth.IsZero() {
		return nil, false
	}

	ratio, _ := aggressiveVol.Div(availableDepth).Float64()
	if ratio < cfg.MinAbsorptionRatio {
		return nil, false
	}

	avgPrice := priceSum.Div(decimal.NewFromInt(int64(len(window))))
	totalVolume := buyVol.Add(sellVol)

	return &types.Absorption{
		Volume:             totalVolume,
		PriceChangePct:     priceRangePct,
		AbsorbingSide:      absorbingSide,
		PriceLevel:         avgPrice,
		VolumeToDepthRatio: ratio,
	}, true
}
