package flow

import (
	"sort"

	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

// tradeConfirmWindowMs is the fixed lookback for sweep trade confirmation
// ("last 2 seconds"), per spec.md §4.3 — distinct from the configurable
// LIQUIDITY_SWEEP_TIME_MS freshness precondition the analyzer checks before
// calling DetectSweep at all.
const tradeConfirmWindowMs = 2000

// SweepDetectionConfig bundles the gates liquidity sweep detection checks
// against, per spec.md §4.3.
type SweepDetectionConfig struct {
	MinLevels               int
	MinSweepNotional        decimal.Decimal
	MinTradeConfirmNotional decimal.Decimal
}

// removedLevel is an (price, size) pair that was resting in the previous
// book and is gone (or zeroed) in the current one.
type removedLevel struct {
	price decimal.Decimal
	size  decimal.Decimal
}

// removedLevels returns the levels that had nonzero size on the requested
// side in prev but are absent or zero in curr.
func removedLevels(prev, curr map[string]types.PriceLevel, isBid bool) []removedLevel {
	var out []removedLevel
	for key, p := range prev {
		prevSize := p.BidSize
		if !isBid {
			prevSize = p.AskSize
		}
		if prevSize.IsZero() {
			continue
		}

		c, exists := curr[key]
		currSize := decimal.Zero
		if exists {
			if isBid {
				currSize = c.BidSize
			} else {
				currSize = c.AskSize
			}
		}
		if currSize.IsZero() {
			out = append(out, removedLevel{price: p.Price, size: prevSize})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].price.LessThan(out[j].price) })
	return out
}

// largestAdjacentGroup clusters sorted levels using an adjacency threshold
// of 2x the median pairwise distance between consecutive levels, and
// returns the largest resulting cluster, or nil if no cluster reaches
// minLevels.
func largestAdjacentGroup(levels []removedLevel, minLevels int) []removedLevel {
	if len(levels) < minLevels {
		return nil
	}
	if len(levels) == 1 {
		if minLevels <= 1 {
			return levels
		}
		return nil
	}

	distances := make([]decimal.Decimal, 0, len(levels)-1)
	for i := 1; i < len(levels); i++ {
		distances = append(distances, levels[i].price.Sub(levels[i-1].price).Abs())
	}
	median := medianDecimal(distances)
	threshold := median.Mul(decimal.NewFromInt(2))

	var best []removedLevel
	cluster := []removedLevel{levels[0]}
	for i := 1; i < len(levels); i++ {
		dist := levels[i].price.Sub(levels[i-1].price).Abs()
		if !threshold.IsZero() && dist.GreaterThan(threshold) {
			if len(cluster) > len(best) {
				best = cluster
			}
			cluster = []removedLevel{levels[i]}
			continue
		}
		cluster = append(cluster, levels[i])
	}
	if len(cluster) > len(best) {
		best = cluster
	}

	if len(best) < minLevels {
		return nil
	}
	return best
}

func medianDecimal(vs []decimal.Decimal) decimal.Decimal {
	if len(vs) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(vs))
	copy(sorted, vs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

func notionalOf(levels []removedLevel) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range levels {
		sum = sum.Add(l.price.Mul(l.size))
	}
	return sum
}

// DetectSweep implements spec.md §4.3's liquidity sweep algorithm. prev and
// curr are book ladder copies (types.PriceLevel keyed by decimal.String()).
// trades should cover at least the last 2 seconds up to nowMs. Bids are
// checked before asks; the first acceptance wins.
func DetectSweep(prev, curr map[string]types.PriceLevel, trades []types.Trade, nowMs int64, cfg SweepDetectionConfig) (*types.ConfirmedSweep, bool) {
	for _, isBid := range []bool{true, false} {
		removed := removedLevels(prev, curr, isBid)
		cluster := largestAdjacentGroup(removed, cfg.MinLevels)
		if cluster == nil {
			continue
		}

		notional := notionalOf(cluster)
		if notional.LessThan(cfg.MinSweepNotional) {
			continue
		}

		direction := types.SweepUp
		if isBid {
			direction = types.SweepDown
		}

		prices := make([]decimal.Decimal, len(cluster))
		zoneMin, zoneMax := cluster[0].price, cluster[0].price
		for i, l := range cluster {
			prices[i] = l.price
			if l.price.LessThan(zoneMin) {
				zoneMin = l.price
			}
			if l.price.GreaterThan(zoneMax) {
				zoneMax = l.price
			}
		}

		confirmed := confirmSweepWithTrades(trades, nowMs, tradeConfirmWindowMs, zoneMin, zoneMax, direction, cfg.MinTradeConfirmNotional)
		if !confirmed {
			continue
		}

		return &types.ConfirmedSweep{
			Direction:      direction,
			Prices:         prices,
			LevelsRemoved:  len(cluster),
			Notional:       notional,
			TradeConfirmed: true,
		}, true
	}

	return nil, false
}

// confirmSweepWithTrades checks that trades within confirmWindowMs of nowMs,
// priced inside [zoneMin, zoneMax], on the confirming side (sell confirms a
// down-sweep, buy confirms an up-sweep), sum to at least minNotional.
func confirmSweepWithTrades(trades []types.Trade, nowMs, confirmWindowMs int64, zoneMin, zoneMax decimal.Decimal, direction types.SweepDirection, minNotional decimal.Decimal) bool {
	confirmingSide := types.Buy
	if direction == types.SweepDown {
		confirmingSide = types.Sell
	}

	cutoff := nowMs - confirmWindowMs
	total := decimal.Zero
	for _, t := range trades {
		if t.TimestampMs < cutoff {
			continue
		}
		if t.Side != confirmingSide {
			continue
		}
		if t.Price.LessThan(zoneMin) || t.Price.GreaterThan(zoneMax) {
			continue
		}
		total = total.Add(t.Notional())
	}

	return total.GreaterThanOrEqual(minNotional)
}
