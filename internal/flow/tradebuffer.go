// Package flow implements the Flow Analyzer: trade buffering, the
// adaptive-window delta, ATR-proxy volatility regime classification,
// liquidity sweep detection, and absorption detection.
package flow

import (
	"sync"
	"time"

	"orderflow-engine/pkg/types"
)

// maxTradeBufferEntries bounds the trade buffer regardless of the
// configured time window, per spec.md §5.
const maxTradeBufferEntries = 10000

// TradeBuffer is a time-windowed, bounded ring of recent trades, evicted on
// every mutation exactly like the teacher's FlowTracker fill window.
type TradeBuffer struct {
	mu      sync.RWMutex
	trades  []types.Trade
	window  time.Duration
}

// NewTradeBuffer creates a trade buffer retaining entries for window.
func NewTradeBuffer(window time.Duration) *TradeBuffer {
	return &TradeBuffer{
		trades: make([]types.Trade, 0, 256),
		window: window,
	}
}

// Add appends a trade and evicts anything now outside the window or beyond
// the hard capacity.
func (tb *TradeBuffer) Add(t types.Trade) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.trades = append(tb.trades, t)
	tb.evictStaleLocked(t.TimestampMs)

	if len(tb.trades) > maxTradeBufferEntries {
		tb.trades = tb.trades[len(tb.trades)-maxTradeBufferEntries:]
	}
}

func (tb *TradeBuffer) evictStaleLocked(nowMs int64) {
	cutoff := nowMs - tb.window.Milliseconds()
	idx := 0
	for idx < len(tb.trades) && tb.trades[idx].TimestampMs < cutoff {
		idx++
	}
	if idx > 0 {
		tb.trades = tb.trades[idx:]
	}
}

// Since returns a copy of all trades with timestamp >= sinceMs.
func (tb *TradeBuffer) Since(sinceMs int64) []types.Trade {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	out := make([]types.Trade, 0, len(tb.trades))
	for _, t := range tb.trades {
		if t.TimestampMs >= sinceMs {
			out = append(out, t)
		}
	}
	return out
}

// All returns a copy of every trade currently retained.
func (tb *TradeBuffer) All() []types.Trade {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	out := make([]types.Trade, len(tb.trades))
	copy(out, tb.trades)
	return out
}

// Len returns the number of trades currently retained.
func (tb *TradeBuffer) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return len(tb.trades)
}
