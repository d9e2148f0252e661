// Package book maintains the local order-book ladder: the sequence of
// applicable snapshots and diffs handed to it by the Stream Synchronizer is
// applied in order to keep a live picture of resting bid/ask depth.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

// evictionBandPct is the distance from mid (as a fraction of mid) beyond
// which levels are eligible for eviction once the ladder grows past
// 2x maxLevels, per spec.md §4.2.
const evictionBandPct = 0.01

// Book is a concurrency-safe mirror of one symbol's order book.
type Book struct {
	mu        sync.RWMutex
	levels    map[string]types.PriceLevel // keyed by decimal.String()
	maxLevels int
	updated   time.Time
}

// New creates an empty Book. maxLevels controls the eviction threshold:
// once either side holds more than 2*maxLevels entries, levels further than
// 1% from mid are dropped.
func New(maxLevels int) *Book {
	return &Book{
		levels:    make(map[string]types.PriceLevel),
		maxLevels: maxLevels,
	}
}

// ApplySnapshot clears the ladder and inserts all bid/ask levels from a
// REST depth snapshot.
func (b *Book) ApplySnapshot(snap types.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.levels = make(map[string]types.PriceLevel, len(snap.Bids)+len(snap.Asks))
	for _, lvl := range snap.Bids {
		if lvl.Size.IsZero() {
			continue
		}
		key := lvl.Price.String()
		entry := b.levels[key]
		entry.Price = lvl.Price
		entry.BidSize = lvl.Size
		b.levels[key] = entry
	}
	for _, lvl := range snap.Asks {
		if lvl.Size.IsZero() {
			continue
		}
		key := lvl.Price.String()
		entry := b.levels[key]
		entry.Price = lvl.Price
		entry.AskSize = lvl.Size
		b.levels[key] = entry
	}

	b.updated = time.Now()
}

// ApplyDiff applies one incremental diff event: for each (price, size) on a
// side, size == 0 removes that side's contribution at that price; if both
// sides end up empty, the level is deleted entirely.
func (b *Book) ApplyDiff(diff types.DiffEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range diff.BidChanges {
		b.applyChangeLocked(ch, true)
	}
	for _, ch := range diff.AskChanges {
		b.applyChangeLocked(ch, false)
	}

	b.evictLocked()
	b.updated = time.Now()
}

func (b *Book) applyChangeLocked(ch types.LevelUpdate, isBid bool) {
	key := ch.Price.String()
	lvl, exists := b.levels[key]
	if !exists {
		lvl = types.PriceLevel{Price: ch.Price}
	}

	if isBid {
		lvl.BidSize = ch.Size
	} else {
		lvl.AskSize = ch.Size
	}

	if lvl.Empty() {
		delete(b.levels, key)
		return
	}
	b.levels[key] = lvl
}

// evictLocked drops levels more than 1% from mid once a side has grown
// past 2x maxLevels, per spec.md §4.2.
func (b *Book) evictLocked() {
	bids, asks := b.sortedLocked()
	if len(bids) <= 2*b.maxLevels && len(asks) <= 2*b.maxLevels {
		return
	}

	mid, ok := b.midLocked(bids, asks)
	if !ok {
		return
	}
	band := mid.Abs().Mul(decimal.NewFromFloat(evictionBandPct))
	lowerBound := mid.Sub(band)
	upperBound := mid.Add(band)

	for key, lvl := range b.levels {
		if lvl.Price.LessThan(lowerBound) || lvl.Price.GreaterThan(upperBound) {
			delete(b.levels, key)
		}
	}
}

// sortedLocked returns bid prices descending and ask prices ascending.
func (b *Book) sortedLocked() (bids, asks []decimal.Decimal) {
	for _, lvl := range b.levels {
		if lvl.BidSize.GreaterThan(decimal.Zero) {
			bids = append(bids, lvl.Price)
		}
		if lvl.AskSize.GreaterThan(decimal.Zero) {
			asks = append(asks, lvl.Price)
		}
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].GreaterThan(bids[j]) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].LessThan(asks[j]) })
	return bids, asks
}

func (b *Book) midLocked(bids, asks []decimal.Decimal) (decimal.Decimal, bool) {
	if len(bids) == 0 || len(asks) == 0 {
		return decimal.Zero, false
	}
	return bids[0].Add(asks[0]).Div(decimal.NewFromInt(2)), true
}

// BestBid returns the highest resting bid price, if any.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bids, _ := b.sortedLocked()
	if len(bids) == 0 {
		return decimal.Zero, false
	}
	return bids[0], true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, asks := b.sortedLocked()
	if len(asks) == 0 {
		return decimal.Zero, false
	}
	return asks[0], true
}

// MidPrice returns (bestBid + bestAsk) / 2, or false if either side is empty.
func (b *Book) MidPrice() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bids, asks := b.sortedLocked()
	return b.midLocked(bids, asks)
}

// Depth sums the sizes of the n best levels on the requested side.
func (b *Book) Depth(side types.Side, n int) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids, asks := b.sortedLocked()
	prices := asks
	if side == types.Buy {
		prices = bids
	}
	if n > len(prices) {
		n = len(prices)
	}

	sum := decimal.Zero
	for _, p := range prices[:n] {
		lvl := b.levels[p.String()]
		if side == types.Buy {
			sum = sum.Add(lvl.BidSize)
		} else {
			sum = sum.Add(lvl.AskSize)
		}
	}
	return sum
}

// SnapshotCopy returns a shallow copy of the current ladder, sufficient to
// diff against a later state. Used by liquidity sweep detection to identify
// which levels were removed between ticks.
func (b *Book) SnapshotCopy() map[string]types.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cp := make(map[string]types.PriceLevel, len(b.levels))
	for k, v := range b.levels {
		cp[k] = v
	}
	return cp
}

// IsStale reports whether the book hasn't been updated within maxAge.
func (b *Book) IsStale(maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.updated.IsZero() {
		return true
	}
	return time.Since(b.updated) > maxAge
}

// LastUpdated returns the timestamp of the last applied snapshot or diff.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}
