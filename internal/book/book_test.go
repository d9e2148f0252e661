package book

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func lvl(price, size string) types.LevelUpdate {
	return types.LevelUpdate{Price: dec(price), Size: dec(size)}
}

func TestApplySnapshotThenDiff(t *testing.T) {
	t.Parallel()
	b := New(50)

	b.ApplySnapshot(types.Snapshot{
		LastUpdateID: 100,
		Bids:         []types.LevelUpdate{lvl("2000", "1")},
		Asks:         []types.LevelUpdate{lvl("2001", "1")},
	})

	b.ApplyDiff(types.DiffEvent{
		FirstUpdateID: 101,
		FinalUpdateID: 103,
		BidChanges:    []types.LevelUpdate{lvl("2000", "2")},
	})

	bid, ok := b.BestBid()
	if !ok || !bid.Equal(dec("2000")) {
		t.Fatalf("BestBid = %v, ok=%v, want 2000", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || !ask.Equal(dec("2001")) {
		t.Fatalf("BestAsk = %v, ok=%v, want 2001", ask, ok)
	}
	if d := b.Depth(types.Buy, 1); !d.Equal(dec("2")) {
		t.Errorf("Depth(Buy,1) = %s, want 2", d)
	}
}

func TestApplyDiffRemovesLevel(t *testing.T) {
	t.Parallel()
	b := New(50)

	b.ApplySnapshot(types.Snapshot{
		Bids: []types.LevelUpdate{lvl("2000", "1")},
		Asks: []types.LevelUpdate{lvl("2001", "1")},
	})

	b.ApplyDiff(types.DiffEvent{
		BidChanges: []types.LevelUpdate{lvl("2000", "0")},
	})

	if _, ok := b.BestBid(); ok {
		t.Error("BestBid should be absent after removing the only bid")
	}
}

func TestMidPriceEmptyBook(t *testing.T) {
	t.Parallel()
	b := New(50)

	if _, ok := b.MidPrice(); ok {
		t.Error("MidPrice should return false for empty book")
	}
}

func TestMidPrice(t *testing.T) {
	t.Parallel()
	b := New(50)

	b.ApplySnapshot(types.Snapshot{
		Bids: []types.LevelUpdate{lvl("100", "1")},
		Asks: []types.LevelUpdate{lvl("102", "1")},
	})

	mid, ok := b.MidPrice()
	if !ok || !mid.Equal(dec("101")) {
		t.Fatalf("MidPrice = %v, ok=%v, want 101", mid, ok)
	}
}

func TestEvictionBeyondBand(t *testing.T) {
	t.Parallel()
	b := New(2) // maxLevels=2, eviction kicks in above 4 levels per side

	bids := make([]types.LevelUpdate, 0, 6)
	for i := 0; i < 6; i++ {
		bids = append(bids, lvl(decimal.NewFromInt(int64(1000-i*3)).String(), "1"))
	}
	asks := []types.LevelUpdate{lvl("1001", "1")}
	b.ApplySnapshot(types.Snapshot{Bids: bids, Asks: asks})

	// Force eviction by nudging one level (triggers evictLocked via ApplyDiff).
	b.ApplyDiff(types.DiffEvent{BidChanges: []types.LevelUpdate{lvl("1000", "2")}})

	// Mid is 1000.5, so the band's lower edge is 990.495; the far level (985) is >1% away.
	cp := b.SnapshotCopy()
	if _, ok := cp[dec("985").String()]; ok {
		t.Error("level far from mid should have been evicted")
	}
}

func TestIsStale(t *testing.T) {
	t.Parallel()
	b := New(50)

	if !b.IsStale(time.Second) {
		t.Error("new book should be stale")
	}

	b.ApplySnapshot(types.Snapshot{
		Bids: []types.LevelUpdate{lvl("100", "1")},
		Asks: []types.LevelUpdate{lvl("102", "1")},
	})
	if b.IsStale(time.Second) {
		t.Error("just-updated book should not be stale")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.IsStale(5 * time.Millisecond) {
		t.Error("book should be stale after maxAge")
	}
}
