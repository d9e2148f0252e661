// Package types defines the shared data structures used across all layers
// of the order-flow engine: sides, price levels, trades, order-book events,
// and signals. It has no dependency on any other internal package.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the aggressor direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// SignalType is the direction of an emitted trading signal.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// SweepDirection is the book side a liquidity sweep removed.
type SweepDirection string

const (
	SweepDown SweepDirection = "down" // bids removed, downward pressure
	SweepUp   SweepDirection = "up"   // asks removed, upward pressure
)

// DeltaFlipDirection is the direction of a detected delta-sign flip.
type DeltaFlipDirection string

const (
	FlipNone    DeltaFlipDirection = "none"
	FlipBullish DeltaFlipDirection = "bullish"
	FlipBearish DeltaFlipDirection = "bearish"
)

// SignalPattern distinguishes the sweep-confirmed path from the
// delta-flip-only alternative path.
type SignalPattern string

const (
	PatternSweep   SignalPattern = "sweep"
	PatternNoSweep SignalPattern = "no_sweep"
)

// VolatilityRegime classifies the current ATR-proxy reading.
type VolatilityRegime string

const (
	RegimeUnknown  VolatilityRegime = "unknown"
	RegimeCalm     VolatilityRegime = "calm"
	RegimeNormal   VolatilityRegime = "normal"
	RegimeVolatile VolatilityRegime = "volatile"
	RegimeExtreme  VolatilityRegime = "extreme"
)

// SyncState is the Stream Synchronizer's state machine position.
type SyncState string

const (
	StateUnsynced  SyncState = "unsynced"
	StateBuffering SyncState = "buffering"
	StateSynced    SyncState = "synced"
)

// AbsorbingSide is the book side that absorbed aggressive flow.
type AbsorbingSide string

const (
	AbsorbingBid AbsorbingSide = "bid"
	AbsorbingAsk AbsorbingSide = "ask"
)

// ————————————————————————————————————————————————————————————————————————
// Order book wire shapes
// ————————————————————————————————————————————————————————————————————————

// LevelUpdate is a single (price, size) change on one side of the book. A
// zero Size means "remove this price from this side".
type LevelUpdate struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Snapshot is a REST full-depth response: absolute bid/ask levels plus the
// sequence id later diffs resume from.
type Snapshot struct {
	LastUpdateID int64
	Bids         []LevelUpdate
	Asks         []LevelUpdate
}

// DiffEvent is a single incremental order-book update frame. In a validly
// sequenced stream, consecutive frames satisfy U_n == u_{n-1} + 1.
type DiffEvent struct {
	FirstUpdateID int64 // U
	FinalUpdateID int64 // u
	BidChanges    []LevelUpdate
	AskChanges    []LevelUpdate
}

// BookUpdate is a tagged union of a snapshot or a diff: exactly one of
// Snapshot or Diff is populated, selected by IsSnapshot. The Stream
// Synchronizer does not return this type; its HandleSnapshot and HandleDiff
// return snapshots and diffs separately.
type BookUpdate struct {
	IsSnapshot bool
	Snapshot   Snapshot
	Diff       DiffEvent
}

// PriceLevel is a single price point in the live book ladder.
type PriceLevel struct {
	Price   decimal.Decimal
	BidSize decimal.Decimal
	AskSize decimal.Decimal
}

// Empty reports whether neither side has size resting at this price.
func (l PriceLevel) Empty() bool {
	return l.BidSize.IsZero() && l.AskSize.IsZero()
}

// ————————————————————————————————————————————————————————————————————————
// Trades
// ————————————————————————————————————————————————————————————————————————

// Trade is a single executed trade from the trade stream. Side is the
// aggressor's side: Sell when the exchange's buyer-is-maker flag is set.
type Trade struct {
	Price       decimal.Decimal
	Size        decimal.Decimal
	Side        Side
	TimestampMs int64
}

// Notional returns Price * Size.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Size)
}

// ————————————————————————————————————————————————————————————————————————
// Flow analyzer outputs
// ————————————————————————————————————————————————————————————————————————

// Delta is the signed-volume-delta reading for the current adaptive window.
type Delta struct {
	BuyVolume     decimal.Decimal
	SellVolume    decimal.Decimal
	Raw           decimal.Decimal // BuyVolume - SellVolume
	Normalized    decimal.Decimal // ATR-adjusted Raw
	Ratio         float64         // BuyVolume / SellVolume, 0 if SellVolume is 0
	WindowSeconds float64
}

// SweepCandidate is a cluster of adjacent removed levels, prior to trade
// confirmation.
type SweepCandidate struct {
	Direction     SweepDirection
	Prices        []decimal.Decimal
	LevelsRemoved int
	Notional      decimal.Decimal
}

// ConfirmedSweep is a SweepCandidate that passed trade confirmation within
// the fixed 2-second confirmation window.
type ConfirmedSweep struct {
	Direction      SweepDirection
	Prices         []decimal.Decimal
	LevelsRemoved  int
	Notional       decimal.Decimal
	TradeConfirmed bool
}

// ZoneMin returns the lowest swept price.
func (s ConfirmedSweep) ZoneMin() decimal.Decimal { return minDecimal(s.Prices) }

// ZoneMax returns the highest swept price.
func (s ConfirmedSweep) ZoneMax() decimal.Decimal { return maxDecimal(s.Prices) }

func minDecimal(vs []decimal.Decimal) decimal.Decimal {
	m := vs[0]
	for _, v := range vs[1:] {
		if v.LessThan(m) {
			m = v
		}
	}
	return m
}

func maxDecimal(vs []decimal.Decimal) decimal.Decimal {
	m := vs[0]
	for _, v := range vs[1:] {
		if v.GreaterThan(m) {
			m = v
		}
	}
	return m
}

// Absorption is a detected absorption event: aggressive volume consumed by
// one side of the book without a proportional price move.
type Absorption struct {
	Volume             decimal.Decimal
	PriceChangePct     float64
	AbsorbingSide      AbsorbingSide
	PriceLevel         decimal.Decimal
	VolumeToDepthRatio float64
}

// MarketState is the aggregate per-tick output of the Flow Analyzer.
type MarketState struct {
	TimestampMs int64
	Price       decimal.Decimal
	MidPrice    decimal.Decimal
	HasMidPrice bool
	Delta       Delta
	Sweep       *ConfirmedSweep // nil if no sweep this tick
	Absorption  *Absorption     // nil if no absorption this tick
	TotalTrades int
	Volatility  VolatilityRegime
	ATR         float64
	HasATR      bool
	IsSynced    bool
}

// ————————————————————————————————————————————————————————————————————————
// Signals
// ————————————————————————————————————————————————————————————————————————

// Signal is a directional trading signal emitted by the Signal Generator.
type Signal struct {
	Type        SignalType
	Price       decimal.Decimal
	Timestamp   time.Time
	Confidence  int
	Reasons     []string
	Delta       decimal.Decimal
	SweepLevels int
	Volatility  VolatilityRegime
	Pattern     SignalPattern
}

// ————————————————————————————————————————————————————————————————————————
// Output-sink records
// ————————————————————————————————————————————————————————————————————————

// StatusUpdate is a periodic status record the orchestrator hands to the
// output sink: sync state, throughput counters, and regime snapshot.
type StatusUpdate struct {
	Timestamp        time.Time
	Synced           bool
	LastUpdateID     int64
	DesyncCount      int
	OrderBookUpdates int64
	TradeCount       int64
	Delta            decimal.Decimal
	Volatility       VolatilityRegime
	UptimeSeconds    float64
}

// FinalStats is printed once on graceful shutdown.
type FinalStats struct {
	UptimeSeconds    float64
	OrderBookUpdates int64
	TradeCount       int64
	TotalSignals     int
	BuySignals       int
	SellSignals      int
	AvgConfidence    float64
	SignalsFiltered  int
	FilterRate       float64
	FilterReasons    map[string]int
}
