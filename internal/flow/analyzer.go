package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderflow-engine/internal/config"
	"orderflow-engine/pkg/types"
)

// BookView is the read surface the analyzer needs from the order book:
// depth queries for absorption detection, mid price, and a ladder copy for
// sweep detection's prev/curr diffing. *book.Book satisfies this directly.
type BookView interface {
	Depth(side types.Side, n int) decimal.Decimal
	MidPrice() (decimal.Decimal, bool)
	SnapshotCopy() map[string]types.PriceLevel
}

// Analyzer is the Flow Analyzer: it ties the trade buffer, volatility
// tracker, sweep detector, and absorption detector together into one
// MarketState per tick, mirroring the source's get_market_state().
type Analyzer struct {
	mu sync.Mutex

	trades     *TradeBuffer
	volatility *VolatilityTracker

	deltaWindowBase float64
	sweepCfg        SweepDetectionConfig
	absorptionCfg   AbsorptionDetectionConfig

	// sweepFreshnessMs is LIQUIDITY_SWEEP_TIME_MS: sweep detection only runs
	// if the elapsed time since the previous tick's book snapshot is within
	// this bound.
	sweepFreshnessMs int64

	prevLevels map[string]types.PriceLevel
	lastBookMs int64
	haveBook   bool

	logger *slog.Logger
}

// defaultAbsorptionWindowSeconds / defaultAbsorptionMinTrades mirror
// order_flow_analyzer_v2.py's hardcoded 10s / 10-trade lookback, used when
// config.FlowConfig leaves the corresponding field unset (<= 0).
const (
	defaultAbsorptionWindowSeconds = 10.0
	defaultAbsorptionMinTrades     = 10
)

// New creates a Flow Analyzer from config.
func New(cfg config.FlowConfig, logger *slog.Logger) *Analyzer {
	absorptionWindowSeconds := cfg.AbsorptionWindowSeconds
	if absorptionWindowSeconds <= 0 {
		absorptionWindowSeconds = defaultAbsorptionWindowSeconds
	}
	absorptionMinTrades := cfg.AbsorptionMinTrades
	if absorptionMinTrades <= 0 {
		absorptionMinTrades = defaultAbsorptionMinTrades
	}

	return &Analyzer{
		trades:          NewTradeBuffer(time.Duration(cfg.TradeHistorySeconds * float64(time.Second))),
		volatility:      NewVolatilityTracker(cfg.ATRLookback),
		deltaWindowBase: cfg.DeltaWindowSeconds,
		sweepCfg: SweepDetectionConfig{
			MinLevels:               cfg.SweepMinLevels,
			MinSweepNotional:        decimal.NewFromFloat(cfg.MinSweepNotional),
			MinTradeConfirmNotional: decimal.NewFromFloat(cfg.MinTradeConfirmNotional),
		},
		absorptionCfg: AbsorptionDetectionConfig{
			WindowMs:               int64(absorptionWindowSeconds * 1000),
			MinTrades:              absorptionMinTrades,
			PriceMovementThreshold: cfg.PriceMovementThreshold,
			MinAbsorptionRatio:     cfg.MinAbsorptionRatio,
			MinAggressiveVolume:    decimal.NewFromFloat(cfg.AbsorptionThreshold),
			DepthLevels:            10,
		},
		sweepFreshnessMs: cfg.SweepConfirmWindowMs,
		logger:           logger.With("component", "flow_analyzer"),
	}
}

// OnTrade records a trade and feeds its price into the volatility tracker.
func (a *Analyzer) OnTrade(t types.Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.trades.Add(t)
	price, _ := t.Price.Float64()
	a.volatility.Observe(price)
}

// Tick computes the aggregate MarketState for the current moment, given the
// live order book. nowMs is the caller's wall-clock reading in
// milliseconds; synced reflects the Stream Synchronizer's current state.
func (a *Analyzer) Tick(book BookView, nowMs int64, synced bool) types.MarketState {
	a.mu.Lock()
	defer a.mu.Unlock()

	atr, hasATR := a.volatility.ATR()
	regime := a.volatility.Regime()

	windowSeconds := AdaptiveWindowSeconds(a.deltaWindowBase, atr, hasATR)
	sinceMs := nowMs - int64(windowSeconds*1000)
	delta := ComputeDelta(a.trades.Since(sinceMs), windowSeconds, atr, hasATR)

	currLevels := book.SnapshotCopy()

	var sweep *types.ConfirmedSweep
	if a.haveBook && synced && (nowMs-a.lastBookMs) <= a.sweepFreshnessMs {
		confirmWindowTrades := a.trades.Since(nowMs - tradeConfirmWindowMs)
		sweep, _ = DetectSweep(a.prevLevels, currLevels, confirmWindowTrades, nowMs, a.sweepCfg)
	}

	allTrades := a.trades.All()
	absorption, _ := DetectAbsorption(allTrades, nowMs, atr, hasATR, book.Depth, a.absorptionCfg)

	midPrice, hasMidPrice := book.MidPrice()

	var lastPrice decimal.Decimal
	if len(allTrades) > 0 {
		lastPrice = allTrades[len(allTrades)-1].Price
	}

	a.prevLevels = currLevels
	a.lastBookMs = nowMs
	a.haveBook = true

	return types.MarketState{
		TimestampMs: nowMs,
		Price:       lastPrice,
		MidPrice:    midPrice,
		HasMidPrice: hasMidPrice,
		Delta:       delta,
		Sweep:       sweep,
		Absorption:  absorption,
		TotalTrades: len(allTrades),
		Volatility:  regime,
		ATR:         atr,
		HasATR:      hasATR,
		IsSynced:    synced,
	}
}
