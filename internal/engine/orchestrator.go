// Package engine is the Bot Orchestrator: it wires the Exchange Connector,
// Order Book, Flow Analyzer, and Signal Generator together, drives the two
// concurrent upstream streams through a single-consumer processing loop, and
// aggregates the running statistics printed on shutdown.
//
// Lifecycle: New() -> Start() -> [runs until ctx cancelled] -> Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"orderflow-engine/internal/book"
	"orderflow-engine/internal/config"
	"orderflow-engine/internal/exchange"
	"orderflow-engine/internal/flow"
	"orderflow-engine/internal/output"
	"orderflow-engine/internal/signal"
	streamsync "orderflow-engine/internal/sync"
	"orderflow-engine/pkg/types"
)

// statusEveryNUpdates mirrors main_v2.py's periodic status cadence: a
// status line (and dashboard push) every 100 order book updates.
const statusEveryNUpdates = 100

// Orchestrator owns the lifecycle of every subsystem and the single logical
// processing task described in spec.md §5.
type Orchestrator struct {
	cfg config.Config

	snapshotFetcher *exchange.SnapshotFetcher
	diffFeed        *exchange.DiffFeed
	tradeFeed       *exchange.TradeFeed
	synchronizer    *streamsync.Synchronizer
	book            *book.Book
	analyzer        *flow.Analyzer
	generator       *signal.Generator
	sink            output.Sink

	resyncCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu          sync.Mutex
	orderBookUpdates int64
	tradeCount       int64
	everSynced       bool
	startTime        time.Time
	lastState        types.MarketState

	fatalErr chan error

	logger *slog.Logger
}

// New wires every subsystem from cfg. The returned Orchestrator has not yet
// started any goroutine.
func New(cfg config.Config, sink output.Sink, logger *slog.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		cfg:             cfg,
		snapshotFetcher: exchange.NewSnapshotFetcher(cfg.Exchange, logger),
		diffFeed:        exchange.NewDiffFeed(cfg.Exchange.DiffStreamURL, logger),
		tradeFeed:       exchange.NewTradeFeed(cfg.Exchange.TradeStreamURL, logger),
		book:            book.New(cfg.Book.MaxLevels),
		analyzer:        flow.New(cfg.Flow, logger),
		generator:       signal.New(cfg.Signal, logger),
		sink:            sink,
		resyncCh:        make(chan struct{}, 1),
		ctx:             ctx,
		cancel:          cancel,
		fatalErr:        make(chan error, 1),
		logger:          logger.With("component", "orchestrator"),
	}

	o.synchronizer = streamsync.New(o.requestSnapshot, logger)
	return o
}

func (o *Orchestrator) requestSnapshot() {
	select {
	case o.resyncCh <- struct{}{}:
	default:
	}
}

// Start launches the two stream-feed goroutines and the single processing
// loop. Returns immediately; errors surface through Wait.
func (o *Orchestrator) Start() {
	o.startTime = time.Now()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.diffFeed.Run(o.ctx); err != nil && o.ctx.Err() == nil {
			o.logger.Error("diff feed stopped", "error", err)
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.tradeFeed.Run(o.ctx); err != nil && o.ctx.Err() == nil {
			o.logger.Error("trade feed stopped", "error", err)
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run()
	}()

	o.synchronizer.Start()
}

// Wait blocks until a fatal error occurs (inability to fetch the initial
// snapshot after retries) or ctx is cancelled via Stop. Returns nil on clean
// shutdown.
func (o *Orchestrator) Wait() error {
	select {
	case err := <-o.fatalErr:
		o.cancel()
		return err
	case <-o.ctx.Done():
		return nil
	}
}

// Stop cancels all goroutines and waits for them to exit.
func (o *Orchestrator) Stop() {
	o.logger.Info("shutting down...")
	o.cancel()
	o.wg.Wait()
	o.diffFeed.Close()
	o.tradeFeed.Close()
	o.logger.Info("shutdown complete")
}

// run is the single logical processing task: it consumes the two upstream
// event channels plus resync requests, and is the only goroutine that
// mutates the book, analyzer, or signal generator.
func (o *Orchestrator) run() {
	for {
		select {
		case <-o.ctx.Done():
			return

		case <-o.diffFeed.Connected():
			o.synchronizer.OnReconnect()

		case <-o.resyncCh:
			o.handleResync()

		case diff := <-o.diffFeed.Diffs():
			applicable := o.synchronizer.HandleDiff(diff)
			if len(applicable) == 0 {
				continue
			}
			for _, d := range applicable {
				o.book.ApplyDiff(d)
			}
			o.onBookUpdate()

		case trade := <-o.tradeFeed.Trades():
			o.analyzer.OnTrade(trade)
			o.statsMu.Lock()
			o.tradeCount++
			o.statsMu.Unlock()
			o.tick()
		}
	}
}

// handleResync synchronously fetches a fresh snapshot and applies it,
// matching spec.md §5's "awaiting HTTP snapshot response" suspension point:
// the single processing task blocks here by design.
func (o *Orchestrator) handleResync() {
	snap, err := o.snapshotFetcher.Fetch(o.ctx)
	if err != nil {
		o.logger.Error("snapshot fetch failed", "error", err)
		o.statsMu.Lock()
		everSynced := o.everSynced
		o.statsMu.Unlock()
		if !everSynced {
			select {
			case o.fatalErr <- fmt.Errorf("initial snapshot fetch failed: %w", err):
			default:
			}
		}
		return
	}

	applied, buffered := o.synchronizer.HandleSnapshot(snap)
	o.book.ApplySnapshot(applied)
	for _, d := range buffered {
		o.book.ApplyDiff(d)
	}

	o.statsMu.Lock()
	o.everSynced = true
	o.statsMu.Unlock()

	o.onBookUpdate()
}

func (o *Orchestrator) onBookUpdate() {
	o.statsMu.Lock()
	o.orderBookUpdates++
	n := o.orderBookUpdates
	o.statsMu.Unlock()

	o.tick()

	if n%statusEveryNUpdates == 0 {
		o.emitStatus()
	}
}

// tick computes the latest MarketState and drives it through the Signal
// Generator, emitting a signal to the sink if one fires.
func (o *Orchestrator) tick() {
	nowMs := time.Now().UnixMilli()
	synced := o.synchronizer.State() == types.StateSynced

	state := o.analyzer.Tick(o.book, nowMs, synced)

	o.statsMu.Lock()
	o.lastState = state
	o.statsMu.Unlock()

	if sig, ok := o.generator.Process(state); ok {
		o.sink.Signal(sig)
	}
}

func (o *Orchestrator) emitStatus() {
	stats := o.synchronizer.Stats()
	o.statsMu.Lock()
	update := types.StatusUpdate{
		Timestamp:        time.Now(),
		Synced:           stats.Synced,
		LastUpdateID:     stats.LastUpdateID,
		DesyncCount:      stats.DesyncCount,
		OrderBookUpdates: o.orderBookUpdates,
		TradeCount:       o.tradeCount,
		Delta:            o.lastState.Delta.Normalized,
		Volatility:       o.lastState.Volatility,
		UptimeSeconds:    time.Since(o.startTime).Seconds(),
	}
	o.statsMu.Unlock()

	o.sink.Status(update)
}

// Snapshot returns the current dashboard state for the /api/snapshot and
// initial /ws payloads.
func (o *Orchestrator) Snapshot() output.DashboardSnapshot {
	stats := o.synchronizer.Stats()

	var bestBid, bestAsk, mid string
	if bb, ok := o.book.BestBid(); ok {
		bestBid = bb.String()
	}
	if ba, ok := o.book.BestAsk(); ok {
		bestAsk = ba.String()
	}
	if mp, ok := o.book.MidPrice(); ok {
		mid = mp.String()
	}

	o.statsMu.Lock()
	obUpdates, trades := o.orderBookUpdates, o.tradeCount
	uptime := time.Since(o.startTime).Seconds()
	volatility := o.lastState.Volatility
	o.statsMu.Unlock()

	return output.DashboardSnapshot{
		Synced:           stats.Synced,
		LastUpdateID:     stats.LastUpdateID,
		DesyncCount:      stats.DesyncCount,
		BestBid:          bestBid,
		BestAsk:          bestAsk,
		MidPrice:         mid,
		Volatility:       volatility,
		RecentSignals:    o.generator.History(),
		OrderBookUpdates: obUpdates,
		TradeCount:       trades,
		UptimeSeconds:    uptime,
	}
}

// FinalStats assembles the shutdown statistics block.
func (o *Orchestrator) FinalStats() types.FinalStats {
	total, buy, sell, filtered, avgConfidence, filterRate, reasons := o.generator.Stats()

	o.statsMu.Lock()
	obUpdates, trades := o.orderBookUpdates, o.tradeCount
	uptime := time.Since(o.startTime).Seconds()
	o.statsMu.Unlock()

	return types.FinalStats{
		UptimeSeconds:    uptime,
		OrderBookUpdates: obUpdates,
		TradeCount:       trades,
		TotalSignals:     total,
		BuySignals:       buy,
		SellSignals:      sell,
		AvgConfidence:    avgConfidence,
		SignalsFiltered:  filtered,
		FilterRate:       filterRate,
		FilterReasons:    reasons,
	}
}
