// ws.go implements the two upstream WebSocket feeds the order-flow engine
// consumes:
//
//   - Diff stream: incremental order-book updates keyed by U/u sequence IDs.
//   - Trade stream: executed trade ticks.
//
// Both feeds auto-reconnect with exponential backoff (1s → 30s max). A read
// deadline (90s) ensures a silently dead connection is detected within ~2
// missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

const (
	pingInterval     = 50 * time.Second // how often we send PING to keep alive
	readTimeout      = 90 * time.Second // ~2 missed pings triggers reconnect
	maxReconnectWait = 30 * time.Second // cap on exponential backoff
	writeTimeout     = 10 * time.Second // deadline for outgoing messages
	diffBufferSize   = 256              // buffer for diff events
	tradeBufferSize  = 256              // buffer for trade events
)

// rawLevel is the [price, qty] wire shape used by both diff and snapshot
// payloads.
type rawLevel [2]string

func (r rawLevel) toLevelUpdate() (types.LevelUpdate, error) {
	price, err := decimal.NewFromString(r[0])
	if err != nil {
		return types.LevelUpdate{}, fmt.Errorf("parse price %q: %w", r[0], err)
	}
	size, err := decimal.NewFromString(r[1])
	if err != nil {
		return types.LevelUpdate{}, fmt.Errorf("parse size %q: %w", r[1], err)
	}
	return types.LevelUpdate{Price: price, Size: size}, nil
}

func toLevelUpdates(raw []rawLevel) ([]types.LevelUpdate, error) {
	out := make([]types.LevelUpdate, 0, len(raw))
	for _, r := range raw {
		lvl, err := r.toLevelUpdate()
		if err != nil {
			return nil, err
		}
		out = append(out, lvl)
	}
	return out, nil
}

// rawDiffFrame is the wire shape of a depth-diff stream message.
type rawDiffFrame struct {
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          []rawLevel `json:"b"`
	Asks          []rawLevel `json:"a"`
}

// rawTradeFrame is the wire shape of a trade-stream message.
type rawTradeFrame struct {
	Price         string `json:"p"`
	Size          string `json:"q"`
	BuyerIsMaker  bool   `json:"m"`
	TradeTimeMs   int64  `json:"T"`
}

// DiffFeed streams incremental order-book updates.
type DiffFeed struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex

	diffCh      chan types.DiffEvent
	connectedCh chan struct{}
	logger      *slog.Logger
}

// NewDiffFeed creates a WebSocket feed for the depth-diff stream.
func NewDiffFeed(url string, logger *slog.Logger) *DiffFeed {
	return &DiffFeed{
		url:         url,
		diffCh:      make(chan types.DiffEvent, diffBufferSize),
		connectedCh: make(chan struct{}, 1),
		logger:      logger.With("component", "ws_diff"),
	}
}

// Diffs returns a read-only channel of incremental order-book updates.
func (f *DiffFeed) Diffs() <-chan types.DiffEvent { return f.diffCh }

// Connected signals once per successful dial, including reconnects. The
// Stream Synchronizer must unconditionally re-enter Unsynced on each of
// these and re-request a snapshot.
func (f *DiffFeed) Connected() <-chan struct{} { return f.connectedCh }

func (f *DiffFeed) notifyConnected() {
	select {
	case f.connectedCh <- struct{}{}:
	default:
	}
}

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *DiffFeed) Run(ctx context.Context) error {
	return runWithReconnect(ctx, f.logger, func(ctx context.Context) error {
		return f.connectAndRead(ctx)
	})
}

// Close gracefully closes the connection.
func (f *DiffFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *DiffFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	f.logger.Info("diff stream connected")
	f.notifyConnected()

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go pingLoop(pingCtx, f.connMu2(), f.logger)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var raw rawDiffFrame
		if err := json.Unmarshal(msg, &raw); err != nil {
			f.logger.Debug("ignoring malformed diff frame", "error", err)
			continue
		}

		bids, err := toLevelUpdates(raw.Bids)
		if err != nil {
			f.logger.Error("malformed bid levels", "error", err)
			continue
		}
		asks, err := toLevelUpdates(raw.Asks)
		if err != nil {
			f.logger.Error("malformed ask levels", "error", err)
			continue
		}

		evt := types.DiffEvent{
			FirstUpdateID: raw.FirstUpdateID,
			FinalUpdateID: raw.FinalUpdateID,
			BidChanges:    bids,
			AskChanges:    asks,
		}

		select {
		case f.diffCh <- evt:
		default:
			f.logger.Warn("diff channel full, dropping event", "U", evt.FirstUpdateID, "u", evt.FinalUpdateID)
		}
	}
}

// connMu2 exposes a write-message closure bound to this feed's connection,
// used by the shared ping loop.
func (f *DiffFeed) connMu2() func(msgType int, data []byte) error {
	return func(msgType int, data []byte) error {
		f.connMu.Lock()
		defer f.connMu.Unlock()
		if f.conn == nil {
			return fmt.Errorf("websocket not connected")
		}
		f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return f.conn.WriteMessage(msgType, data)
	}
}

// TradeFeed streams executed trades.
type TradeFeed struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex

	tradeCh chan types.Trade
	logger  *slog.Logger
}

// NewTradeFeed creates a WebSocket feed for the trade stream.
func NewTradeFeed(url string, logger *slog.Logger) *TradeFeed {
	return &TradeFeed{
		url:     url,
		tradeCh: make(chan types.Trade, tradeBufferSize),
		logger:  logger.With("component", "ws_trade"),
	}
}

// Trades returns a read-only channel of executed trades.
func (f *TradeFeed) Trades() <-chan types.Trade { return f.tradeCh }

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *TradeFeed) Run(ctx context.Context) error {
	return runWithReconnect(ctx, f.logger, func(ctx context.Context) error {
		return f.connectAndRead(ctx)
	})
}

// Close gracefully closes the connection.
func (f *TradeFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *TradeFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	f.logger.Info("trade stream connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go pingLoop(pingCtx, f.connMu2(), f.logger)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var raw rawTradeFrame
		if err := json.Unmarshal(msg, &raw); err != nil {
			f.logger.Debug("ignoring malformed trade frame", "error", err)
			continue
		}

		price, err := decimal.NewFromString(raw.Price)
		if err != nil {
			f.logger.Error("malformed trade price", "error", err)
			continue
		}
		size, err := decimal.NewFromString(raw.Size)
		if err != nil {
			f.logger.Error("malformed trade size", "error", err)
			continue
		}

		side := types.Buy
		if raw.BuyerIsMaker {
			side = types.Sell
		}

		trade := types.Trade{
			Price:       price,
			Size:        size,
			Side:        side,
			TimestampMs: raw.TradeTimeMs,
		}

		select {
		case f.tradeCh <- trade:
		default:
			f.logger.Warn("trade channel full, dropping trade")
		}
	}
}

func (f *TradeFeed) connMu2() func(msgType int, data []byte) error {
	return func(msgType int, data []byte) error {
		f.connMu.Lock()
		defer f.connMu.Unlock()
		if f.conn == nil {
			return fmt.Errorf("websocket not connected")
		}
		f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return f.conn.WriteMessage(msgType, data)
	}
}

// runWithReconnect drives connectAndRead with exponential backoff, exactly
// as the teacher's WSFeed.Run does.
func runWithReconnect(ctx context.Context, logger *slog.Logger, connectAndRead func(context.Context) error) error {
	backoff := time.Second

	for {
		err := connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// pingLoop sends a text PING at pingInterval until ctx is cancelled or a
// write fails.
func pingLoop(ctx context.Context, write func(msgType int, data []byte) error, logger *slog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(websocket.TextMessage, []byte("PING")); err != nil {
				logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}
