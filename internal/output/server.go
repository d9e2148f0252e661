package output

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"orderflow-engine/pkg/types"
)

// DashboardSnapshot is the point-in-time state served at /api/snapshot and
// pushed to new /ws clients on connect.
type DashboardSnapshot struct {
	Synced           bool                   `json:"synced"`
	LastUpdateID     int64                  `json:"last_update_id"`
	DesyncCount      int                    `json:"desync_count"`
	BestBid          string                 `json:"best_bid,omitempty"`
	BestAsk          string                 `json:"best_ask,omitempty"`
	MidPrice         string                 `json:"mid_price,omitempty"`
	Volatility       types.VolatilityRegime `json:"volatility"`
	RecentSignals    []types.Signal         `json:"recent_signals"`
	OrderBookUpdates int64                  `json:"order_book_updates"`
	TradeCount       int64                  `json:"trade_count"`
	UptimeSeconds    float64                `json:"uptime_seconds"`
}

// SnapshotProvider supplies the current dashboard state on demand.
type SnapshotProvider func() DashboardSnapshot

// ServerConfig configures the dashboard's HTTP surface.
type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

// Server serves the status/signal dashboard: /health, /api/snapshot, /ws.
// Adapted from the market-making bot's dashboard API server, repurposed onto
// order-flow sync/book/signal state instead of market-making PnL.
type Server struct {
	cfg      ServerConfig
	provider SnapshotProvider
	hub      *Hub
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds the dashboard server around the given WebSocket hub.
// hub.Run and Start must be launched by the caller (cmd/bot/main.go) in
// goroutines.
func NewServer(cfg ServerConfig, provider SnapshotProvider, hub *Hub, logger *slog.Logger) *Server {
	logger = logger.With("component", "dashboard_server")

	mux := http.NewServeMux()
	s := &Server{cfg: cfg, provider: provider, hub: hub, logger: logger}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start launches the HTTP listener. Blocks until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("dashboard server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.provider()); err != nil {
		s.logger.Error("failed to encode snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), s.cfg.AllowedOrigins, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)

	evt := event{Type: "snapshot", Timestamp: time.Now(), Data: s.provider()}
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
		s.logger.Warn("failed to send initial snapshot to client")
	}
}

func isOriginAllowed(origin string, allowed []string, reqHost string) bool {
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(allowed) > 0 {
		for _, a := range allowed {
			u, err := url.Parse(a)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	return host == normalizeHost(reqHost)
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
