// orderflow-engine — a real-time order-flow signal bot for crypto spot
// markets: it mirrors an exchange's diff-stream order book, classifies
// trade-tape microstructure (liquidity sweeps, absorption, delta flips,
// volatility regime), and emits confidence-scored BUY/SELL signals.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts the orchestrator, waits for SIGINT/SIGTERM
//	internal/engine/orchestrator.go — wires exchange feeds → sync → book → flow → signal → output
//	internal/exchange/ws.go   — diff-stream + trade-stream WebSocket feeds with auto-reconnect
//	internal/exchange/snapshot.go — REST depth snapshot fetch with retry/backoff
//	internal/sync/synchronizer.go — stream synchronizer state machine (Unsynced/Buffering/Synced)
//	internal/book/book.go     — local order book mirror, eviction, depth queries
//	internal/flow/analyzer.go — delta, volatility regime, sweep + absorption detection
//	internal/signal/generator.go — pattern matching, confidence scoring, cooldown
//	internal/output/*.go      — console printer, CSV signal log, WebSocket dashboard
//
// This bot never places orders: it is a read-only signal generator.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"orderflow-engine/internal/config"
	"orderflow-engine/internal/engine"
	"orderflow-engine/internal/output"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("FLOW_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	sink, hub, err := buildSink(*cfg, logger)
	if err != nil {
		logger.Error("failed to set up output", "error", err)
		os.Exit(1)
	}

	eng := engine.New(*cfg, sink, logger)

	var dashboard *output.Server
	if cfg.Output.DashboardEnabled {
		go hub.Run()
		dashboard = output.NewServer(output.ServerConfig{
			Port:           cfg.Output.DashboardPort,
			AllowedOrigins: cfg.Output.AllowedOrigins,
		}, eng.Snapshot, hub, logger)
		go func() {
			if err := dashboard.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Output.DashboardPort))
	}

	eng.Start()
	logger.Info("orderflow engine started",
		"exchange", cfg.Exchange.Name,
		"symbol", cfg.Exchange.Symbol,
		"mode", cfg.Output.Mode,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fatal := false
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-waitFatal(eng):
		logger.Error("fatal error, shutting down", "error", err)
		fatal = true
	}

	if dashboard != nil {
		if err := dashboard.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	eng.Stop()
	sink.Final(eng.FinalStats())

	if fatal {
		os.Exit(1)
	}
}

// waitFatal adapts Orchestrator.Wait into a channel so main can select over
// it alongside the OS signal channel.
func waitFatal(eng *engine.Orchestrator) <-chan error {
	ch := make(chan error, 1)
	go func() {
		if err := eng.Wait(); err != nil {
			ch <- err
		}
	}()
	return ch
}

// buildSink assembles the fan-out output sink: console always, CSV log only
// if configured, dashboard hub only if enabled. Returns the hub separately
// (even when disabled, as a harmless unused *output.Hub) so main can wire
// its Run/Server lifecycle without a second type switch.
func buildSink(cfg config.Config, logger *slog.Logger) (output.Sink, *output.Hub, error) {
	sinks := []output.Sink{output.NewConsole(cfg.Output.Mode, cfg.Output.Color, os.Stdout)}

	csvLog, err := output.NewCSVLog(cfg.Output.CSVPath)
	if err != nil {
		return nil, nil, fmt.Errorf("csv log: %w", err)
	}
	if csvLog != nil {
		sinks = append(sinks, csvLog)
	}

	hub := output.NewHub(logger)
	if cfg.Output.DashboardEnabled {
		sinks = append(sinks, hub)
	}

	return output.NewMultiSink(sinks...), hub, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
