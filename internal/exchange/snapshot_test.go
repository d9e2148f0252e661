package exchange

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"orderflow-engine/internal/config"
)

func TestSnapshotFetcherFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "ETHUSDT" {
			t.Errorf("symbol = %q, want ETHUSDT", r.URL.Query().Get("symbol"))
		}
		resp := rawDepthResponse{
			LastUpdateID: 1027024,
			Bids:         []rawLevel{{"4.00000000", "431.00000000"}},
			Asks:         []rawLevel{{"4.00000200", "12.00000000"}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	f := NewSnapshotFetcher(config.ExchangeConfig{
		Symbol:      "ETHUSDT",
		RESTBaseURL: srv.URL,
	}, slog.Default())

	snap, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.LastUpdateID != 1027024 {
		t.Errorf("LastUpdateID = %d, want 1027024", snap.LastUpdateID)
	}
	if len(snap.Bids) != 1 || len(snap.Asks) != 1 {
		t.Fatalf("got %d bids, %d asks, want 1 and 1", len(snap.Bids), len(snap.Asks))
	}
}

func TestSnapshotFetcherFetchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewSnapshotFetcher(config.ExchangeConfig{
		Symbol:      "ETHUSDT",
		RESTBaseURL: srv.URL,
	}, slog.Default())

	if _, err := f.Fetch(context.Background()); err == nil {
		t.Error("expected error on server 500")
	}
}
