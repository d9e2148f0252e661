// Package exchange implements the Exchange Connector: a REST snapshot
// fetcher plus the two WebSocket feeds (ws.go) that stream order-book
// diffs and trades.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"orderflow-engine/internal/config"
	"orderflow-engine/pkg/types"
)

// ErrSnapshotFailed wraps any failure to obtain a depth snapshot.
var ErrSnapshotFailed = fmt.Errorf("snapshot fetch failed")

type rawDepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         []rawLevel `json:"bids"`
	Asks         []rawLevel `json:"asks"`
}

// SnapshotFetcher retrieves full-depth REST snapshots used to (re)seed the
// order book and anchor the diff stream's sequence IDs.
type SnapshotFetcher struct {
	http     *resty.Client
	symbol   string
	limit    int
	endpoint string
	logger   *slog.Logger
}

// NewSnapshotFetcher builds a snapshot fetcher with retry/backoff, mirroring
// the teacher's REST client configuration.
func NewSnapshotFetcher(cfg config.ExchangeConfig, logger *slog.Logger) *SnapshotFetcher {
	httpClient := resty.New().
		SetBaseURL(cfg.RESTBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	limit := cfg.SnapshotLimit
	if limit == 0 {
		limit = 1000
	}

	endpoint := cfg.DepthEndpoint
	if endpoint == "" {
		endpoint = "/api/v3/depth"
	}

	return &SnapshotFetcher{
		http:     httpClient,
		symbol:   cfg.Symbol,
		limit:    limit,
		endpoint: endpoint,
		logger:   logger.With("component", "snapshot_fetcher"),
	}
}

// Fetch retrieves a full-depth snapshot for the configured symbol.
func (f *SnapshotFetcher) Fetch(ctx context.Context) (types.Snapshot, error) {
	var raw rawDepthResponse
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", f.symbol).
		SetQueryParam("limit", fmt.Sprintf("%d", f.limit)).
		SetResult(&raw).
		Get(f.endpoint)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Snapshot{}, fmt.Errorf("%w: status %d: %s", ErrSnapshotFailed, resp.StatusCode(), resp.String())
	}

	bids, err := toLevelUpdates(raw.Bids)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}
	asks, err := toLevelUpdates(raw.Asks)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}

	f.logger.Info("snapshot loaded",
		"bids", len(bids),
		"asks", len(asks),
		"last_update_id", raw.LastUpdateID,
	)

	return types.Snapshot{
		LastUpdateID: raw.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}, nil
}
