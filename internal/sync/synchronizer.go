// Package sync implements the Stream Synchronizer: the order-book diff
// stream's sequencing state machine. It buffers diffs that arrive before the
// REST snapshot, validates U/u sequence continuity once synced, and
// triggers a re-snapshot after repeated sequence gaps.
package sync

import (
	"log/slog"
	"sync"

	"orderflow-engine/pkg/types"
)

const (
	// maxPendingDiffs bounds the Unsynced buffer; oldest entries are dropped
	// once it fills, so a stalled snapshot request can never grow unbounded.
	maxPendingDiffs = 1000

	// maxDesyncCount is the number of consecutive sequence gaps at which the
	// synchronizer drops back to Unsynced and re-snapshots.
	maxDesyncCount = 3
)

// RequestSnapshot is called whenever the synchronizer needs a fresh
// snapshot: on start, after transport reconnect, and after maxDesyncCount
// consecutive gaps.
type RequestSnapshot func()

// Synchronizer drives the Unsynced → Buffering → Synced state machine
// described in spec.md §4.1.
type Synchronizer struct {
	mu sync.Mutex

	state        types.SyncState
	lastUpdateID int64
	desyncCount  int
	pending      []types.DiffEvent

	requestSnapshot RequestSnapshot
	logger          *slog.Logger
}

// New creates a Synchronizer in the initial Unsynced state.
func New(requestSnapshot RequestSnapshot, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		state:           types.StateUnsynced,
		requestSnapshot: requestSnapshot,
		logger:          logger.With("component", "synchronizer"),
	}
}

// State returns the current sync state.
func (s *Synchronizer) State() types.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats mirrors the source connector's get_sync_stats().
type Stats struct {
	Synced       bool
	LastUpdateID int64
	DesyncCount  int
}

// Stats returns a point-in-time snapshot of sync health.
func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Synced:       s.state == types.StateSynced,
		LastUpdateID: s.lastUpdateID,
		DesyncCount:  s.desyncCount,
	}
}

// OnReconnect unconditionally re-enters Unsynced and requests a fresh
// snapshot, per spec.md §4.1.
func (s *Synchronizer) OnReconnect() {
	s.mu.Lock()
	s.state = types.StateUnsynced
	s.pending = nil
	s.desyncCount = 0
	s.mu.Unlock()

	s.logger.Info("transport reconnected, resyncing")
	s.requestSnapshot()
}

// Start requests the initial snapshot. Call once after construction.
func (s *Synchronizer) Start() {
	s.requestSnapshot()
}

// HandleDiff feeds one incoming diff event into the state machine. It
// returns the diffs (zero or more) that are now applicable, in order, and
// should be applied to the order book.
func (s *Synchronizer) HandleDiff(diff types.DiffEvent) []types.DiffEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case types.StateUnsynced, types.StateBuffering:
		s.bufferLocked(diff)
		return nil

	case types.StateSynced:
		if diff.FirstUpdateID != s.lastUpdateID+1 {
			s.desyncCount++
			s.logger.Warn("sequence gap",
				"expected", s.lastUpdateID+1,
				"got", diff.FirstUpdateID,
				"desync_count", s.desyncCount,
			)
			if s.desyncCount >= maxDesyncCount {
				s.logger.Error("repeated desyncs, resyncing")
				s.state = types.StateUnsynced
				s.pending = nil
				s.desyncCount = 0
				s.requestSnapshot()
			}
			return nil
		}
		s.desyncCount = 0
		s.lastUpdateID = diff.FinalUpdateID
		return []types.DiffEvent{diff}
	}

	return nil
}

func (s *Synchronizer) bufferLocked(diff types.DiffEvent) {
	s.pending = append(s.pending, diff)
	if len(s.pending) > maxPendingDiffs {
		s.pending = s.pending[len(s.pending)-maxPendingDiffs:]
	}
}

// HandleSnapshot feeds a freshly fetched snapshot into the state machine.
// It returns the snapshot (to seed the book) followed by any buffered
// diffs that are now applicable, in order.
func (s *Synchronizer) HandleSnapshot(snap types.Snapshot) (types.Snapshot, []types.DiffEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = types.StateBuffering

	var applicable []types.DiffEvent
	startIdx := -1
	for i, diff := range s.pending {
		if diff.FirstUpdateID <= snap.LastUpdateID+1 && snap.LastUpdateID+1 <= diff.FinalUpdateID {
			startIdx = i
			break
		}
	}

	if startIdx >= 0 {
		applicable = append(applicable, s.pending[startIdx:]...)
	}

	if len(applicable) > 0 {
		s.lastUpdateID = applicable[len(applicable)-1].FinalUpdateID
	} else {
		s.lastUpdateID = snap.LastUpdateID
	}

	s.pending = nil
	s.desyncCount = 0
	s.state = types.StateSynced

	s.logger.Info("order book sync established",
		"last_update_id", s.lastUpdateID,
		"buffered_applied", len(applicable),
	)

	return snap, applicable
}
