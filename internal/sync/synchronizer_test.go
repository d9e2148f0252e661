package sync

import (
	"log/slog"
	"testing"

	"orderflow-engine/pkg/types"
)

func newTestSynchronizer(requestCount *int) *Synchronizer {
	return New(func() { *requestCount++ }, slog.Default())
}

// S1 — Snapshot then in-order diff.
func TestSynchronizerSnapshotThenInOrderDiff(t *testing.T) {
	t.Parallel()

	requests := 0
	s := newTestSynchronizer(&requests)

	snap := types.Snapshot{LastUpdateID: 100}
	_, applied := s.HandleSnapshot(snap)
	if len(applied) != 0 {
		t.Fatalf("expected no buffered diffs, got %d", len(applied))
	}
	if s.State() != types.StateSynced {
		t.Fatalf("state = %v, want Synced", s.State())
	}

	diff := types.DiffEvent{FirstUpdateID: 101, FinalUpdateID: 103}
	got := s.HandleDiff(diff)
	if len(got) != 1 || got[0].FinalUpdateID != 103 {
		t.Fatalf("HandleDiff = %+v, want single diff with u=103", got)
	}
	if s.Stats().LastUpdateID != 103 {
		t.Errorf("last_update_id = %d, want 103", s.Stats().LastUpdateID)
	}
}

// S2 — Buffered diffs span snapshot.
func TestSynchronizerBufferedDiffsSpanSnapshot(t *testing.T) {
	t.Parallel()

	requests := 0
	s := newTestSynchronizer(&requests)

	s.HandleDiff(types.DiffEvent{FirstUpdateID: 98, FinalUpdateID: 99})
	s.HandleDiff(types.DiffEvent{FirstUpdateID: 100, FinalUpdateID: 102})
	s.HandleDiff(types.DiffEvent{FirstUpdateID: 103, FinalUpdateID: 104})

	snap := types.Snapshot{LastUpdateID: 101}
	_, applied := s.HandleSnapshot(snap)

	if len(applied) != 2 {
		t.Fatalf("applied = %d diffs, want 2", len(applied))
	}
	if applied[0].FirstUpdateID != 100 {
		t.Errorf("applied[0].U = %d, want 100", applied[0].FirstUpdateID)
	}
	if applied[1].FinalUpdateID != 104 {
		t.Errorf("applied[1].u = %d, want 104", applied[1].FinalUpdateID)
	}
	if s.Stats().LastUpdateID != 104 {
		t.Errorf("last_update_id = %d, want 104", s.Stats().LastUpdateID)
	}
}

// S3 — Gap triggers resync after three consecutive desyncs.
func TestSynchronizerGapTriggersResync(t *testing.T) {
	t.Parallel()

	requests := 0
	s := newTestSynchronizer(&requests)
	s.HandleSnapshot(types.Snapshot{LastUpdateID: 199})
	s.HandleDiff(types.DiffEvent{FirstUpdateID: 200, FinalUpdateID: 200})

	s.HandleDiff(types.DiffEvent{FirstUpdateID: 205, FinalUpdateID: 205})
	if s.Stats().DesyncCount != 1 {
		t.Fatalf("desync_count = %d, want 1", s.Stats().DesyncCount)
	}
	if s.State() != types.StateSynced {
		t.Fatalf("state = %v, want still Synced after one gap", s.State())
	}

	s.HandleDiff(types.DiffEvent{FirstUpdateID: 210, FinalUpdateID: 210})
	if s.Stats().DesyncCount != 2 {
		t.Fatalf("desync_count = %d, want 2", s.Stats().DesyncCount)
	}

	s.HandleDiff(types.DiffEvent{FirstUpdateID: 214, FinalUpdateID: 214})
	if s.State() != types.StateUnsynced {
		t.Fatalf("state = %v, want Unsynced after 3rd gap", s.State())
	}
	if s.Stats().DesyncCount != 0 {
		t.Errorf("desync_count = %d, want reset to 0", s.Stats().DesyncCount)
	}
	if requests != 1 {
		t.Errorf("requestSnapshot called %d times, want 1 (the resync request)", requests)
	}
}

func TestSynchronizerOnReconnectResetsToUnsynced(t *testing.T) {
	t.Parallel()

	requests := 0
	s := newTestSynchronizer(&requests)
	s.HandleSnapshot(types.Snapshot{LastUpdateID: 10})
	s.HandleDiff(types.DiffEvent{FirstUpdateID: 11, FinalUpdateID: 11})

	s.OnReconnect()

	if s.State() != types.StateUnsynced {
		t.Errorf("state = %v, want Unsynced after reconnect", s.State())
	}
	if requests != 1 {
		t.Errorf("requestSnapshot called %d times, want 1", requests)
	}
}

func TestSynchronizerDiffsBufferedBeforeSnapshot(t *testing.T) {
	t.Parallel()

	requests := 0
	s := newTestSynchronizer(&requests)

	got := s.HandleDiff(types.DiffEvent{FirstUpdateID: 1, FinalUpdateID: 2})
	if len(got) != 0 {
		t.Errorf("HandleDiff before snapshot should return nothing applicable, got %+v", got)
	}
}
