package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCheckpointSaveLatest(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	sessions := NewSessionStore(d, "")
	checkpoints := NewCheckpointStore(d)

	if err := sessions.Create(ctx, &Session{ID: "sess-1"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	for turn := 1; turn <= 3; turn++ {
		cp := &Checkpoint{
			SessionID:  "sess-1",
			TurnNumber: turn,
			StateJSON:  fmt.Sprintf(`{"turn":%d}`, turn),
		}
		if err := checkpoints.Save(ctx, cp); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}

	latest, err := checkpoints.Latest(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if latest.TurnNumber != 3 {
		t.Errorf("latest turn = %d, want 3", latest.TurnNumber)
	}
	if latest.CheckpointType != "turn" {
		t.Errorf("checkpoint type = %q, want turn", latest.CheckpointType)
	}
}

func TestCheckpointLatestNotFound(t *testing.T) {
	checkpoints := NewCheckpointStore(newTestDB(t))
	if _, err := checkpoints.Latest(context.Background(), "missing"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Errorf("err = %v, want ErrCheckpointNotFound", err)
	}
}

func TestCheckpointRetentionBound(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	sessions := NewSessionStore(d, "")
	checkpoints := NewCheckpointStore(d)

	if err := sessions.Create(ctx, &Session{ID: "sess-1"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	total := MaxCheckpointsPerSession + 7
	for turn := 1; turn <= total; turn++ {
		if err := checkpoints.Save(ctx, &Checkpoint{SessionID: "sess-1", TurnNumber: turn}); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}

	count, err := checkpoints.Count(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if count != MaxCheckpointsPerSession {
		t.Errorf("retained = %d, want %d", count, MaxCheckpointsPerSession)
	}

	// The newest checkpoint survives eviction.
	latest, err := checkpoints.Latest(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if latest.TurnNumber != total {
		t.Errorf("latest turn = %d, want %d", latest.TurnNumber, total)
	}
}
