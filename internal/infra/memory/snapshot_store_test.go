package memory

import (
	"context"
	"testing"
	"time"

	"exam-score-service/internal/domain"
)

func TestSnapshotStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	if _, found, _ := store.GetSnapshot(ctx, "test-1"); found {
		t.Fatalf("expected no snapshot yet")
	}

	// Marking an unknown test creates a stale placeholder.
	if err := store.MarkStale(ctx, "test-1"); err != nil {
		t.Fatalf("mark stale: %v", err)
	}
	placeholder, found, _ := store.GetSnapshot(ctx, "test-1")
	if !found || !placeholder.IsStale || placeholder.TestID != "test-1" {
		t.Fatalf("expected stale placeholder, got found=%v %+v", found, placeholder)
	}

	fresh := domain.LeaderboardSnapshot{
		TestID:        "test-1",
		TotalStudents: 2,
		LastUpdated:   time.Now(),
	}
	if err := store.PutSnapshot(ctx, fresh); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	got, found, _ := store.GetSnapshot(ctx, "test-1")
	if !found || got.IsStale || got.TotalStudents != 2 {
		t.Fatalf("expected fresh snapshot, got %+v", got)
	}

	if err := store.MarkStale(ctx, "test-1"); err != nil {
		t.Fatalf("mark stale: %v", err)
	}
	got, _, _ = store.GetSnapshot(ctx, "test-1")
	if !got.IsStale || got.TotalStudents != 2 {
		t.Fatalf("marking stale must preserve the snapshot body, got %+v", got)
	}
}
