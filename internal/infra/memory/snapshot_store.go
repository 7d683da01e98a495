package memory

import (
	"context"
	"sync"

	"exam-score-service/internal/domain"
)

// SnapshotStore is an in-memory implementation of app.SnapshotStore: one
// snapshot per test with an explicit staleness flag.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.LeaderboardSnapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[string]domain.LeaderboardSnapshot),
	}
}

func (s *SnapshotStore) GetSnapshot(_ context.Context, testID string) (domain.LeaderboardSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[testID]
	return snapshot, ok, nil
}

func (s *SnapshotStore) PutSnapshot(_ context.Context, snapshot domain.LeaderboardSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.TestID] = snapshot
	return nil
}

func (s *SnapshotStore) MarkStale(_ context.Context, testID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.snapshots[testID]
	if !ok {
		// Stale placeholder so the first read triggers a build.
		snapshot = domain.LeaderboardSnapshot{TestID: testID}
	}
	snapshot.IsStale = true
	s.snapshots[testID] = snapshot
	return nil
}
