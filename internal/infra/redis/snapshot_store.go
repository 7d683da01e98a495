package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"exam-score-service/internal/domain"
)

// SnapshotStore keeps one leaderboard snapshot per test as a JSON value:
// SET exam:leaderboard:{testID} {snapshot JSON}
// Snapshots are small (one entry per student) and rewritten wholesale, so a
// plain string value beats a per-entry structure here.
type SnapshotStore struct {
	client *redis.Client
}

func NewSnapshotStore(client *redis.Client) *SnapshotStore {
	return &SnapshotStore{client: client}
}

func (s *SnapshotStore) GetSnapshot(ctx context.Context, testID string) (domain.LeaderboardSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.key(testID)).Bytes()
	if err == redis.Nil {
		return domain.LeaderboardSnapshot{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardSnapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	var snapshot domain.LeaderboardSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return domain.LeaderboardSnapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snapshot, true, nil
}

func (s *SnapshotStore) PutSnapshot(ctx context.Context, snapshot domain.LeaderboardSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snapshot.TestID), raw, 0).Err(); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// markStaleRetries bounds optimistic-lock retries when a rebuild writes the
// key concurrently.
const markStaleRetries = 3

// MarkStale flags the snapshot under WATCH so a rebuild finishing between the
// read and the write cannot erase the mark.
func (s *SnapshotStore) MarkStale(ctx context.Context, testID string) error {
	key := s.key(testID)

	txf := func(tx *redis.Tx) error {
		// Stale placeholder so the first read triggers a build.
		snapshot := domain.LeaderboardSnapshot{TestID: testID}
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(raw, &snapshot); err != nil {
				return fmt.Errorf("unmarshal snapshot: %w", err)
			}
		}
		snapshot.IsStale = true
		out, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < markStaleRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("mark snapshot stale: %w", redis.TxFailedErr)
}

func (s *SnapshotStore) key(testID string) string {
	return "exam:leaderboard:" + testID
}
