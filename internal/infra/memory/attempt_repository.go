package memory

import (
	"context"
	"sync"

	"exam-score-service/internal/domain"
)

// AttemptRepository is an in-memory implementation of app.AttemptRepository.
// Attempts are handed out as deep copies and listed in insertion order, which
// keeps leaderboard load order deterministic.
type AttemptRepository struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
	order    []string
}

func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{
		attempts: make(map[string]domain.Attempt),
	}
}

func (r *AttemptRepository) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempt, ok := r.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt.Clone(), nil
}

func (r *AttemptRepository) SaveAttempt(_ context.Context, attempt domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[attempt.ID]; !ok {
		r.order = append(r.order, attempt.ID)
	}
	r.attempts[attempt.ID] = attempt.Clone()
	return nil
}

func (r *AttemptRepository) ListFinishedByTest(_ context.Context, testID string) ([]domain.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Attempt
	for _, id := range r.order {
		attempt := r.attempts[id]
		if attempt.TestID != testID || !attempt.Status.Qualifies() {
			continue
		}
		out = append(out, attempt.Clone())
	}
	return out, nil
}
