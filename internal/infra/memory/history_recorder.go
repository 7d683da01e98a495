package memory

import (
	"context"
	"sync"

	"exam-score-service/internal/domain"
)

// HistoryRecorder is an in-process app.AttemptRecorder keeping per-student
// scored-attempt history for attempt numbering and trend displays.
type HistoryRecorder struct {
	mu      sync.RWMutex
	history map[string][]domain.Attempt
}

func NewHistoryRecorder() *HistoryRecorder {
	return &HistoryRecorder{
		history: make(map[string][]domain.Attempt),
	}
}

func (r *HistoryRecorder) RecordScored(_ context.Context, attempt domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[attempt.StudentID] = append(r.history[attempt.StudentID], attempt.Clone())
	return nil
}

// AttemptNumber reports how many scored attempts the student has for a test.
func (r *HistoryRecorder) AttemptNumber(studentID, testID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, attempt := range r.history[studentID] {
		if attempt.TestID == testID {
			n++
		}
	}
	return n
}
