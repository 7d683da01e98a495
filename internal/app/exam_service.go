package app

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"exam-score-service/internal/domain"
)

// AttemptRepository abstracts how attempts are stored (in-memory, Postgres).
type AttemptRepository interface {
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	SaveAttempt(ctx context.Context, attempt domain.Attempt) error
	// ListFinishedByTest returns every completed or auto-submitted attempt
	// for the test in a deterministic load order.
	ListFinishedByTest(ctx context.Context, testID string) ([]domain.Attempt, error)
}

// TestRepository loads test content (from cache/backing store).
type TestRepository interface {
	GetTest(ctx context.Context, testID string) (domain.Test, error)
}

// SnapshotStore persists one leaderboard snapshot per test together with its
// staleness flag.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, testID string) (domain.LeaderboardSnapshot, bool, error)
	PutSnapshot(ctx context.Context, snapshot domain.LeaderboardSnapshot) error
	// MarkStale flags the test's snapshot, creating a stale placeholder when
	// none exists yet.
	MarkStale(ctx context.Context, testID string) error
}

// AttemptRecorder is an external history/audit collaborator notified about
// scored attempts. Notification is fire-and-forget; the service never depends
// on the recorder succeeding.
type AttemptRecorder interface {
	RecordScored(ctx context.Context, attempt domain.Attempt) error
}

// ExamService contains the scoring and leaderboard use cases.
type ExamService struct {
	attempts  AttemptRepository
	tests     TestRepository
	snapshots SnapshotStore
	recorder  AttemptRecorder
	engine    *ScoringEngine
	builder   *LeaderboardBuilder

	// rebuilds collapses concurrent snapshot rebuilds for one test; a race
	// would only produce redundant work, not corruption.
	rebuilds singleflight.Group
	clock    func() time.Time

	mu          sync.Mutex
	subscribers map[string]map[chan domain.LeaderboardSnapshot]struct{}
}

func NewExamService(attempts AttemptRepository, tests TestRepository, snapshots SnapshotStore, recorder AttemptRecorder, engine *ScoringEngine) *ExamService {
	return &ExamService{
		attempts:    attempts,
		tests:       tests,
		snapshots:   snapshots,
		recorder:    recorder,
		engine:      engine,
		builder:     NewLeaderboardBuilder(engine),
		clock:       time.Now,
		subscribers: make(map[string]map[chan domain.LeaderboardSnapshot]struct{}),
	}
}

// NewExamServiceWithClock is test-only for deterministic timestamps.
func NewExamServiceWithClock(attempts AttemptRepository, tests TestRepository, snapshots SnapshotStore, recorder AttemptRecorder, engine *ScoringEngine, now func() time.Time) *ExamService {
	s := NewExamService(attempts, tests, snapshots, recorder, engine)
	s.clock = now
	return s
}

// ScoreAttempt grades a finalized attempt, persists the score and analysis,
// moves the attempt to its terminal status, and marks the test's leaderboard
// stale. An attempt is scored exactly once; re-scoring fails with
// ErrAttemptAlreadyScored. Per-question anomalies are returned alongside the
// result, they never abort scoring.
func (s *ExamService) ScoreAttempt(ctx context.Context, attemptID string, reason domain.SubmissionReason) (domain.Attempt, []domain.Anomaly, error) {
	status, ok := reason.TerminalStatus()
	if !ok {
		return domain.Attempt{}, nil, domain.ErrUnknownSubmissionReason
	}

	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, nil, err
	}
	if attempt.Status.Qualifies() {
		return domain.Attempt{}, nil, domain.ErrAttemptAlreadyScored
	}
	test, err := s.tests.GetTest(ctx, attempt.TestID)
	if err != nil {
		return domain.Attempt{}, nil, err
	}

	score, analysis, anomalies := s.engine.Evaluate(attempt.Answers, test.Questions)
	attempt.Score = score
	attempt.Analysis = analysis
	attempt.Status = status
	attempt.SubmittedAt = s.clock()

	if err := s.attempts.SaveAttempt(ctx, attempt); err != nil {
		return domain.Attempt{}, nil, err
	}

	// Best-effort staleness marker; a lost flag only delays the next rebuild
	// until the following invalidation.
	if err := s.snapshots.MarkStale(ctx, attempt.TestID); err != nil {
		log.Printf("mark leaderboard stale for test %s: %v", attempt.TestID, err)
	}

	if s.recorder != nil {
		go func(a domain.Attempt) {
			if err := s.recorder.RecordScored(context.Background(), a); err != nil {
				log.Printf("record scored attempt %s: %v", a.ID, err)
			}
		}(attempt.Clone())
	}
	go s.notifySubscribers(attempt.TestID)

	return attempt, anomalies, nil
}

// GetLeaderboard serves the cached snapshot, transparently rebuilding it
// first when stale or missing. If a rebuild fails but a previously built
// snapshot exists, the stale snapshot is served rather than an error; its
// LastUpdated and IsStale fields make the staleness visible to callers.
func (s *ExamService) GetLeaderboard(ctx context.Context, testID string) (domain.LeaderboardSnapshot, error) {
	cached, found, err := s.snapshots.GetSnapshot(ctx, testID)
	if err != nil {
		log.Printf("read leaderboard snapshot for test %s: %v", testID, err)
		found = false
	}
	if found && !cached.IsStale {
		return cached, nil
	}

	fresh, err := s.rebuild(ctx, testID)
	if err != nil {
		// A placeholder left by an invalidation has never been built;
		// serving it would hide the failure.
		if found && !cached.LastUpdated.IsZero() {
			return cached, nil
		}
		return domain.LeaderboardSnapshot{}, err
	}
	return fresh, nil
}

// InvalidateLeaderboard flags the test's snapshot so the next read rebuilds.
func (s *ExamService) InvalidateLeaderboard(ctx context.Context, testID string) error {
	return s.snapshots.MarkStale(ctx, testID)
}

func (s *ExamService) rebuild(ctx context.Context, testID string) (domain.LeaderboardSnapshot, error) {
	result, err, _ := s.rebuilds.Do(testID, func() (interface{}, error) {
		// Re-check in case another caller finished the rebuild first.
		if cached, found, err := s.snapshots.GetSnapshot(ctx, testID); err == nil && found && !cached.IsStale {
			return cached, nil
		}

		test, err := s.tests.GetTest(ctx, testID)
		if err != nil {
			return domain.LeaderboardSnapshot{}, err
		}
		attempts, err := s.attempts.ListFinishedByTest(ctx, testID)
		if err != nil {
			return domain.LeaderboardSnapshot{}, err
		}

		snapshot := s.builder.Build(test, attempts, s.clock())
		if err := s.snapshots.PutSnapshot(ctx, snapshot); err != nil {
			return domain.LeaderboardSnapshot{}, err
		}
		return snapshot, nil
	})
	if err != nil {
		return domain.LeaderboardSnapshot{}, err
	}
	return result.(domain.LeaderboardSnapshot), nil
}

// Subscribe returns a channel receiving fresh snapshots for a test whenever
// an attempt is scored. The caller must invoke the cancel function to avoid
// leaks.
func (s *ExamService) Subscribe(ctx context.Context, testID string) (<-chan domain.LeaderboardSnapshot, func(), error) {
	initial, err := s.GetLeaderboard(ctx, testID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.LeaderboardSnapshot, 8)
	s.mu.Lock()
	subs, ok := s.subscribers[testID]
	if !ok {
		subs = make(map[chan domain.LeaderboardSnapshot]struct{})
		s.subscribers[testID] = subs
	}
	subs[ch] = struct{}{}
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if subs, ok := s.subscribers[testID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(s.subscribers, testID)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *ExamService) notifySubscribers(testID string) {
	s.mu.Lock()
	n := len(s.subscribers[testID])
	s.mu.Unlock()
	if n == 0 {
		return
	}

	snapshot, err := s.GetLeaderboard(context.Background(), testID)
	if err != nil {
		log.Printf("rebuild leaderboard for subscribers of test %s: %v", testID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers[testID] {
		select {
		case ch <- snapshot:
		default:
			// Drop the oldest update so slow consumers never block delivery.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
