package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"exam-score-service/internal/domain"
	"exam-score-service/internal/infra/memory"
)

func TestTestRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		TestLoader: memory.NewStaticTestLoader(map[string]domain.Test{
			"test-1": sampleTest(),
		}),
	}
	repo := NewTestRepository(client, loader, time.Minute)

	test, err := repo.GetTest(context.Background(), "test-1")
	if err != nil {
		t.Fatalf("get test: %v", err)
	}
	if len(test.Questions) != 2 {
		t.Fatalf("unexpected test content: %+v", test)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("exam:test:test-1") {
		t.Fatalf("expected cached test key in redis")
	}

	// Second call should hit cache, loader not incremented.
	_, _ = repo.GetTest(context.Background(), "test-1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	memory.TestLoader
	calls int
}

func (l *countingLoader) LoadTest(ctx context.Context, testID string) (domain.Test, error) {
	l.calls++
	return l.TestLoader.LoadTest(ctx, testID)
}

func sampleTest() domain.Test {
	return domain.Test{
		ID: "test-1",
		Questions: []domain.Question{
			{Subject: "Physics", Type: domain.QuestionMCQ, CorrectOption: 1, Options: []string{"3", "4"}},
			{Subject: "Maths", Type: domain.QuestionNumerical, CorrectValue: 2.72, Tolerance: 0.01},
		},
	}
}
