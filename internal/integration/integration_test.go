package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"exam-score-service/internal/app"
	"exam-score-service/internal/domain"
	pgstore "exam-score-service/internal/infra/postgres"
	pgmigrations "exam-score-service/internal/infra/postgres/migrations"
	redisstore "exam-score-service/internal/infra/redis"
)

func TestScoreAndLeaderboardEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedTest(t, ctx, pgURL, sampleTest())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	attempts := pgstore.NewAttemptRepository(pool)
	tests := redisstore.NewTestRepository(redisClient, pgstore.NewTestLoader(pool), 5*time.Minute)
	snapshots := redisstore.NewSnapshotStore(redisClient)
	service := app.NewExamService(attempts, tests, snapshots, nil, app.NewScoringEngine(app.DefaultMarking))

	one := 1
	zero := 0
	base := time.Now().UTC().Truncate(time.Second)
	for _, attempt := range []domain.Attempt{
		{
			// q0 correct, q1 incorrect: 4 - 1 = 3
			ID: "att-1", StudentID: "stu-1", TestID: "test-1", Status: domain.AttemptInProgress,
			Answers:   map[int]*domain.Answer{0: {SelectedOption: &one}, 1: {SelectedOption: &one}},
			TimeSpent: 120, CreatedAt: base,
		},
		{
			// both correct: 8
			ID: "att-2", StudentID: "stu-2", TestID: "test-1", Status: domain.AttemptInProgress,
			Answers:   map[int]*domain.Answer{0: {SelectedOption: &one}, 1: {SelectedOption: &zero}},
			TimeSpent: 200, CreatedAt: base.Add(time.Minute),
		},
	} {
		if err := attempts.SaveAttempt(ctx, attempt); err != nil {
			t.Fatalf("seed attempt %s: %v", attempt.ID, err)
		}
	}

	if _, _, err := service.ScoreAttempt(ctx, "att-1", domain.SubmitManual); err != nil {
		t.Fatalf("score att-1: %v", err)
	}
	scored, _, err := service.ScoreAttempt(ctx, "att-2", domain.SubmitTimeExpired)
	if err != nil {
		t.Fatalf("score att-2: %v", err)
	}
	if scored.Status != domain.AttemptAutoSubmitted || scored.Score.Obtained != 8 {
		t.Fatalf("unexpected scored attempt: %+v", scored)
	}

	snapshot, err := service.GetLeaderboard(ctx, "test-1")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	if snapshot.IsStale || len(snapshot.Entries) != 2 {
		t.Fatalf("expected fresh 2-entry snapshot, got %+v", snapshot)
	}
	if snapshot.Entries[0].StudentID != "stu-2" || snapshot.Entries[0].Rank != 1 {
		t.Fatalf("expected stu-2 leading, got %+v", snapshot.Entries)
	}
	if snapshot.Entries[0].Percentile != 100 || snapshot.Entries[1].Percentile != 50 {
		t.Fatalf("unexpected percentiles: %+v", snapshot.Entries)
	}
	if snapshot.TopScore != 8 || snapshot.TotalStudents != 2 {
		t.Fatalf("unexpected stats: %+v", snapshot)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://exam:exampass@%s:%s/examdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedTest(t *testing.T, ctx context.Context, dsn string, test domain.Test) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(test)
	if err != nil {
		t.Fatalf("marshal test: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO tests (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, test.ID, string(data)); err != nil {
		t.Fatalf("insert test: %v", err)
	}
}

func sampleTest() domain.Test {
	return domain.Test{
		ID:    "test-1",
		Title: "Mock exam",
		Questions: []domain.Question{
			{Subject: "Physics", Type: domain.QuestionMCQ, CorrectOption: 1, Options: []string{"3", "4", "5"}},
			{Subject: "Chemistry", Type: domain.QuestionMCQ, CorrectOption: 0, Options: []string{"6", "12"}},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
