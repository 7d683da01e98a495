package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"exam-score-service/internal/app"
	"exam-score-service/internal/config"
	"exam-score-service/internal/domain"
	"exam-score-service/internal/infra/memory"
	pgstore "exam-score-service/internal/infra/postgres"
	redisstore "exam-score-service/internal/infra/redis"
	transport "exam-score-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam scoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var testLoader memory.TestLoader = memory.NewStaticTestLoader(sampleTests())
	if pool != nil {
		testLoader = pgstore.NewTestLoader(pool)
	}

	testTTL := config.TTLDuration(cfg.Test.TTL, 10*time.Minute)
	var testRepo app.TestRepository
	if redisClient != nil {
		testRepo = redisstore.NewTestRepository(redisClient, testLoader, testTTL)
	} else {
		testRepo = memory.NewTestRepository(testLoader, testTTL)
	}

	var attemptRepo app.AttemptRepository
	if pool != nil {
		attemptRepo = pgstore.NewAttemptRepository(pool)
	} else {
		repo := memory.NewAttemptRepository()
		seedAttempts(ctx, repo)
		attemptRepo = repo
	}

	var snapshots app.SnapshotStore
	if redisClient != nil {
		snapshots = redisstore.NewSnapshotStore(redisClient)
	} else {
		snapshots = memory.NewSnapshotStore()
	}

	marking := app.DefaultMarking
	if cfg.Scoring.PositiveMarks != nil {
		marking.Positive = *cfg.Scoring.PositiveMarks
	}
	if cfg.Scoring.NegativeMarks != nil {
		marking.Negative = *cfg.Scoring.NegativeMarks
	}

	service := app.NewExamService(attemptRepo, testRepo, snapshots, memory.NewHistoryRecorder(), app.NewScoringEngine(marking))
	handler := transport.NewHandler(service)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting exam service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTests provides minimal data for running without Postgres.
func sampleTests() map[string]domain.Test {
	return map[string]domain.Test{
		"test-1": {
			ID:    "test-1",
			Title: "Physics and Chemistry mock",
			Questions: []domain.Question{
				{
					Subject:       "Physics",
					Type:          domain.QuestionMCQ,
					Prompt:        "Unit of force?",
					Options:       []string{"Joule", "Newton", "Pascal"},
					CorrectOption: 1,
				},
				{
					Subject:      "Physics",
					Type:         domain.QuestionNumerical,
					Prompt:       "g on Earth (m/s^2)?",
					CorrectValue: 9.8,
					Tolerance:    0.1,
				},
				{
					Subject:       "Chemistry",
					Type:          domain.QuestionMCQ,
					Prompt:        "Atomic number of carbon?",
					Options:       []string{"6", "12", "14"},
					CorrectOption: 0,
				},
			},
		},
	}
}

// seedAttempts creates a couple of in-progress attempts so the demo server
// has something to score.
func seedAttempts(ctx context.Context, repo *memory.AttemptRepository) {
	one := 1
	g := 9.81
	attempts := []domain.Attempt{
		{
			ID:        "attempt-1",
			StudentID: "student-1",
			TestID:    "test-1",
			Status:    domain.AttemptInProgress,
			Answers: map[int]*domain.Answer{
				0: {SelectedOption: &one},
				1: {NumericValue: &g},
			},
			TimeSpent: 420,
			CreatedAt: time.Now().Add(-10 * time.Minute),
		},
		{
			ID:        "attempt-2",
			StudentID: "student-2",
			TestID:    "test-1",
			Status:    domain.AttemptInProgress,
			Answers: map[int]*domain.Answer{
				0: {SelectedOption: &one},
			},
			TimeSpent: 250,
			CreatedAt: time.Now().Add(-5 * time.Minute),
		},
	}
	for _, attempt := range attempts {
		if err := repo.SaveAttempt(ctx, attempt); err != nil {
			log.Printf("seed attempt %s: %v", attempt.ID, err)
		}
	}
}
