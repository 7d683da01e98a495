package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"exam-score-service/internal/domain"
)

// AttemptRepository stores attempts as JSONB documents with a few extracted
// columns for filtering. ListFinishedByTest orders by (created_at, id) so the
// leaderboard builder sees a deterministic load order.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM attempts WHERE id=$1`, attemptID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return unmarshalAttempt(raw)
}

func (r *AttemptRepository) SaveAttempt(ctx context.Context, attempt domain.Attempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO attempts (id, test_id, student_id, status, created_at, data)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, data=EXCLUDED.data`,
		attempt.ID, attempt.TestID, attempt.StudentID, string(attempt.Status), attempt.CreatedAt, raw)
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) ListFinishedByTest(ctx context.Context, testID string) ([]domain.Attempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT data FROM attempts
		WHERE test_id=$1 AND status IN ($2, $3)
		ORDER BY created_at, id`,
		testID, string(domain.AttemptCompleted), string(domain.AttemptAutoSubmitted))
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempt, err := unmarshalAttempt(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func unmarshalAttempt(raw []byte) (domain.Attempt, error) {
	var attempt domain.Attempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return attempt, nil
}
