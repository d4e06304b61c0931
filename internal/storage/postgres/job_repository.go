package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

// JobRepository is the durable queue behind the background processor.
// DequeueNext claims with FOR UPDATE SKIP LOCKED, so concurrent workers
// never receive the same job.
type JobRepository struct {
	querier
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{querier{pool: pool}}
}

func (r *JobRepository) Enqueue(ctx context.Context, job domain.Job) error {
	const stmt = `
INSERT INTO jobs (id, job_type, payload, status, priority, attempts, max_attempts, run_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.exec(ctx, stmt,
		job.ID,
		job.Type,
		job.Payload,
		job.Status,
		job.Priority,
		job.Attempts,
		job.MaxAttempts,
		job.RunAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (r *JobRepository) DequeueNext(ctx context.Context, now time.Time) (*domain.Job, error) {
	const stmt = `
WITH next AS (
	SELECT id FROM jobs
	WHERE status = 'queued' AND run_at <= $1
	ORDER BY priority DESC, run_at, created_at
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
UPDATE jobs SET status = 'running', updated_at = $1
FROM next
WHERE jobs.id = next.id
RETURNING jobs.id, jobs.job_type, jobs.payload, jobs.status, jobs.priority, jobs.attempts, jobs.max_attempts, jobs.run_at, COALESCE(jobs.last_error, ''), jobs.created_at, jobs.updated_at`

	var job domain.Job
	err := r.queryRow(ctx, stmt, now).Scan(
		&job.ID,
		&job.Type,
		&job.Payload,
		&job.Status,
		&job.Priority,
		&job.Attempts,
		&job.MaxAttempts,
		&job.RunAt,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, jobID string) error {
	const stmt = `UPDATE jobs SET status = 'completed', updated_at = NOW() WHERE id = $1`

	tag, err := r.exec(ctx, stmt, jobID)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark job completed: job %s not found", jobID)
	}
	return nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, jobID string, lastError string, retryAt time.Time, permanent bool) error {
	if permanent {
		const stmt = `
UPDATE jobs SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
WHERE id = $1`
		if _, err := r.exec(ctx, stmt, jobID, lastError); err != nil {
			return fmt.Errorf("mark job failed: %w", err)
		}
		return nil
	}

	const stmt = `
UPDATE jobs SET status = 'queued', attempts = attempts + 1, last_error = $2, run_at = $3, updated_at = NOW()
WHERE id = $1`
	if _, err := r.exec(ctx, stmt, jobID, lastError, retryAt); err != nil {
		return fmt.Errorf("mark job for retry: %w", err)
	}
	return nil
}
