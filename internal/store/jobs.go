// Package store is the durable job store. It is the source of truth for job
// state; every other signal in the system (bus messages, live-update pushes)
// is derived from or reconciled against it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quangdp/newsbrief-be/internal/jobs"
	"github.com/quangdp/newsbrief-be/shared/postgresql"
)

// JobStore persists jobs in PostgreSQL.
type JobStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewJobStore creates a JobStore on top of an established client.
func NewJobStore(pg *postgresql.Client, logger *slog.Logger) *JobStore {
	return &JobStore{
		db:     pg.GetDB(),
		logger: logger,
	}
}

type jobRow struct {
	JobID                string         `db:"job_id"`
	Categories           pq.StringArray `db:"categories"`
	Status               string         `db:"status"`
	NotificationEndpoint string         `db:"notification_endpoint"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func (r jobRow) toJob() jobs.Job {
	return jobs.Job{
		ID:                   r.JobID,
		Categories:           []string(r.Categories),
		Status:               jobs.Status(r.Status),
		NotificationEndpoint: r.NotificationEndpoint,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

// CreateJob inserts a new job record.
func (s *JobStore) CreateJob(ctx context.Context, job jobs.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, categories, status, notification_endpoint, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		pq.StringArray(job.Categories),
		string(job.Status),
		job.NotificationEndpoint,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob point-reads a job by id. Returns jobs.ErrNotFound for unknown ids.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (jobs.Job, error) {
	query := `
		SELECT job_id, categories, status, notification_endpoint, created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`

	var row jobRow
	err := s.db.GetContext(ctx, &row, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Job{}, jobs.ErrNotFound
		}
		return jobs.Job{}, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toJob(), nil
}

// UpdateStatus moves a job to newStatus if the monotonic ordering permits
// it, refreshing updated_at. The guard lives in the WHERE clause so
// concurrent writers (and at-least-once redeliveries) stay correct: a
// transition the ordering forbids affects zero rows and is treated as a
// logged no-op, never an error. Unknown ids return jobs.ErrNotFound.
func (s *JobStore) UpdateStatus(ctx context.Context, jobID string, newStatus jobs.Status) error {
	if !newStatus.Valid() {
		return jobs.ErrInvalidStatus
	}

	var query string
	switch newStatus {
	case jobs.StatusPending:
		// pending is only ever set at creation
		query = `UPDATE jobs SET updated_at = NOW() WHERE job_id = $1 AND status = 'pending'`
	case jobs.StatusProcessing:
		query = `UPDATE jobs SET status = 'processing', updated_at = NOW()
			WHERE job_id = $1 AND status IN ('pending', 'processing')`
	case jobs.StatusCompleted:
		query = `UPDATE jobs SET status = 'completed', updated_at = NOW()
			WHERE job_id = $1 AND status IN ('pending', 'processing')`
	case jobs.StatusFailed:
		query = `UPDATE jobs SET status = 'failed', updated_at = NOW()
			WHERE job_id = $1 AND status NOT IN ('completed', 'failed')`
	}

	result, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		s.logger.Info("Job status transition skipped",
			slog.String("job_id", jobID),
			slog.String("target_status", string(newStatus)),
		)
		return nil
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(newStatus)),
	)

	return nil
}
