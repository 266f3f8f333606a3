package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quangdp/newsbrief-be/internal/bus"
)

// Store is the persistence contract the lifecycle manager needs.
type Store interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateStatus(ctx context.Context, jobID string, status Status) error
}

// Service owns the job lifecycle: creation, lookup, and status transitions.
// Publishing strictly follows a successful persist, so every job id seen on
// the bus corresponds to a stored job.
type Service struct {
	store          Store
	bus            bus.Bus
	submissionChan string
	logger         *slog.Logger
}

// NewService creates the lifecycle manager.
func NewService(store Store, b bus.Bus, submissionChannel string, logger *slog.Logger) *Service {
	return &Service{
		store:          store,
		bus:            b,
		submissionChan: submissionChannel,
		logger:         logger,
	}
}

// Submit validates the category set, persists a pending job, and publishes
// the submission message. If the publish fails the job stays pending in the
// store; an external reconciliation sweep is expected to re-publish it.
func (s *Service) Submit(ctx context.Context, categories []string) (Job, error) {
	if len(categories) == 0 {
		return Job{}, ErrNoCategories
	}

	now := time.Now().UTC()
	job := Job{
		ID:         uuid.New().String(),
		Categories: categories,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	job.NotificationEndpoint = fmt.Sprintf("/api/v1/jobs/%s/events", job.ID)

	if err := s.store.CreateJob(ctx, job); err != nil {
		return Job{}, fmt.Errorf("failed to persist job: %w", err)
	}

	msg := SubmissionMessage{
		JobID:                job.ID,
		Categories:           job.Categories,
		NotificationEndpoint: job.NotificationEndpoint,
	}

	messageID, err := s.bus.Publish(ctx, s.submissionChan, msg, map[string]string{"jobId": job.ID})
	if err != nil {
		// The job is already stored as pending; surface the publish
		// failure so the caller knows the pipeline was not triggered.
		s.logger.Error("Job persisted but submission publish failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return Job{}, err
	}

	s.logger.Info("Job submitted",
		slog.String("job_id", job.ID),
		slog.Int("categories", len(job.Categories)),
		slog.String("message_id", messageID),
	)

	return job, nil
}

// Get returns the stored job snapshot. Never mutates state.
func (s *Service) Get(ctx context.Context, jobID string) (Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// MarkStatus records a pipeline phase transition. Transitions that the
// monotonic ordering forbids are no-ops inside the store.
func (s *Service) MarkStatus(ctx context.Context, jobID string, status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return s.store.UpdateStatus(ctx, jobID, status)
}
