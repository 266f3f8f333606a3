package handler

import (
	"context"
	"log/slog"

	"github.com/quangdp/newsbrief-be/internal/jobs"
	"github.com/quangdp/newsbrief-be/internal/sse"
)

// JobService is the lifecycle surface the HTTP layer depends on.
type JobService interface {
	Submit(ctx context.Context, categories []string) (jobs.Job, error)
	Get(ctx context.Context, jobID string) (jobs.Job, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Jobs        JobService
	Broadcaster *sse.Broadcaster
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger      *slog.Logger
	jobs        JobService
	broadcaster *sse.Broadcaster
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:      deps.Logger,
		jobs:        deps.Jobs,
		broadcaster: deps.Broadcaster,
	}
}
