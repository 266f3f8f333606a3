// Package retrieval implements the pipeline stage between submission and
// summarization: per-category content fetch, fan-out to the summaries
// channel, and live-update notification.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quangdp/newsbrief-be/internal/bus"
	"github.com/quangdp/newsbrief-be/internal/jobs"
	"github.com/quangdp/newsbrief-be/internal/news"
	"github.com/quangdp/newsbrief-be/internal/telemetry"
)

// JobService is the slice of the lifecycle manager the worker needs.
type JobService interface {
	Get(ctx context.Context, jobID string) (jobs.Job, error)
	MarkStatus(ctx context.Context, jobID string, status jobs.Status) error
}

// Worker consumes submission messages and drives one job's retrieval.
// Inbound messages may be handled concurrently; all cross-category
// aggregation happens through message publication, so the worker keeps no
// per-job state between deliveries.
type Worker struct {
	jobs      JobService
	fetcher   news.Fetcher
	forwarder *Forwarder
	notifier  *Notifier
	logger    *slog.Logger
}

// NewWorker wires the retrieval stage.
func NewWorker(js JobService, fetcher news.Fetcher, forwarder *Forwarder, notifier *Notifier, logger *slog.Logger) *Worker {
	return &Worker{
		jobs:      js,
		fetcher:   fetcher,
		forwarder: forwarder,
		notifier:  notifier,
		logger:    logger,
	}
}

// Subscribe registers the worker on the submissions channel.
func (w *Worker) Subscribe(b bus.Bus, submissionChannel string) (bus.Subscription, error) {
	return b.Subscribe(submissionChannel, w.Handle)
}

// Handle processes one submission message. Malformed messages and unknown
// job ids are dropped to the dead-letter path; transient failures nack so
// the bus redelivers. Redelivery of an already-terminal job acknowledges
// without side effects.
func (w *Worker) Handle(ctx context.Context, msg bus.Message) bus.Result {
	var submission jobs.SubmissionMessage
	if err := json.Unmarshal(msg.Body, &submission); err != nil {
		return bus.Drop(fmt.Errorf("malformed submission message: %w", err))
	}

	if _, err := uuid.Parse(submission.JobID); err != nil {
		return bus.Drop(fmt.Errorf("invalid job id %q: %w", submission.JobID, err))
	}

	if len(submission.Categories) == 0 {
		return bus.Drop(fmt.Errorf("submission %s carries no categories", submission.JobID))
	}

	job, err := w.jobs.Get(ctx, submission.JobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return bus.Drop(fmt.Errorf("submission references unknown job %s", submission.JobID))
		}
		return bus.Nack(fmt.Errorf("load job %s: %w", submission.JobID, err))
	}

	if job.Status.Terminal() {
		w.logger.Info("Submission redelivered for terminal job, skipping",
			slog.String("job_id", job.ID),
			slog.String("status", string(job.Status)),
		)
		return bus.Ack()
	}

	// The processing transition must be durable before any category
	// completion becomes visible on the updates channel.
	if err := w.jobs.MarkStatus(ctx, job.ID, jobs.StatusProcessing); err != nil {
		return bus.Nack(fmt.Errorf("mark job %s processing: %w", job.ID, err))
	}
	w.notifier.NotifyStatus(ctx, job.ID, jobs.StatusProcessing)

	w.logger.Info("Processing retrieval job",
		slog.String("job_id", job.ID),
		slog.Int("categories", len(submission.Categories)),
	)

	for _, category := range dedupe(submission.Categories) {
		if err := w.processCategory(ctx, submission, category); err != nil {
			// Fail-fast: the first category failure fails the whole
			// job and aborts the remaining categories.
			return w.failJob(ctx, job.ID, category, err)
		}
	}

	if err := w.jobs.MarkStatus(ctx, job.ID, jobs.StatusCompleted); err != nil {
		return bus.Nack(fmt.Errorf("mark job %s completed: %w", job.ID, err))
	}
	w.notifier.NotifyStatus(ctx, job.ID, jobs.StatusCompleted)
	telemetry.JobsCompleted.Inc()

	w.logger.Info("Retrieval job completed", slog.String("job_id", job.ID))

	return bus.Ack()
}

func (w *Worker) processCategory(ctx context.Context, submission jobs.SubmissionMessage, category string) error {
	articles, err := w.fetcher.FetchTopHeadlines(ctx, category)
	if err != nil {
		telemetry.FetchFailures.Inc()
		return fmt.Errorf("fetch category %q: %w", category, err)
	}
	telemetry.CategoriesFetched.Inc()

	unit := ContentUnit{Category: category, Articles: articles}
	if err := w.forwarder.Forward(ctx, submission.JobID, submission.NotificationEndpoint, unit); err != nil {
		return fmt.Errorf("forward category %q: %w", category, err)
	}
	telemetry.ContentForwarded.Inc()

	w.notifier.NotifyCategory(ctx, submission.JobID, category, len(articles))

	return nil
}

func (w *Worker) failJob(ctx context.Context, jobID, category string, cause error) bus.Result {
	w.logger.Error("Category retrieval failed, failing job",
		slog.String("job_id", jobID),
		slog.String("category", category),
		slog.Any("error", cause),
	)

	if err := w.jobs.MarkStatus(ctx, jobID, jobs.StatusFailed); err != nil {
		w.logger.Error("Failed to mark job failed",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
	w.notifier.NotifyStatus(ctx, jobID, jobs.StatusFailed)
	telemetry.JobsFailed.Inc()

	return bus.Nack(cause)
}

// dedupe drops duplicate categories, keeping first-occurrence order, so a
// submission listing a category twice is still fetched and forwarded once.
func dedupe(categories []string) []string {
	seen := make(map[string]bool, len(categories))
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
