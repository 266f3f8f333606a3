package retrieval

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/quangdp/newsbrief-be/internal/bus"
	"github.com/quangdp/newsbrief-be/internal/jobs"
)

// Notifier publishes live-update events on the updates channel. The API
// service bridges them into client event streams. Notifications are
// fire-and-forget: a publish failure is logged and never fails the
// pipeline, since the job store carries the durable state.
type Notifier struct {
	bus         bus.Bus
	updatesChan string
	logger      *slog.Logger
}

// NewNotifier creates a notifier publishing on the given channel.
func NewNotifier(b bus.Bus, updatesChannel string, logger *slog.Logger) *Notifier {
	return &Notifier{
		bus:         b,
		updatesChan: updatesChannel,
		logger:      logger,
	}
}

// NotifyStatus announces a job status transition.
func (n *Notifier) NotifyStatus(ctx context.Context, jobID string, status jobs.Status) {
	n.publish(ctx, jobID, jobs.EventStatus, map[string]any{
		"jobId":     jobID,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// NotifyCategory announces the completion of one category's retrieval.
func (n *Notifier) NotifyCategory(ctx context.Context, jobID, category string, articleCount int) {
	n.publish(ctx, jobID, jobs.EventUpdate, map[string]any{
		"jobId":     jobID,
		"category":  category,
		"articles":  articleCount,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (n *Notifier) publish(ctx context.Context, jobID, event string, data map[string]any) {
	raw, err := json.Marshal(data)
	if err != nil {
		n.logger.Error("Failed to marshal update payload",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}

	msg := jobs.UpdateMessage{
		JobID: jobID,
		Event: event,
		Data:  raw,
	}

	if _, err := n.bus.Publish(ctx, n.updatesChan, msg, map[string]string{"jobId": jobID}); err != nil {
		n.logger.Warn("Failed to publish live update",
			slog.String("job_id", jobID),
			slog.String("event", event),
			slog.Any("error", err),
		)
	}
}
