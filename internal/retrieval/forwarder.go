package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quangdp/newsbrief-be/internal/bus"
	"github.com/quangdp/newsbrief-be/internal/news"
)

// ContentUnit is the retrieval result for one category. An empty article
// list is a valid unit.
type ContentUnit struct {
	Category string         `json:"category"`
	Articles []news.Article `json:"articles"`
}

// ForwardMessage is the payload published on the summaries channel for the
// downstream summarizer. The content unit travels as a serialized JSON
// string so the consumer can route on correlation metadata without decoding
// it.
type ForwardMessage struct {
	JobID                string `json:"jobId"`
	NotificationEndpoint string `json:"notificationEndpoint"`
	Content              string `json:"content"`
}

// Forwarder packages one content unit with job correlation metadata and
// publishes it downstream. Pure transformation; it owns no state.
type Forwarder struct {
	bus         bus.Bus
	summaryChan string
	logger      *slog.Logger
}

// NewForwarder creates a forwarder publishing on the given channel.
func NewForwarder(b bus.Bus, summaryChannel string, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		bus:         b,
		summaryChan: summaryChannel,
		logger:      logger,
	}
}

// Forward publishes one content unit. Publish errors propagate to the
// caller, which treats them like a category fetch failure.
func (f *Forwarder) Forward(ctx context.Context, jobID, notificationEndpoint string, unit ContentUnit) error {
	content, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("marshal content unit: %w", err)
	}

	msg := ForwardMessage{
		JobID:                jobID,
		NotificationEndpoint: notificationEndpoint,
		Content:              string(content),
	}

	messageID, err := f.bus.Publish(ctx, f.summaryChan, msg, map[string]string{"jobId": jobID})
	if err != nil {
		return err
	}

	f.logger.Info("Content forwarded to summaries channel",
		slog.String("job_id", jobID),
		slog.String("category", unit.Category),
		slog.Int("articles", len(unit.Articles)),
		slog.String("message_id", messageID),
	)

	return nil
}
