package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quangdp/newsbrief-be/internal/bus"
	"github.com/quangdp/newsbrief-be/internal/jobs"
)

// SubscribeUpdates bridges the updates channel into the broadcaster: every
// update message becomes a push to the matching event stream, if one is
// attached. Updates are best-effort, so the handler acknowledges even when
// no sink exists; only unparseable messages are dropped.
func SubscribeUpdates(b bus.Bus, channel string, broadcaster *Broadcaster, logger *slog.Logger) (bus.Subscription, error) {
	handler := func(ctx context.Context, msg bus.Message) bus.Result {
		var update jobs.UpdateMessage
		if err := json.Unmarshal(msg.Body, &update); err != nil {
			return bus.Drop(fmt.Errorf("malformed update message: %w", err))
		}

		if update.JobID == "" || update.Event == "" {
			return bus.Drop(fmt.Errorf("update message missing jobId or event"))
		}

		broadcaster.Push(update.JobID, update.Event, json.RawMessage(update.Data))

		logger.Debug("Live update bridged",
			slog.String("job_id", update.JobID),
			slog.String("event", update.Event),
		)

		return bus.Ack()
	}

	return b.Subscribe(channel, handler)
}
