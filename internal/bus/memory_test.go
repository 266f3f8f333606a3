package bus_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdp/newsbrief-be/internal/bus"
)

func TestMemoryBus_AckDelivery(t *testing.T) {
	b := bus.NewMemoryBus()

	var got []bus.Message
	_, err := b.Subscribe("updates", func(_ context.Context, msg bus.Message) bus.Result {
		got = append(got, msg)
		return bus.Ack()
	})
	require.NoError(t, err)

	id, err := b.Publish(context.Background(), "updates", map[string]string{"k": "v"}, map[string]string{"jobId": "abc"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "abc", got[0].Attributes["jobId"])
	assert.JSONEq(t, `{"k":"v"}`, string(got[0].Body))

	assert.Len(t, b.Published("updates"), 1)
	assert.Empty(t, b.DeadLettered("updates"))
}

func TestMemoryBus_NackRedeliversUpToBound(t *testing.T) {
	b := bus.NewMemoryBus()
	b.MaxRedeliveries = 2

	deliveries := 0
	_, err := b.Subscribe("work", func(_ context.Context, _ bus.Message) bus.Result {
		deliveries++
		return bus.Nack(errors.New("transient"))
	})
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "work", "payload", nil)
	require.NoError(t, err)

	// Initial delivery plus two redeliveries, then dead-lettered.
	assert.Equal(t, 3, deliveries)
	assert.Len(t, b.DeadLettered("work"), 1)
}

func TestMemoryBus_NackThenAck(t *testing.T) {
	b := bus.NewMemoryBus()

	deliveries := 0
	_, err := b.Subscribe("work", func(_ context.Context, _ bus.Message) bus.Result {
		deliveries++
		if deliveries == 1 {
			return bus.Nack(errors.New("not yet"))
		}
		return bus.Ack()
	})
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "work", "payload", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, deliveries)
	assert.Empty(t, b.DeadLettered("work"))
}

func TestMemoryBus_DropDeadLettersImmediately(t *testing.T) {
	b := bus.NewMemoryBus()

	deliveries := 0
	_, err := b.Subscribe("work", func(_ context.Context, _ bus.Message) bus.Result {
		deliveries++
		return bus.Drop(errors.New("malformed"))
	})
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "work", "payload", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, deliveries)
	assert.Len(t, b.DeadLettered("work"), 1)
}

func TestMemoryBus_ClosedSubscriptionStopsDelivery(t *testing.T) {
	b := bus.NewMemoryBus()

	deliveries := 0
	sub, err := b.Subscribe("work", func(_ context.Context, _ bus.Message) bus.Result {
		deliveries++
		return bus.Ack()
	})
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	_, err = b.Publish(context.Background(), "work", "payload", nil)
	require.NoError(t, err)

	assert.Zero(t, deliveries)
	// Publish still records the message even with no live consumer.
	assert.Len(t, b.Published("work"), 1)
}

func TestMemoryBus_PublishUnmarshalablePayload(t *testing.T) {
	b := bus.NewMemoryBus()

	_, err := b.Publish(context.Background(), "work", make(chan int), nil)
	require.Error(t, err)

	var publishErr *bus.PublishError
	assert.ErrorAs(t, err, &publishErr)
	assert.Equal(t, "work", publishErr.Channel)
}
