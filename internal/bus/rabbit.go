package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quangdp/newsbrief-be/shared/rabbitmq"
)

// RabbitBus adapts the shared RabbitMQ client to the Bus contract. Each
// subscription runs its own pool of consumer goroutines; a handler's Result
// is translated into the AMQP ack/nack the broker's redelivery policy
// understands.
type RabbitBus struct {
	client      *rabbitmq.Client
	logger      *slog.Logger
	concurrency int
	prefetch    int
}

// RabbitOptions tunes consumer behavior for subscriptions.
type RabbitOptions struct {
	// Concurrency is the number of goroutines dispatching deliveries per
	// subscription. Defaults to 1.
	Concurrency int
	// Prefetch is the per-consumer QoS prefetch count. Defaults to
	// Concurrency.
	Prefetch int
}

// NewRabbitBus wraps an already-connected RabbitMQ client.
func NewRabbitBus(client *rabbitmq.Client, logger *slog.Logger, opts RabbitOptions) *RabbitBus {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := opts.Prefetch
	if prefetch <= 0 {
		prefetch = concurrency
	}
	return &RabbitBus{
		client:      client,
		logger:      logger,
		concurrency: concurrency,
		prefetch:    prefetch,
	}
}

// Publish serializes payload as JSON and sends it on the named channel.
func (b *RabbitBus) Publish(ctx context.Context, channel string, payload any, attributes map[string]string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &PublishError{Channel: channel, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	messageID := uuid.New().String()
	if err := b.client.Publish(ctx, channel, messageID, body, attributes); err != nil {
		return "", &PublishError{Channel: channel, Err: err}
	}

	return messageID, nil
}

// Subscribe registers handler on the named channel and starts consuming.
func (b *RabbitBus) Subscribe(channel string, handler Handler) (Subscription, error) {
	consumerTag := fmt.Sprintf("%s-%s", channel, uuid.New().String()[:8])

	deliveries, err := b.client.Consume(channel, consumerTag, b.prefetch)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %q: %w", channel, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &rabbitSubscription{
		bus:         b,
		channel:     channel,
		consumerTag: consumerTag,
		cancel:      cancel,
	}

	for i := 0; i < b.concurrency; i++ {
		sub.wg.Add(1)
		go sub.consumeLoop(ctx, deliveries, handler)
	}

	b.logger.Info("Bus subscription started",
		slog.String("channel", channel),
		slog.String("consumer_tag", consumerTag),
		slog.Int("concurrency", b.concurrency),
	)

	return sub, nil
}

type rabbitSubscription struct {
	bus         *RabbitBus
	channel     string
	consumerTag string
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
	closeErr    error
}

func (s *rabbitSubscription) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, handler Handler) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				s.bus.logger.Warn("RabbitMQ delivery channel closed",
					slog.String("channel", s.channel),
				)
				return
			}
			s.dispatch(ctx, delivery, handler)
		}
	}
}

func (s *rabbitSubscription) dispatch(ctx context.Context, delivery amqp.Delivery, handler Handler) {
	attrs := make(map[string]string, len(delivery.Headers))
	for k, v := range delivery.Headers {
		if str, ok := v.(string); ok {
			attrs[k] = str
		}
	}

	msg := Message{
		ID:         delivery.MessageId,
		Body:       delivery.Body,
		Attributes: attrs,
	}

	result := handler(ctx, msg)

	switch result.Outcome {
	case OutcomeAck:
		if err := delivery.Ack(false); err != nil {
			s.bus.logger.Error("Failed to ACK message",
				slog.String("channel", s.channel),
				slog.String("message_id", msg.ID),
				slog.Any("error", err),
			)
		}

	case OutcomeNack:
		s.bus.logger.Warn("Message NACKed, eligible for redelivery",
			slog.String("channel", s.channel),
			slog.String("message_id", msg.ID),
			slog.Any("reason", result.Reason),
		)
		if err := delivery.Nack(false, true); err != nil {
			s.bus.logger.Error("Failed to NACK message",
				slog.String("channel", s.channel),
				slog.String("message_id", msg.ID),
				slog.Any("error", err),
			)
		}

	case OutcomeDrop:
		s.bus.logger.Error("Message dropped without requeue",
			slog.String("channel", s.channel),
			slog.String("message_id", msg.ID),
			slog.Any("reason", result.Reason),
		)
		if err := delivery.Nack(false, false); err != nil {
			s.bus.logger.Error("Failed to drop message",
				slog.String("channel", s.channel),
				slog.String("message_id", msg.ID),
				slog.Any("error", err),
			)
		}
	}
}

// Close stops delivery and waits for in-flight handlers. Safe to call more
// than once.
func (s *rabbitSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.bus.client.Cancel(s.consumerTag)
		s.cancel()
		s.wg.Wait()
		s.bus.logger.Info("Bus subscription closed",
			slog.String("channel", s.channel),
			slog.String("consumer_tag", s.consumerTag),
		)
	})
	return s.closeErr
}
