package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryBus is an in-process Bus used in tests and local development. It
// delivers synchronously on the publisher's goroutine and simulates
// at-least-once semantics: a Nack result triggers immediate redelivery up
// to MaxRedeliveries, after which the message lands on the dead-letter list
// alongside dropped messages.
type MemoryBus struct {
	mu sync.Mutex

	handlers   map[string][]*memorySubscription
	published  map[string][]Message
	deadLetter map[string][]Message

	// MaxRedeliveries bounds redelivery attempts after a Nack. Zero means
	// a nacked message is dead-lettered without redelivery.
	MaxRedeliveries int
}

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers:        make(map[string][]*memorySubscription),
		published:       make(map[string][]Message),
		deadLetter:      make(map[string][]Message),
		MaxRedeliveries: 1,
	}
}

// Publish records the message and delivers it to every live subscriber of
// the channel.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload any, attributes map[string]string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &PublishError{Channel: channel, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	msg := Message{
		ID:         uuid.New().String(),
		Body:       body,
		Attributes: attributes,
	}

	b.mu.Lock()
	b.published[channel] = append(b.published[channel], msg)
	subs := make([]*memorySubscription, len(b.handlers[channel]))
	copy(subs, b.handlers[channel])
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(ctx, channel, sub, msg)
	}

	return msg.ID, nil
}

func (b *MemoryBus) deliver(ctx context.Context, channel string, sub *memorySubscription, msg Message) {
	for attempt := 0; ; attempt++ {
		if sub.done() {
			return
		}

		result := sub.handler(ctx, msg)
		switch result.Outcome {
		case OutcomeAck:
			return
		case OutcomeDrop:
			b.mu.Lock()
			b.deadLetter[channel] = append(b.deadLetter[channel], msg)
			b.mu.Unlock()
			return
		case OutcomeNack:
			if attempt >= b.MaxRedeliveries {
				b.mu.Lock()
				b.deadLetter[channel] = append(b.deadLetter[channel], msg)
				b.mu.Unlock()
				return
			}
		}
	}
}

// Subscribe registers handler for the channel.
func (b *MemoryBus) Subscribe(channel string, handler Handler) (Subscription, error) {
	sub := &memorySubscription{handler: handler}

	b.mu.Lock()
	b.handlers[channel] = append(b.handlers[channel], sub)
	b.mu.Unlock()

	return sub, nil
}

// Published returns all messages published on the channel, in order.
func (b *MemoryBus) Published(channel string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, len(b.published[channel]))
	copy(out, b.published[channel])
	return out
}

// DeadLettered returns messages dropped or exhausted on the channel.
func (b *MemoryBus) DeadLettered(channel string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, len(b.deadLetter[channel]))
	copy(out, b.deadLetter[channel])
	return out
}

type memorySubscription struct {
	handler Handler

	mu       sync.Mutex
	isClosed bool
}

func (s *memorySubscription) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isClosed = true
	return nil
}
