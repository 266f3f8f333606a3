// Package bus defines the publish/subscribe primitive shared by every
// pipeline stage. Delivery is at-least-once: a handler decides the fate of
// each message by returning an explicit result, and the adapter translates
// that result into the transport's acknowledgment mechanism.
package bus

import (
	"context"
	"fmt"
)

// Message is one delivered bus message. Attributes carry string metadata
// (at minimum the originating job id) usable for routing and logging
// without deserializing the body.
type Message struct {
	ID         string
	Body       []byte
	Attributes map[string]string
}

// Outcome classifies what a handler wants done with a delivery.
type Outcome int

const (
	// OutcomeAck marks the message processed; it will not be redelivered.
	OutcomeAck Outcome = iota
	// OutcomeNack makes the message eligible for redelivery.
	OutcomeNack
	// OutcomeDrop rejects the message without requeue; the transport's
	// dead-letter policy takes over. Used for malformed/poison messages.
	OutcomeDrop
)

// Result is a handler's verdict on one delivery.
type Result struct {
	Outcome Outcome
	Reason  error
}

// Ack acknowledges the message.
func Ack() Result { return Result{Outcome: OutcomeAck} }

// Nack negative-acknowledges the message so it is eventually redelivered.
func Nack(reason error) Result { return Result{Outcome: OutcomeNack, Reason: reason} }

// Drop rejects the message without requeue.
func Drop(reason error) Result { return Result{Outcome: OutcomeDrop, Reason: reason} }

// Handler processes one delivered message. Deliveries on the same channel
// may be dispatched concurrently; handlers must synchronize any shared
// state themselves.
type Handler func(ctx context.Context, msg Message) Result

// Subscription is a live consumer registration. Close stops delivery and
// releases transport resources; it is safe to call more than once.
type Subscription interface {
	Close() error
}

// Bus is the adapter contract. Publish serializes payload as JSON and sends
// it on the named channel; a publish error means "not delivered", never a
// partial state.
type Bus interface {
	Publish(ctx context.Context, channel string, payload any, attributes map[string]string) (string, error)
	Subscribe(channel string, handler Handler) (Subscription, error)
}

// PublishError wraps a transport failure during publish so callers can
// distinguish it from persistence errors.
type PublishError struct {
	Channel string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %q failed: %v", e.Channel, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
