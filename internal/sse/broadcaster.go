// Package sse holds the live-update broadcaster: a registry of open client
// event streams keyed by job id. It is best-effort signaling layered on top
// of the durable pipeline; the job store remains the source of truth.
package sse

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event is one framed event pushed to a client stream.
type Event struct {
	Type string
	Data []byte
}

const (
	// EventHeartbeat is the keep-alive frame pushed while a sink is
	// attached so intermediary proxies do not time out the connection.
	EventHeartbeat = "heartbeat"

	defaultHeartbeat = 30 * time.Second
	defaultBuffer    = 16
)

type sink struct {
	ch   chan Event
	done chan struct{}
}

// Broadcaster maintains at most one sink per job id and pushes events to
// the matching sink as pipeline events occur. All mutation goes through
// Attach/Push/Detach; the registry is guarded by a mutex.
type Broadcaster struct {
	logger    *slog.Logger
	heartbeat time.Duration
	buffer    int

	mu    sync.Mutex
	sinks map[string]*sink
}

// Option configures the Broadcaster.
type Option func(*Broadcaster)

// WithHeartbeatInterval overrides the keep-alive interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// WithBufferSize overrides the per-sink event buffer.
func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		logger:    logger,
		heartbeat: defaultHeartbeat,
		buffer:    defaultBuffer,
		sinks:     make(map[string]*sink),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach registers a sink for the job id and returns the channel the caller
// drains into its client connection. A second attach for the same id
// replaces the first; the prior channel stops receiving but is not closed,
// so its reader detects replacement through its own connection lifecycle.
func (b *Broadcaster) Attach(jobID string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.sinks[jobID]; ok {
		close(prev.done)
	}

	s := &sink{
		ch:   make(chan Event, b.buffer),
		done: make(chan struct{}),
	}
	b.sinks[jobID] = s

	go b.heartbeatLoop(jobID, s)

	b.logger.Debug("Event stream attached", slog.String("job_id", jobID))

	return s.ch
}

// Push writes one framed event to the sink registered for jobID, if any.
// With no sink registered the event is silently dropped; there is no
// buffering or replay. Push never blocks: a full sink also drops the event.
func (b *Broadcaster) Push(jobID, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		b.logger.Error("Failed to marshal event payload",
			slog.String("job_id", jobID),
			slog.String("event", eventType),
			slog.Any("error", err),
		)
		return
	}

	b.mu.Lock()
	s, ok := b.sinks[jobID]
	b.mu.Unlock()
	if !ok {
		return
	}

	select {
	case s.ch <- Event{Type: eventType, Data: payload}:
	default:
		b.logger.Warn("Event stream buffer full, dropping event",
			slog.String("job_id", jobID),
			slog.String("event", eventType),
		)
	}
}

// Detach removes the registration for jobID and stops its heartbeat.
// Invoked when the underlying connection closes; safe when nothing is
// attached.
func (b *Broadcaster) Detach(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sinks[jobID]
	if !ok {
		return
	}

	close(s.done)
	delete(b.sinks, jobID)

	b.logger.Debug("Event stream detached", slog.String("job_id", jobID))
}

// Close detaches every sink. Further attaches are still possible; Close is
// a shutdown convenience, not a terminal state for the registry.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for jobID, s := range b.sinks {
		close(s.done)
		delete(b.sinks, jobID)
	}
}

func (b *Broadcaster) heartbeatLoop(jobID string, s *sink) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case <-ticker.C:
			payload, _ := json.Marshal(map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			select {
			case s.ch <- Event{Type: EventHeartbeat, Data: payload}:
			default:
			}
		}
	}
}
