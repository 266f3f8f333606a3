package jobs

import "time"

// Status is the lifecycle state of a job. Transitions are monotonic in the
// order pending < processing < completed, with failed reachable from any
// non-terminal state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// rank positions a status in the monotonic ordering. Terminal states share
// the highest rank so no transition out of them is ever allowed.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the four lifecycle values.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a job may move from s to next. A transition
// to the current status is permitted (idempotent no-op for redeliveries).
func (s Status) CanTransition(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.rank() >= s.rank()
}

// Job is one client-submitted unit of work spanning the full pipeline.
// Everything except Status/UpdatedAt is immutable after creation.
type Job struct {
	ID                   string    `db:"job_id" json:"jobId"`
	Categories           []string  `db:"categories" json:"categories"`
	Status               Status    `db:"status" json:"status"`
	NotificationEndpoint string    `db:"notification_endpoint" json:"notificationEndpoint"`
	CreatedAt            time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time `db:"updated_at" json:"updatedAt"`
}
