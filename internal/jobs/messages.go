package jobs

import "encoding/json"

// SubmissionMessage is the payload published on the submissions channel when
// a job is created. The retrieval worker is its only consumer.
type SubmissionMessage struct {
	JobID                string   `json:"jobId"`
	Categories           []string `json:"categories"`
	NotificationEndpoint string   `json:"notificationEndpoint"`
}

// UpdateMessage is the payload published on the updates channel whenever a
// pipeline stage wants to notify an attached client. The API service bridges
// these into the live event stream; they are best-effort and never required
// for correctness.
type UpdateMessage struct {
	JobID string          `json:"jobId"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Live event names pushed over a job's event stream.
const (
	EventStatus    = "status"
	EventUpdate    = "update"
	EventHeartbeat = "heartbeat"
)
