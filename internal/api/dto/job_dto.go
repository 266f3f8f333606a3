package dto

// CreateJobRequest is the submission body. Categories must be non-empty;
// binding rejects a missing or empty list before anything is persisted.
type CreateJobRequest struct {
	Categories []string `json:"categories" binding:"required,min=1,dive,required"`
}

// CreateJobResponse is returned on successful submission.
type CreateJobResponse struct {
	JobID                string `json:"jobId"`
	NotificationEndpoint string `json:"notificationEndpoint"`
	Status               string `json:"status"`
	CreatedAt            string `json:"createdAt"`
}

// JobResponse is the job snapshot returned by a status lookup.
type JobResponse struct {
	JobID                string   `json:"jobId"`
	Categories           []string `json:"categories"`
	Status               string   `json:"status"`
	NotificationEndpoint string   `json:"notificationEndpoint"`
	CreatedAt            string   `json:"createdAt"`
	UpdatedAt            string   `json:"updatedAt"`
}
