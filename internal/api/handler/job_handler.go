package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quangdp/newsbrief-be/internal/api/dto"
	"github.com/quangdp/newsbrief-be/internal/bus"
	"github.com/quangdp/newsbrief-be/internal/jobs"
	"github.com/quangdp/newsbrief-be/internal/telemetry"
)

// CreateJob handles POST /api/v1/jobs
// Submits a new content pipeline job.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid job submission", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "categories must be a non-empty array of strings",
		})
		return
	}

	job, err := h.jobs.Submit(c.Request.Context(), req.Categories)
	if err != nil {
		if errors.Is(err, jobs.ErrNoCategories) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var publishErr *bus.PublishError
		if errors.As(err, &publishErr) {
			// Job is stored as pending but the pipeline was not
			// triggered; surface that as an upstream failure.
			h.logger.Error("Job submission publish failed", slog.Any("error", err))
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "job accepted but pipeline trigger failed",
			})
			return
		}

		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	telemetry.JobsSubmitted.Inc()

	c.JSON(http.StatusCreated, dto.CreateJobResponse{
		JobID:                job.ID,
		NotificationEndpoint: job.NotificationEndpoint,
		Status:               string(job.Status),
		CreatedAt:            job.CreatedAt.Format(time.RFC3339),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves a job snapshot. Never mutates state.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":  "Job not found",
				"job_id": jobID,
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobResponse{
		JobID:                job.ID,
		Categories:           job.Categories,
		Status:               string(job.Status),
		NotificationEndpoint: job.NotificationEndpoint,
		CreatedAt:            job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            job.UpdatedAt.Format(time.RFC3339),
	})
}

// StreamEvents handles GET /api/v1/jobs/:job_id/events
// Opens a server-sent event stream carrying status, update, and heartbeat
// frames for one job. Closing the stream never cancels pipeline work.
func (h *JobHandler) StreamEvents(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to load job for event stream",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to establish event stream",
		})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	events := h.broadcaster.Attach(jobID)
	defer h.broadcaster.Detach(jobID)

	telemetry.EventStreamsActive.Inc()
	defer telemetry.EventStreamsActive.Dec()

	h.logger.Info("Event stream opened", slog.String("job_id", jobID))

	// Initial status frame from the stored snapshot.
	initial, _ := json.Marshal(gin.H{
		"jobId":     job.ID,
		"status":    job.Status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	c.SSEvent(jobs.EventStatus, json.RawMessage(initial))
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Event stream client disconnected",
				slog.String("job_id", jobID),
			)
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(ev.Type, json.RawMessage(ev.Data))
			c.Writer.Flush()
		}
	}
}
