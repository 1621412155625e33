package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
)

// JobService submits and reports ingestion jobs.
type JobService interface {
	Submit(ctx context.Context, channelRef string, videoLimit int) (*domain.IngestJob, error)
	Status(ctx context.Context, id string) (*domain.IngestJob, error)
}

// JobHandler handles ingestion job endpoints.
type JobHandler struct {
	jobs JobService
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: job service instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// ProcessChannelRequest is the body of POST /process_channel. channel_url
// wins over channel_id when both are set.
type ProcessChannelRequest struct {
	ChannelID  string `json:"channel_id"`
	ChannelURL string `json:"channel_url"`
	VideoLimit int    `json:"video_limit" binding:"omitempty,min=1,max=1000"`
}

// ProcessChannel handles POST /process_channel.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) ProcessChannel(c *gin.Context) {
	var req ProcessChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	ref := strings.TrimSpace(req.ChannelURL)
	if ref == "" {
		ref = strings.TrimSpace(req.ChannelID)
	}
	if ref == "" {
		badRequest(c, "Either channel_id or channel_url is required")
		return
	}

	job, err := h.jobs.Submit(c.Request.Context(), ref, req.VideoLimit)
	if err != nil {
		writeError(c, "Submit job", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id": job.ID,
		"status": domain.JobStateStarted,
	})
}

// JobStatus handles GET /job_status/:job_id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) JobStatus(c *gin.Context) {
	id := c.Param("job_id")
	job, err := h.jobs.Status(c.Request.Context(), id)
	if err != nil {
		writeError(c, "Get job status", err)
		return
	}

	var jobErr interface{}
	if job.State == domain.JobStateFailed {
		jobErr = job.Error
	}
	var channelID interface{}
	if job.ChannelID != "" {
		channelID = job.ChannelID
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":           job.ID,
		"status":           job.State,
		"progress":         job.Progress,
		"error":            jobErr,
		"channel_id":       channelID,
		"total_videos":     job.TotalVideos,
		"processed_videos": job.ProcessedVideos,
	})
}
