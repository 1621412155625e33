package domain

import "time"

// JobState follows the result-backend vocabulary exposed to pollers.
type JobState string

const (
	JobStatePending  JobState = "PENDING"
	JobStateStarted  JobState = "STARTED"
	JobStateProgress JobState = "PROGRESS"
	JobStateSuccess  JobState = "SUCCESS"
	JobStateFailed   JobState = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s JobState) Terminal() bool {
	return s == JobStateSuccess || s == JobStateFailed
}

// IngestJob is one channel-ingestion run.
type IngestJob struct {
	ID              string     `gorm:"type:text;primaryKey" json:"job_id"`
	ChannelRef      string     `gorm:"type:text;not null" json:"-"`
	ChannelID       string     `gorm:"type:text;index" json:"channel_id,omitempty"`
	VideoLimit      int        `gorm:"default:5" json:"-"`
	State           JobState   `gorm:"type:text;default:PENDING;index" json:"status"`
	Progress        float64    `gorm:"default:0" json:"progress"`
	TotalVideos     int        `gorm:"default:0" json:"total_videos"`
	ProcessedVideos int        `gorm:"default:0" json:"processed_videos"`
	Error           string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (IngestJob) TableName() string {
	return "ingest_jobs"
}

// JobResult is what a finished orchestrator run reports.
type JobResult struct {
	ChannelID       string  `json:"channel_id"`
	TotalVideos     int     `json:"total_videos"`
	ProcessedVideos int     `json:"processed_videos"`
	SkippedVideos   int     `json:"skipped_videos"`
	IngestedVideos  int     `json:"ingested_videos"`
	Records         int     `json:"records"`
	Progress        float64 `json:"progress"`
}

// IngestTask is the queued request to ingest a channel.
type IngestTask struct {
	JobID      string `json:"job_id"`
	ChannelRef string `json:"channel_ref"`
	VideoLimit int    `json:"video_limit"`
}
