package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"gorm.io/gorm"
)

// JobRepository tracks ingestion jobs.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Get retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.IngestJob: job record if found.
//   - error: wraps domain.ErrNotFound if no such job exists.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkStarted moves a pending job to STARTED.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) MarkStarted(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ? AND state = ?", id, domain.JobStatePending).
		Updates(map[string]interface{}{
			"state":      domain.JobStateStarted,
			"started_at": &now,
		}).Error
}

// SetChannel records the resolved channel and the number of videos to visit.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - channelID: resolved channel identifier.
//   - total: number of videos listed for the run.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) SetChannel(ctx context.Context, id, channelID string, total int) error {
	return r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"channel_id":   channelID,
			"total_videos": total,
		}).Error
}

// UpdateProgress records forward progress. The write is ignored when it
// would lower the stored progress or when the job is already terminal, so
// progress never decreases within a run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - progress: percentage in [0, 100].
//   - processed: number of videos visited so far.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress float64, processed int) error {
	return r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ? AND progress <= ? AND state NOT IN ?", id, progress,
			[]domain.JobState{domain.JobStateSuccess, domain.JobStateFailed}).
		Updates(map[string]interface{}{
			"state":            domain.JobStateProgress,
			"progress":         progress,
			"processed_videos": processed,
		}).Error
}

// Complete marks the job SUCCESS at 100%.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - result: final counters of the run.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Complete(ctx context.Context, id string, result domain.JobResult) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":            domain.JobStateSuccess,
			"progress":         100.0,
			"channel_id":       result.ChannelID,
			"total_videos":     result.TotalVideos,
			"processed_videos": result.ProcessedVideos,
			"error":            "",
			"completed_at":     &now,
		}).Error
}

// Fail marks the job FAILED with a summary of the error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - message: non-empty error summary.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Fail(ctx context.Context, id, message string) error {
	if message == "" {
		message = "unknown error"
	}
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":        domain.JobStateFailed,
			"error":        message,
			"completed_at": &now,
		}).Error
}

// PurgeExpired deletes terminal jobs that completed before cutoff.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: completion time before which jobs are removed.
// Returns:
//   - int64: number of deleted rows.
//   - error: non-nil if the delete fails.
func (r *JobRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("state IN ? AND completed_at < ?",
			[]domain.JobState{domain.JobStateSuccess, domain.JobStateFailed}, cutoff).
		Delete(&domain.IngestJob{})
	return res.RowsAffected, res.Error
}
