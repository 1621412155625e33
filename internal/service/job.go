package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
	"github.com/ryanmac/youtube-extraction-service/internal/source"
)

// DefaultVideoLimit is used when a submission does not name a limit.
const DefaultVideoLimit = 5

// JobStore persists job state.
type JobStore interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	Get(ctx context.Context, id string) (*domain.IngestJob, error)
	MarkStarted(ctx context.Context, id string) error
	SetChannel(ctx context.Context, id, channelID string, total int) error
	UpdateProgress(ctx context.Context, id string, progress float64, processed int) error
	Complete(ctx context.Context, id string, result domain.JobResult) error
	Fail(ctx context.Context, id, message string) error
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Dispatcher hands a task to whatever executes jobs.
type Dispatcher interface {
	Dispatch(ctx context.Context, task domain.IngestTask) error
}

// JobService owns the job lifecycle: submit, execute, poll and expire.
type JobService struct {
	jobs       JobStore
	ingest     *IngestService
	dispatcher Dispatcher
	retention  time.Duration
}

func NewJobService(jobs JobStore, ingest *IngestService, retention time.Duration) *JobService {
	if retention <= 0 {
		retention = time.Hour
	}
	return &JobService{jobs: jobs, ingest: ingest, retention: retention}
}

// SetDispatcher wires the task transport. Dispatchers usually need
// Execute, so they are attached after construction.
func (s *JobService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// Submit records a PENDING job and dispatches it.
func (s *JobService) Submit(ctx context.Context, channelRef string, videoLimit int) (*domain.IngestJob, error) {
	if _, _, err := source.ParseChannelRef(channelRef); err != nil {
		return nil, err
	}
	if videoLimit <= 0 {
		videoLimit = DefaultVideoLimit
	}
	if s.dispatcher == nil {
		return nil, errors.New("no job dispatcher configured")
	}

	job := &domain.IngestJob{
		ID:         uuid.NewString(),
		ChannelRef: channelRef,
		VideoLimit: videoLimit,
		State:      domain.JobStatePending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	task := domain.IngestTask{JobID: job.ID, ChannelRef: channelRef, VideoLimit: videoLimit}
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		_ = s.jobs.Fail(ctx, job.ID, "dispatch failed: "+err.Error())
		return nil, fmt.Errorf("dispatch job: %w", err)
	}

	logger.CtxInfo(logger.SetJobID(ctx, job.ID), "Job submitted for %s (limit %d)", channelRef, videoLimit)
	return job, nil
}

// Status returns the job, or a PENDING placeholder for unknown and expired ids.
func (s *JobService) Status(ctx context.Context, id string) (*domain.IngestJob, error) {
	job, err := s.jobs.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.IngestJob{ID: id, State: domain.JobStatePending}, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Execute runs a dispatched task to a terminal state. The returned error has
// already been recorded on the job.
func (s *JobService) Execute(ctx context.Context, task domain.IngestTask) error {
	ctx = logger.SetJobID(ctx, task.JobID)
	if err := s.jobs.MarkStarted(ctx, task.JobID); err != nil {
		logger.CtxWarn(ctx, "Failed to mark job started: %v", err)
	}

	start := time.Now()
	observer := &jobObserver{jobs: s.jobs, jobID: task.JobID}
	result, err := s.ingest.Run(ctx, task.ChannelRef, task.VideoLimit, observer)
	if err != nil {
		if ferr := s.jobs.Fail(context.WithoutCancel(ctx), task.JobID, err.Error()); ferr != nil {
			logger.CtxError(ctx, "Failed to record job failure: %v", ferr)
		}
		logger.With(logger.Fields{logger.FieldJobID: task.JobID}).
			WithStatus(string(domain.JobStateFailed)).
			WithDuration(time.Since(start).Milliseconds()).
			Error(ctx, "Job failed: %v", err)
		return err
	}

	if err := s.jobs.Complete(ctx, task.JobID, *result); err != nil {
		err = fmt.Errorf("complete job: %w", err)
		if ferr := s.jobs.Fail(context.WithoutCancel(ctx), task.JobID, err.Error()); ferr != nil {
			logger.CtxError(ctx, "Failed to record job failure: %v", ferr)
		}
		return err
	}
	logger.With(logger.Fields{logger.FieldJobID: task.JobID, logger.FieldChannelID: result.ChannelID}).
		WithStatus(string(domain.JobStateSuccess)).
		WithCount(result.Records).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Job completed")

	if stats, err := s.ingest.store.DescribeStats(ctx); err == nil {
		logger.CtxInfo(ctx, "Index %s now holds %d records", stats.Collection, stats.TotalRecordCount)
	}
	return nil
}

// Abandon fails a job whose task was accepted but never ran.
func (s *JobService) Abandon(ctx context.Context, task domain.IngestTask, cause error) {
	ctx = logger.SetJobID(ctx, task.JobID)
	if err := s.jobs.Fail(ctx, task.JobID, "job was not scheduled: "+cause.Error()); err != nil {
		logger.CtxError(ctx, "Failed to record abandoned job: %v", err)
	}
}

// PurgeExpired removes terminal jobs older than the retention window.
func (s *JobService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.jobs.PurgeExpired(ctx, time.Now().Add(-s.retention))
}

// RunJanitor purges expired jobs every interval until ctx is done.
func (s *JobService) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				logger.CtxWarn(ctx, "Job purge failed: %v", err)
				continue
			}
			if n > 0 {
				logger.CtxInfo(ctx, "Purged %d expired jobs", n)
			}
		}
	}
}

// jobObserver writes orchestrator milestones to the job store. Write errors
// are logged and otherwise ignored.
type jobObserver struct {
	jobs  JobStore
	jobID string
}

func (o *jobObserver) ChannelResolved(ctx context.Context, channelID string, total int) {
	if err := o.jobs.SetChannel(ctx, o.jobID, channelID, total); err != nil {
		logger.CtxWarn(ctx, "Failed to record job channel: %v", err)
	}
}

func (o *jobObserver) Progress(ctx context.Context, percent float64, processed int) {
	if err := o.jobs.UpdateProgress(ctx, o.jobID, percent, processed); err != nil {
		logger.CtxWarn(ctx, "Failed to record job progress: %v", err)
	}
}
