// Package queue moves ingestion tasks from the API to the workers that run
// them, either in-process or through nsqd.
package queue

import (
	"context"
	"errors"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// Handler executes one task. Errors are expected to be recorded on the job
// by the handler itself.
type Handler func(ctx context.Context, task domain.IngestTask) error

// RejectFunc is told about a task that was accepted but could not be
// scheduled, so its job can be failed.
type RejectFunc func(ctx context.Context, task domain.IngestTask, err error)
