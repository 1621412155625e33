package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
)

// LocalDispatcher runs tasks on a bounded in-process goroutine pool. Tasks
// beyond the pool size wait for a free worker.
type LocalDispatcher struct {
	pool    *ants.Pool
	handler Handler
	base    context.Context
	cancel  context.CancelFunc
	reject  RejectFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalDispatcher creates a pool of workers goroutines. Running tasks are
// cancelled when Close times out.
func NewLocalDispatcher(workers int, handler Handler) (*LocalDispatcher, error) {
	if workers <= 0 {
		workers = 2
	}
	pool, err := ants.NewPool(workers,
		ants.WithLogger(logger.GetDefault()),
		ants.WithPanicHandler(func(p any) {
			logger.Error("Ingestion worker panicked: %v", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	base, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{pool: pool, handler: handler, base: base, cancel: cancel}, nil
}

// SetRejectHandler registers fn for tasks the pool refuses after Dispatch
// has accepted them.
func (d *LocalDispatcher) SetRejectHandler(fn RejectFunc) {
	d.reject = fn
}

// Dispatch queues task and returns immediately. The task keeps the logging
// fields of ctx but not its cancellation.
func (d *LocalDispatcher) Dispatch(ctx context.Context, task domain.IngestTask) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		err := d.pool.Submit(func() {
			defer d.wg.Done()
			runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			stop := context.AfterFunc(d.base, cancel)
			defer stop()
			defer cancel()

			if err := d.handler(runCtx, task); err != nil {
				logger.CtxWarn(logger.SetJobID(runCtx, task.JobID), "Task finished with error: %v", err)
			}
		})
		if err != nil {
			logger.CtxError(ctx, "Failed to schedule job %s: %v", task.JobID, err)
			if d.reject != nil {
				d.reject(context.WithoutCancel(ctx), task, err)
			}
			d.wg.Done()
		}
	}()
	return nil
}

// Running reports the number of busy workers.
func (d *LocalDispatcher) Running() int {
	return d.pool.Running()
}

// Close stops accepting tasks and waits up to timeout for queued and running
// tasks, cancelling whatever is still running after that.
func (d *LocalDispatcher) Close(timeout time.Duration) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		d.cancel()
		err = fmt.Errorf("timed out after %s waiting for ingestion tasks", timeout)
		<-done
	}
	d.cancel()
	d.pool.Release()
	return err
}
