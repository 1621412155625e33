package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDispatcherRunsEveryTask(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	d, err := NewLocalDispatcher(2, func(_ context.Context, task domain.IngestTask) error {
		mu.Lock()
		defer mu.Unlock()
		seen[task.JobID] = true
		return nil
	})
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, d.Dispatch(context.Background(), domain.IngestTask{JobID: id}))
	}
	require.NoError(t, d.Close(5*time.Second))
	assert.Len(t, seen, 5)
}

func TestLocalDispatcherBoundsConcurrency(t *testing.T) {
	var running, peak int32
	d, err := NewLocalDispatcher(2, func(_ context.Context, _ domain.IngestTask) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, d.Dispatch(context.Background(), domain.IngestTask{JobID: "job"}))
	}
	require.NoError(t, d.Close(5*time.Second))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Positive(t, atomic.LoadInt32(&peak))
}

func TestLocalDispatcherDetachesFromRequestContext(t *testing.T) {
	result := make(chan error, 1)
	d, err := NewLocalDispatcher(1, func(ctx context.Context, _ domain.IngestTask) error {
		time.Sleep(10 * time.Millisecond)
		result <- ctx.Err()
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Dispatch(ctx, domain.IngestTask{JobID: "x"}))
	cancel()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}
	require.NoError(t, d.Close(time.Second))
}

func TestLocalDispatcherCloseCancelsAfterTimeout(t *testing.T) {
	d, err := NewLocalDispatcher(1, func(ctx context.Context, _ domain.IngestTask) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), domain.IngestTask{JobID: "slow"}))

	assert.Eventually(t, func() bool { return d.Running() == 1 }, time.Second, 5*time.Millisecond)
	assert.Error(t, d.Close(20*time.Millisecond))
	assert.ErrorIs(t, d.Dispatch(context.Background(), domain.IngestTask{JobID: "late"}), ErrClosed)
}

func TestLocalDispatcherDispatchRacingClose(t *testing.T) {
	var ran int32
	d, err := NewLocalDispatcher(4, func(_ context.Context, _ domain.IngestTask) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	require.NoError(t, err)

	var accepted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.Dispatch(context.Background(), domain.IngestTask{JobID: "job"})
			if err == nil {
				atomic.AddInt32(&accepted, 1)
				return
			}
			assert.ErrorIs(t, err, ErrClosed)
		}()
	}
	require.NoError(t, d.Close(5*time.Second))
	wg.Wait()

	assert.Equal(t, atomic.LoadInt32(&accepted), atomic.LoadInt32(&ran), "every accepted task runs before Close returns")
}

func TestLocalDispatcherReportsUnschedulableTasks(t *testing.T) {
	d, err := NewLocalDispatcher(1, func(_ context.Context, _ domain.IngestTask) error {
		t.Error("task must not run")
		return nil
	})
	require.NoError(t, err)

	rejected := make(chan domain.IngestTask, 1)
	d.SetRejectHandler(func(_ context.Context, task domain.IngestTask, err error) {
		assert.Error(t, err)
		rejected <- task
	})
	d.pool.Release()

	require.NoError(t, d.Dispatch(context.Background(), domain.IngestTask{JobID: "orphan"}))
	select {
	case task := <-rejected:
		assert.Equal(t, "orphan", task.JobID)
	case <-time.After(5 * time.Second):
		t.Fatal("rejected task was not reported")
	}
	require.NoError(t, d.Close(time.Second))
}
