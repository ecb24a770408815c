package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
	"github.com/pscheid92/hoodpulse/internal/platform/correlation"
)

type RefreshJob struct {
	Neighborhood string
	City         string
}

// RefreshFunc performs one background job.
type RefreshFunc func(ctx context.Context, job RefreshJob) error

// RefreshQueue is a bounded FIFO of background refreshes consumed by a fixed
// worker pool. Enqueue never blocks; a key that is queued or running is not
// queued again. Jobs still waiting at Stop are dropped.
type RefreshQueue struct {
	jobs    chan RefreshJob
	workers int
	run     RefreshFunc
	metrics *metrics.RefreshMetrics

	mu      sync.Mutex
	pending map[string]struct{}
	started bool
	stopped bool

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRefreshQueue creates a queue holding up to size jobs. m may be nil.
func NewRefreshQueue(size, workers int, run RefreshFunc, m *metrics.RefreshMetrics) *RefreshQueue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &RefreshQueue{
		jobs:    make(chan RefreshJob, size),
		workers: workers,
		run:     run,
		metrics: m,
		pending: make(map[string]struct{}),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (q *RefreshQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	for range q.workers {
		q.wg.Go(func() { q.worker(ctx) })
	}
	slog.Info("Refresh queue started", "workers", q.workers, "capacity", cap(q.jobs))
}

// Stop cancels in-flight jobs and waits for the workers to exit.
func (q *RefreshQueue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		cancel := q.cancel
		q.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		q.wg.Wait()
		slog.Info("Refresh queue stopped", "dropped", len(q.jobs))
	})
}

// Enqueue reports whether the job was accepted.
func (q *RefreshQueue) Enqueue(job RefreshJob) bool {
	key := queueKey(job.Neighborhood)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		q.metrics.Dropped()
		return false
	}
	if _, ok := q.pending[key]; ok {
		return false
	}

	select {
	case q.jobs <- job:
		q.pending[key] = struct{}{}
		q.metrics.SetQueueDepth(len(q.jobs))
		return true
	default:
		q.metrics.Dropped()
		slog.Warn("Refresh queue full, dropping job", "neighborhood", job.Neighborhood)
		return false
	}
}

// Len returns the number of jobs waiting for a worker.
func (q *RefreshQueue) Len() int {
	return len(q.jobs)
}

func (q *RefreshQueue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.metrics.SetQueueDepth(len(q.jobs))
			q.process(ctx, job)
		}
	}
}

func (q *RefreshQueue) process(ctx context.Context, job RefreshJob) {
	defer func() {
		q.mu.Lock()
		delete(q.pending, queueKey(job.Neighborhood))
		q.mu.Unlock()
	}()

	jobCtx := correlation.WithID(ctx, correlation.NewID())
	if err := q.run(jobCtx, job); err != nil {
		slog.WarnContext(jobCtx, "Refresh queue: job failed", "neighborhood", job.Neighborhood, "error", err)
		return
	}
	slog.DebugContext(jobCtx, "Refresh queue: job done", "neighborhood", job.Neighborhood)
}

// queueKey is case-sensitive like the cache entries it refreshes.
func queueKey(neighborhood string) string {
	return strings.TrimSpace(neighborhood)
}
