// Package segment hands baseline artifacts to the external segmentation
// service. Jobs are queued in memory and delivered by a small worker pool,
// so producers never wait on the service.
package segment

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/scrollsnap/models"
	"github.com/use-agent/scrollsnap/observability"
)

// Job asks the segmentation service to process one baseline.
type Job struct {
	ID          string `json:"id"`
	Site        string `json:"site"`
	ScrollIndex int    `json:"scroll_index"`
	XPathCSV    string `json:"xpath_csv"`
	CleanedCSV  string `json:"cleaned_csv,omitempty"`
	Screenshot  string `json:"screenshot,omitempty"`
	EnqueuedAt  int64  `json:"enqueued_at"`
}

// Backend delivers a job to wherever segmentation runs.
type Backend interface {
	Name() string
	Deliver(ctx context.Context, job Job) error
}

// Queue is a bounded job queue drained by a fixed set of workers.
// It is safe for concurrent use.
type Queue struct {
	backend Backend
	jobs    chan Job
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewQueue starts workers goroutines delivering jobs to backend.
// size bounds the number of pending jobs; further jobs are dropped.
func NewQueue(backend Backend, size, workers int, timeout time.Duration, metrics *observability.Metrics) *Queue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	q := &Queue{
		backend: backend,
		jobs:    make(chan Job, size),
		timeout: timeout,
		metrics: metrics,
		logger:  slog.Default().With("component", "segment", "backend", backend.Name()),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue hands job to the workers without blocking. It returns false when
// the queue is full or closed and the job was dropped.
func (q *Queue) Enqueue(job Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if job.EnqueuedAt == 0 {
		job.EnqueuedAt = time.Now().Unix()
	}
	if q.closed {
		q.drop(job, "queue closed")
		return false
	}
	select {
	case q.jobs <- job:
		q.metrics.SegmentJob("enqueued")
		return true
	default:
		q.drop(job, "queue full")
		return false
	}
}

// Close stops accepting jobs and waits for pending ones until ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports queue counters. A nil Queue reports zero values.
func (q *Queue) Stats() models.SegmentStats {
	if q == nil {
		return models.SegmentStats{}
	}
	return models.SegmentStats{
		Backend:   q.backend.Name(),
		Pending:   len(q.jobs),
		Capacity:  cap(q.jobs),
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.backend.Deliver(ctx, job)
		cancel()
		if err != nil {
			q.failed.Add(1)
			q.metrics.SegmentJob("failed")
			q.logger.Error("segmentation job failed",
				"job_id", job.ID,
				"site", job.Site,
				"scroll_index", job.ScrollIndex,
				"error", err,
			)
			continue
		}
		q.delivered.Add(1)
		q.metrics.SegmentJob("delivered")
	}
}

func (q *Queue) drop(job Job, reason string) {
	q.dropped.Add(1)
	q.metrics.SegmentJob("dropped")
	q.logger.Warn("segmentation job dropped",
		"job_id", job.ID,
		"site", job.Site,
		"scroll_index", job.ScrollIndex,
		"reason", reason,
	)
}
