// Package syncqueue decouples webhook ingress from provider sync work. Jobs
// are handed off to a fixed worker pool through a bounded channel; when the
// channel is full the job is dropped and counted, never blocking the caller.
// A dropped job is safe to lose: the next notification or manual sync covers
// the same ground because event sync is cursor-based.
package syncqueue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/campushub/calsync/internal/metrics"
)

// Job identifies one calendar to synchronize.
type Job struct {
	UserID int64
	GCalID string
	Source string
}

// Syncer runs the actual provider sync for one calendar.
type Syncer interface {
	SyncUserCalendar(ctx context.Context, userID int64, gcalID string) error
}

const (
	DefaultWorkers  = 4
	DefaultCapacity = 256
)

type Queue struct {
	syncer  Syncer
	jobs    chan Job
	workers int

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds a queue with the given worker count and buffer capacity. Zero or
// negative values fall back to the defaults.
func New(syncer Syncer, workers, capacity int) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		syncer:  syncer,
		jobs:    make(chan Job, capacity),
		workers: workers,
	}
}

// Start launches the worker pool. Workers exit when the context is cancelled
// or the queue is closed.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue offers a job without blocking. It reports false when the queue is
// full and the job was dropped.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		metrics.SyncJobEnqueued(job.Source)
		metrics.SetSyncQueueDepth(len(q.jobs))
		return true
	default:
		metrics.SyncJobDropped()
		log.Printf("[WARN] sync queue full, dropping job for user %d calendar %s", job.UserID, job.GCalID)
		return false
	}
}

// Close stops accepting jobs and waits for in-flight work to finish.
func (q *Queue) Close() {
	q.stopOnce.Do(func() {
		close(q.jobs)
	})
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, job)
		}
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	metrics.SetSyncQueueDepth(len(q.jobs))
	start := time.Now()
	if err := q.syncer.SyncUserCalendar(ctx, job.UserID, job.GCalID); err != nil {
		metrics.ObserveSyncJob("error", start)
		log.Printf("[ERROR] sync user %d calendar %s: %v", job.UserID, job.GCalID, err)
		return
	}
	metrics.ObserveSyncJob("ok", start)
}
