package syncqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSyncer struct {
	mu      sync.Mutex
	jobs    []Job
	block   chan struct{}
	failAll bool
}

func (s *recordingSyncer) SyncUserCalendar(ctx context.Context, userID int64, gcalID string) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, Job{UserID: userID, GCalID: gcalID})
	s.mu.Unlock()
	if s.failAll {
		return errors.New("provider unavailable")
	}
	return nil
}

func (s *recordingSyncer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func TestQueueRunsEnqueuedJobs(t *testing.T) {
	syncer := &recordingSyncer{}
	q := New(syncer, 2, 16)
	q.Start(context.Background())

	for i := int64(1); i <= 5; i++ {
		if !q.Enqueue(Job{UserID: i, GCalID: "primary", Source: "webhook"}) {
			t.Fatalf("enqueue %d rejected with spare capacity", i)
		}
	}
	q.Close()

	if got := syncer.count(); got != 5 {
		t.Errorf("expected 5 jobs executed, got %d", got)
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	syncer := &recordingSyncer{block: make(chan struct{})}
	q := New(syncer, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	// First job occupies the worker, second fills the buffer.
	q.Enqueue(Job{UserID: 1, GCalID: "primary", Source: "webhook"})
	waitForBusyWorker(t, q)
	if !q.Enqueue(Job{UserID: 2, GCalID: "primary", Source: "webhook"}) {
		t.Fatal("second enqueue must fit in the buffer")
	}
	if q.Enqueue(Job{UserID: 3, GCalID: "primary", Source: "webhook"}) {
		t.Error("expected enqueue to report a drop on a full queue")
	}

	close(syncer.block)
	q.Close()
	if got := syncer.count(); got != 2 {
		t.Errorf("expected the 2 accepted jobs executed, got %d", got)
	}
}

func TestQueueContinuesAfterJobFailure(t *testing.T) {
	syncer := &recordingSyncer{failAll: true}
	q := New(syncer, 1, 16)
	q.Start(context.Background())

	q.Enqueue(Job{UserID: 1, GCalID: "primary", Source: "manual"})
	q.Enqueue(Job{UserID: 2, GCalID: "primary", Source: "manual"})
	q.Close()

	if got := syncer.count(); got != 2 {
		t.Errorf("a failing job must not stall the worker, got %d executed", got)
	}
}

func TestQueueStopsOnContextCancel(t *testing.T) {
	syncer := &recordingSyncer{}
	q := New(syncer, 1, 16)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after context cancellation")
	}
}

func TestQueueDefaults(t *testing.T) {
	q := New(&recordingSyncer{}, 0, 0)
	if q.workers != DefaultWorkers {
		t.Errorf("expected %d workers, got %d", DefaultWorkers, q.workers)
	}
	if cap(q.jobs) != DefaultCapacity {
		t.Errorf("expected capacity %d, got %d", DefaultCapacity, cap(q.jobs))
	}
}

// waitForBusyWorker blocks until the single worker has pulled the first job
// off the channel, so capacity assertions are deterministic.
func waitForBusyWorker(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(q.jobs) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never picked up the first job")
		}
		time.Sleep(time.Millisecond)
	}
}
