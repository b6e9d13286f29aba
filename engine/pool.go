package engine

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrPoolSaturated is returned by Submit when every worker is busy and the
// queue is full.
var ErrPoolSaturated = errors.New("worker pool saturated")

// Pool is a bounded worker pool with a bounded queue. At most workers tasks
// run at once and at most workers+queueSize tasks are admitted; further
// submissions are rejected rather than buffered.
type Pool struct {
	workers   int
	queueSize int

	admit *semaphore.Weighted
	exec  *semaphore.Weighted
	wg    sync.WaitGroup

	active   atomic.Int64
	admitted atomic.Int64
	rejected atomic.Int64
}

// PoolStats is a point-in-time view of a Pool.
type PoolStats struct {
	Workers   int
	QueueSize int
	Active    int64
	Queued    int64
	Rejected  int64
}

// NewPool creates a Pool. workers is raised to 1 if lower; a negative
// queueSize is treated as 0.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		workers:   workers,
		queueSize: queueSize,
		admit:     semaphore.NewWeighted(int64(workers + queueSize)),
		exec:      semaphore.NewWeighted(int64(workers)),
	}
}

var defaultPool = sync.OnceValue(func() *Pool {
	return NewPool(4*runtime.GOMAXPROCS(0), 1024)
})

// DefaultPool returns the process-wide pool used by engines created without
// WithPool.
func DefaultPool() *Pool {
	return defaultPool()
}

// Submit queues task for execution. It never blocks: if the pool is
// saturated it returns ErrPoolSaturated and task is not run.
func (p *Pool) Submit(task func()) error {
	if !p.admit.TryAcquire(1) {
		p.rejected.Add(1)
		return ErrPoolSaturated
	}
	p.admitted.Add(1)
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.admit.Release(1)
		defer p.admitted.Add(-1)

		// Acquire only fails on context cancellation.
		_ = p.exec.Acquire(context.Background(), 1)
		defer p.exec.Release(1)

		p.active.Add(1)
		defer p.active.Add(-1)
		task()
	}()
	return nil
}

// Wait blocks until every admitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stats returns the current pool statistics.
func (p *Pool) Stats() PoolStats {
	active := p.active.Load()
	return PoolStats{
		Workers:   p.workers,
		QueueSize: p.queueSize,
		Active:    active,
		Queued:    max(p.admitted.Load()-active, 0),
		Rejected:  p.rejected.Load(),
	}
}
