package engine

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Saturation(t *testing.T) {
	p := NewPool(2, 1)
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Submit(func() {
			started.Done()
			<-release
		}))
	}
	started.Wait()

	// Both workers are busy, one more task fits in the queue.
	var ran atomic.Bool
	require.NoError(t, p.Submit(func() { ran.Store(true) }))
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolSaturated)

	stats := p.Stats()
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, 1, stats.QueueSize)
	assert.Equal(t, int64(2), stats.Active)
	assert.Equal(t, int64(1), stats.Queued)
	assert.Equal(t, int64(1), stats.Rejected)

	close(release)
	p.Wait()
	assert.True(t, ran.Load(), "Queued task runs once a worker frees up")
	assert.NoError(t, p.Submit(func() {}), "Capacity is released")
	p.Wait()
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(3, 100)
	var running, peak atomic.Int32
	block := make(chan struct{})

	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(func() {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-block
		}))
	}
	close(block)
	p.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestNewPool_Bounds(t *testing.T) {
	p := NewPool(0, -5)
	stats := p.Stats()
	assert.Equal(t, 1, stats.Workers)
	assert.Equal(t, 0, stats.QueueSize)
}

func TestDefaultPool(t *testing.T) {
	assert.Same(t, DefaultPool(), DefaultPool())
	assert.GreaterOrEqual(t, DefaultPool().Stats().Workers, 4)
}
