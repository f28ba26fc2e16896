package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t2bot/patient-media-repo/common/config"
)

func TestQueueDoReturnsResult(t *testing.T) {
	q, err := NewQueue(2, "test")
	require.NoError(t, err)
	defer q.Release()

	assert.NoError(t, q.Do(context.Background(), func() error { return nil }))
	expected := errors.New("boom")
	assert.ErrorIs(t, q.Do(context.Background(), func() error { return expected }), expected)
}

func TestQueueDoBoundsConcurrency(t *testing.T) {
	q, err := NewQueue(2, "test")
	require.NoError(t, err)
	defer q.Release()

	var running, peak int32
	wg := &sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), func() error {
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
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestQueueDoSkipsCancelled(t *testing.T) {
	q, err := NewQueue(1, "test")
	require.NoError(t, err)
	defer q.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err = q.Do(ctx, func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestQueueDoGivesUpWhileWaiting(t *testing.T) {
	q, err := NewQueue(1, "test")
	require.NoError(t, err)
	defer q.Release()

	busy := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), func() error {
			close(busy)
			time.Sleep(2 * time.Second)
			return nil
		})
	}()
	<-busy

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var ran int32
	start := time.Now()
	err = q.Do(ctx, func() error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestQueueDoWaitsForWorker(t *testing.T) {
	q, err := NewQueue(1, "test")
	require.NoError(t, err)
	defer q.Release()

	busy := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), func() error {
			close(busy)
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}()
	<-busy

	ran := false
	assert.NoError(t, q.Do(context.Background(), func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestQueueDoRecoversPanics(t *testing.T) {
	q, err := NewQueue(1, "test")
	require.NoError(t, err)
	defer q.Release()

	err = q.Do(context.Background(), func() error {
		panic("oh no")
	})
	assert.ErrorContains(t, err, "oh no")

	// the queue still works afterwards
	assert.NoError(t, q.Do(context.Background(), func() error { return nil }))
}

func TestPools(t *testing.T) {
	p, err := NewPools(config.WorkersConfig{Ingest: 3, Transcode: 1})
	require.NoError(t, err)
	defer p.Drain()
	p.AdjustSize(config.WorkersConfig{Ingest: 4, Transcode: 2})
	assert.Equal(t, 4, p.Ingest.pool.Cap())
	assert.Equal(t, 2, p.Transcode.pool.Cap())
}
