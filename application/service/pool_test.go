package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolcat/visimatch/domain/pipeline"
)

func TestEmbedPool_SerializesBeyondWidth(t *testing.T) {
	pool := NewEmbedPool(1, 4)

	var inFlight int32
	var maxInFlight int32
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				if n > atomic.LoadInt32(&maxInFlight) {
					atomic.StoreInt32(&maxInFlight, n)
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight)
}

func TestEmbedPool_RefusesWhenQueueFull(t *testing.T) {
	pool := NewEmbedPool(1, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// One caller can queue behind the busy worker.
	queuedDone := make(chan error, 1)
	go func() {
		queuedDone <- pool.Do(context.Background(), func(ctx context.Context) error { return nil })
	}()

	// A third caller must be refused outright: width 1 + queueCap 1 is full.
	time.Sleep(10 * time.Millisecond)
	err := pool.Do(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, pipeline.KindOverloaded, pipeline.KindOf(err))

	close(release)
	require.NoError(t, <-queuedDone)
}

func TestEmbedPool_TimesOutWaitingForSlot(t *testing.T) {
	pool := NewEmbedPool(1, 4)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := pool.Do(ctx, func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, pipeline.KindTimeout, pipeline.KindOf(err))
}

func TestDefaultCPUWorkerWidth_Bounded(t *testing.T) {
	w := DefaultCPUWorkerWidth()
	assert.GreaterOrEqual(t, w, 1)
	assert.LessOrEqual(t, w, 32)
}
