package service

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/toolcat/visimatch/domain/pipeline"
)

// DefaultQueueCapacity is the hard ceiling on requests waiting for an
// embedding worker before new ones fail with KindOverloaded.
const DefaultQueueCapacity = 64

// DefaultCPUWorkerWidth returns min(NumCPU+4, 32), the default embedding
// worker-pool width for CPU inference.
func DefaultCPUWorkerWidth() int {
	w := runtime.NumCPU() + 4
	if w > 32 {
		w = 32
	}
	return w
}

// EmbedPool bounds concurrent calls into the Embedder, the scarce resource
// the Request Pipeline must serialize: a worker-pool semaphore of fixed
// width, with a hard queue ceiling beyond which new callers are refused
// outright rather than piling up indefinitely.
type EmbedPool struct {
	sem      chan struct{}
	queued   int64
	queueCap int64
}

// NewEmbedPool creates an EmbedPool admitting at most width concurrent
// callers into fn, queuing up to queueCap beyond that.
func NewEmbedPool(width, queueCap int) *EmbedPool {
	if width < 1 {
		width = 1
	}
	if queueCap < 0 {
		queueCap = 0
	}
	return &EmbedPool{
		sem:      make(chan struct{}, width),
		queueCap: int64(queueCap),
	}
}

// Width returns the pool's concurrency limit.
func (p *EmbedPool) Width() int { return cap(p.sem) }

// Do runs fn once a worker slot is free, subject to ctx's deadline. It
// fails fast with KindOverloaded if admitting this caller would exceed the
// queue ceiling, and with KindTimeout if ctx is canceled while waiting for
// a slot to free up.
func (p *EmbedPool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if n := atomic.AddInt64(&p.queued, 1); n > p.queueCap+int64(cap(p.sem)) {
		atomic.AddInt64(&p.queued, -1)
		return pipeline.New(pipeline.KindOverloaded, "embedding pool queue is full")
	}
	defer atomic.AddInt64(&p.queued, -1)

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return pipeline.Wrap(pipeline.KindTimeout, "timed out waiting for an embedding worker", ctx.Err())
	}
	defer func() { <-p.sem }()

	return fn(ctx)
}
