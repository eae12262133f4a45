// Package recognizer serializes calls to a shared, assumed-not-thread-safe
// Backend Adapter through a bounded worker pool, and performs the startup
// warmup call.
package recognizer

import (
	"context"
	"fmt"
	"time"

	"github.com/wavesignal/sttstream/internal/backend"
	"github.com/wavesignal/sttstream/internal/metrics"
)

// job is one queued transcribe call plus the channel its caller waits on.
type job struct {
	ctx           context.Context
	samples       []float32
	rate          int
	initialPrompt string
	result        chan jobResult
}

type jobResult struct {
	res backend.Result
	err error
}

// Pool serializes Backend calls across connections. A pool of size 1 makes
// the backend's thread-unsafe-per-call assumption trivially safe; larger
// sizes are only valid for a backend that can handle concurrent calls.
type Pool struct {
	be      backend.Backend
	jobs    chan job
	workers int
	done    chan struct{}
}

// NewPool starts workers goroutines pulling from a bounded job queue and
// calling be.Transcribe sequentially within each worker.
func NewPool(be backend.Backend, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		be:      be,
		jobs:    make(chan job, workers*4),
		workers: workers,
		done:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer func() { p.done <- struct{}{} }()
	for j := range p.jobs {
		metrics.RecognizerQueueDepth.Dec()
		res, err := p.be.Transcribe(j.ctx, j.samples, j.rate, j.initialPrompt)
		j.result <- jobResult{res: res, err: err}
	}
}

// Transcribe submits samples to the pool and blocks until a worker has
// processed them or ctx is done. This is the offload suspension point a
// connection's handler goroutine waits on; other connections' jobs continue to make progress independently, bounded
// by pool size.
func (p *Pool) Transcribe(ctx context.Context, samples []float32, rate int, initialPrompt string) (backend.Result, error) {
	j := job{ctx: ctx, samples: samples, rate: rate, initialPrompt: initialPrompt, result: make(chan jobResult, 1)}
	metrics.RecognizerQueueDepth.Inc()
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		metrics.RecognizerQueueDepth.Dec()
		return backend.Result{}, ctx.Err()
	}
	select {
	case r := <-j.result:
		return r.res, r.err
	case <-ctx.Done():
		// The in-flight call still runs to completion inside the worker and
		// its result is dropped; we simply stop waiting on it here.
		return backend.Result{}, ctx.Err()
	}
}

// Warmup forces the backend's model load with a throwaway call on silence,
// so the first real request doesn't pay load latency. A warmup failure is
// fatal at startup.
func (p *Pool) Warmup(ctx context.Context, sampleRate int) error {
	silence := make([]float32, sampleRate) // 1 second
	wctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if _, err := p.Transcribe(wctx, silence, sampleRate, ""); err != nil {
		return fmt.Errorf("recognizer warmup: %w", err)
	}
	return nil
}

// Close stops accepting new jobs and waits until every worker has drained
// the queue and exited, so shutdown never orphans a recognizer call.
func (p *Pool) Close() {
	close(p.jobs)
	for i := 0; i < p.workers; i++ {
		<-p.done
	}
}
