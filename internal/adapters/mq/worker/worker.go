// Package worker runs batch scoring jobs on a fixed pool of workers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/dotrep/internal/domain/types"
	"github.com/okian/dotrep/pkg/logger"
	"github.com/okian/dotrep/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// ErrPoolClosed is returned when jobs are submitted after shutdown.
var ErrPoolClosed = errors.New("worker pool closed")

// Scorer fetches and scores one wallet.
type Scorer interface {
	ScoreAddress(ctx context.Context, address, network string) (types.Report, error)
}

// Job is one address to score. Results are delivered on the job's channel.
type Job struct {
	Index   int
	Address string
	Network string

	ctx    context.Context //nolint:containedctx // request scope travels with the job
	result chan<- Result
}

// Result is the outcome of a Job.
type Result struct {
	Index   int
	Address string
	Report  types.Report
	Err     error
}

// Worker processes jobs until its channel closes or it is shut down.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker after the current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker over a shared job channel.
type InMemoryWorker struct {
	jobs   <-chan Job
	scorer Scorer
	name   string

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(jobs <-chan Job, scorer Scorer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		jobs:     jobs,
		scorer:   scorer,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.process(job)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process scores one job and always delivers exactly one result.
func (w *InMemoryWorker) process(job Job) {
	ctx := job.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	metrics.WorkerBusy(1)
	defer metrics.WorkerBusy(-1)

	res := Result{Index: job.Index, Address: job.Address}
	if err := ctx.Err(); err != nil {
		res.Err = err
	} else {
		res.Report, res.Err = w.scorer.ScoreAddress(ctx, job.Address, job.Network)
	}

	if res.Err != nil {
		metrics.RecordWorkerFailure()
		w.logger.Debug(ctx, "batch job failed",
			logger.String("address", job.Address),
			logger.Error(res.Err),
		)
	}
	job.result <- res
}

// Pool manages multiple workers sharing one job channel.
type Pool struct {
	workers []*InMemoryWorker
	jobs    chan Job
	scorer  Scorer

	// Shutdown control
	mu       sync.RWMutex
	closed   bool
	shutdown chan struct{}
	cancel   context.CancelFunc

	// Metrics tracking
	processedCount atomic.Int64

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive workerCount selects a
// multiple of the CPU count.
func NewPool(workerCount int, scorer Scorer) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		jobs:     make(chan Job),
		scorer:   scorer,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			pool.jobs,
			scorer,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns the number of jobs completed since the pool was created.
func (p *Pool) Processed() int64 {
	return p.processedCount.Load()
}

// Start starts all workers in the pool. Workers keep running until Shutdown,
// even after ctx ends, so that submitted batches always drain.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for _, worker := range p.workers {
		go worker.Run(runCtx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// ScoreAll scores every address on the pool and returns results in input
// order. Jobs that could not be dispatched because ctx ended or the pool was
// shut down carry that error.
func (p *Pool) ScoreAll(ctx context.Context, addresses []string, network string) []Result {
	results := make([]Result, len(addresses))
	out := make(chan Result, len(addresses))

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	sent := 0
	for i, addr := range addresses {
		results[i] = Result{Index: i, Address: addr}
		if closed {
			results[i].Err = ErrPoolClosed
			continue
		}
		job := Job{Index: i, Address: addr, Network: network, ctx: ctx, result: out}
		select {
		case p.jobs <- job:
			sent++
		case <-ctx.Done():
			results[i].Err = ctx.Err()
		case <-p.shutdown:
			closed = true
			results[i].Err = ErrPoolClosed
		}
	}

	for ; sent > 0; sent-- {
		res := <-out
		results[res.Index] = res
		p.processedCount.Add(1)
	}
	return results
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), poolShutdownTimeout)
	defer cancel()
	_ = p.Shutdown(ctx)
}

// Shutdown signals all workers to stop after their current job and waits for
// them or for ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.shutdown)
	cancel := p.cancel
	p.mu.Unlock()

	var errs []error
	for i, worker := range p.workers {
		if err := worker.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = append(errs, err)
		}
	}
	if cancel != nil {
		cancel()
	}
	metrics.UpdateWorkerCount(0)
	return errors.Join(errs...)
}
