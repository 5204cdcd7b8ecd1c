// Package worker runs durable I/O off the scheduler goroutine on a small
// fixed-size pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"github.com/okian/tops/pkg/logger"
	"github.com/okian/tops/pkg/metrics"
)

const (
	defaultWorkerCount      = 4
	defaultBacklog          = 1 << 16
	executorShutdownTimeout = 30 * time.Second
)

var (
	// ErrStopped is returned by Submit once the executor has been shut down.
	ErrStopped = errors.New("executor stopped")
	// ErrBacklogFull is returned by Submit when no job slot is free. The
	// caller keeps the work and retries later.
	ErrBacklogFull = errors.New("executor backlog full")
)

// Job is one unit of I/O work.
type Job func(ctx context.Context)

// Submitter is what components that dispatch I/O depend on.
type Submitter interface {
	Submit(job Job) error
}

// Executor accepts jobs without blocking the caller and runs at most
// workers of them concurrently. Submissions beyond the backlog are refused.
type Executor struct {
	name    string
	workers int
	backlog int

	jobs     chan Job
	swg      sizedwaitgroup.SizedWaitGroup
	inflight sync.WaitGroup
	pending  atomic.Int64
	running  atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	shutdown  chan struct{}
	done      chan struct{}

	logger logger.Logger
}

var _ Submitter = (*Executor)(nil)

// NewExecutor creates an executor. workerCount < 1 uses the default of 4.
func NewExecutor(workerCount int, opts ...Option) *Executor {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	e := &Executor{
		name:     "io",
		workers:  workerCount,
		backlog:  defaultBacklog,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.jobs = make(chan Job, e.backlog)
	e.swg = sizedwaitgroup.New(e.workers)
	return e
}

// Workers returns the concurrency bound.
func (e *Executor) Workers() int { return e.workers }

// Start launches the dispatcher. Jobs submitted before Start wait in the backlog.
func (e *Executor) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		go e.dispatch(ctx)
	})
}

func (e *Executor) dispatch(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.shutdown:
			return
		case job := <-e.jobs:
			// blocks once every worker slot is taken
			e.swg.Add()
			go func() {
				defer e.swg.Done()
				e.run(ctx, job)
			}()
		}
	}
}

func (e *Executor) run(ctx context.Context, job Job) {
	metrics.UpdateExecutorRunning(e.running.Add(1))
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordExecutorPanic()
			e.logger.Error(ctx, "job panicked", logger.String("executor", e.name), logger.Any("panic", r))
		}
		metrics.UpdateExecutorRunning(e.running.Add(-1))
		metrics.UpdateExecutorPending(e.pending.Add(-1))
		metrics.RecordExecutorJob()
		e.inflight.Done()
	}()
	job(ctx)
}

// Submit queues job for execution. It never blocks.
func (e *Executor) Submit(job Job) error {
	if job == nil {
		return fmt.Errorf("submit: nil job")
	}
	select {
	case <-e.shutdown:
		return ErrStopped
	default:
	}

	e.inflight.Add(1)
	metrics.UpdateExecutorPending(e.pending.Add(1))
	select {
	case e.jobs <- job:
		return nil
	case <-e.shutdown:
		e.release()
		return ErrStopped
	default:
		e.release()
		return ErrBacklogFull
	}
}

func (e *Executor) release() {
	e.inflight.Done()
	metrics.UpdateExecutorPending(e.pending.Add(-1))
}

// Pending returns the number of submitted jobs that have not finished.
func (e *Executor) Pending() int64 {
	return e.pending.Load()
}

// Wait blocks until every submitted job, including jobs submitted by
// running jobs, has finished.
func (e *Executor) Wait() {
	e.inflight.Wait()
}

// Shutdown stops accepting jobs, waits for running ones and drops the
// backlog. It returns when done or when ctx expires.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.shutdown) })

	shutdownCtx, cancel := context.WithTimeout(ctx, executorShutdownTimeout)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		e.startOnce.Do(func() { close(e.done) })
		<-e.done
		e.swg.Wait()
		dropped := e.drain()
		if dropped > 0 {
			e.logger.Warn(ctx, "dropped queued jobs on shutdown", logger.String("executor", e.name), logger.Int("jobs", dropped))
		}
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-shutdownCtx.Done():
		e.logger.Warn(ctx, "executor shutdown timed out", logger.String("executor", e.name))
		return fmt.Errorf("executor shutdown timed out: %w", shutdownCtx.Err())
	}
}

func (e *Executor) drain() int {
	n := 0
	for {
		select {
		case <-e.jobs:
			n++
			metrics.UpdateExecutorPending(e.pending.Add(-1))
			e.inflight.Done()
		default:
			return n
		}
	}
}

// Inline runs every job on the submitting goroutine.
type Inline struct{}

var _ Submitter = Inline{}

// Submit runs job immediately with a background context.
func (Inline) Submit(job Job) error {
	if job == nil {
		return fmt.Errorf("submit: nil job")
	}
	job(context.Background())
	return nil
}
