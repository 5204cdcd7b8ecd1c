// Package processor turns queued identifiers into persisted ranking
// updates. All source and storage calls run on the I/O executor; results
// are delivered through an outcome callback.
package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tops/internal/adapters/mq/queue"
	"github.com/okian/tops/internal/adapters/mq/worker"
	"github.com/okian/tops/internal/adapters/repository"
	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/internal/domain/ranking"
	"github.com/okian/tops/internal/domain/source"
	"github.com/okian/tops/pkg/logger"
	"github.com/okian/tops/pkg/metrics"
)

const (
	defaultBatchThreshold = 5
	defaultBufferLimit    = 20
	defaultFlushInterval  = 5 * time.Second

	reasonName       = "Failed to resolve display name"
	reasonValue      = "Failed to get value from provider"
	reasonBatch      = "Batch error: "
	reasonUnexpected = "Unexpected error: "
)

// OutcomeFunc receives every update outcome. It may be called from any
// executor goroutine.
type OutcomeFunc func(ctx context.Context, outcome model.UpdateOutcome)

// Deps are the collaborators of a Processor.
type Deps struct {
	Top       string
	MaxSize   int
	Queue     queue.Queue
	Store     repository.Store
	Values    source.ScoreSource
	Names     source.NameSource
	Executor  worker.Submitter
	OnOutcome OutcomeFunc
}

func (d Deps) validate() error {
	switch {
	case d.Top == "":
		return errors.New("processor: top id is required")
	case d.MaxSize <= 0:
		return errors.New("processor: max size must be positive")
	case d.Queue == nil:
		return errors.New("processor: queue is required")
	case d.Store == nil:
		return errors.New("processor: store is required")
	case d.Values == nil:
		return errors.New("processor: value source is required")
	case d.Names == nil:
		return errors.New("processor: name source is required")
	case d.Executor == nil:
		return errors.New("processor: executor is required")
	}
	return nil
}

// Processor drains one board's queue.
type Processor struct {
	deps Deps

	threshold     int
	bufferLimit   int
	flushInterval time.Duration
	now           func() time.Time
	logger        logger.Logger

	enabled atomic.Bool

	mu          sync.Mutex
	buffer      []model.QueueItem
	bufferSince time.Time
	flushTimer  *time.Timer
}

// New creates an enabled processor.
func New(deps Deps, opts ...Option) (*Processor, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.OnOutcome == nil {
		deps.OnOutcome = func(context.Context, model.UpdateOutcome) {}
	}
	p := &Processor{
		deps:          deps,
		threshold:     defaultBatchThreshold,
		bufferLimit:   defaultBufferLimit,
		flushInterval: defaultFlushInterval,
		now:           time.Now,
		logger:        logger.Get().Named("processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named(deps.Top)
	p.enabled.Store(true)
	return p, nil
}

// Enabled reports whether ProcessBatch does any work.
func (p *Processor) Enabled() bool { return p.enabled.Load() }

// SetEnabled toggles processing. Disabling flushes buffered work first.
func (p *Processor) SetEnabled(ctx context.Context, enabled bool) {
	if !enabled {
		p.flush(ctx, "disable")
	}
	p.enabled.Store(enabled)
}

// Buffered returns how many low-priority items wait in the buffer.
func (p *Processor) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// ProcessBatch polls up to batchSize items and dispatches them. It returns
// the number of items drained from the queue.
//
// Drains below the batch threshold are processed item by item. Larger drains
// are written with one grouped store call, except their LOW items, which are
// deferred into a buffer that is flushed when it fills up, when it grows
// stale, before an immediate update and when the processor is disabled.
func (p *Processor) ProcessBatch(ctx context.Context, batchSize int) int {
	if !p.Enabled() || batchSize <= 0 {
		return 0
	}
	items := p.deps.Queue.Poll(ctx, batchSize)
	if len(items) < p.threshold {
		for _, item := range items {
			p.dispatchSingle(ctx, item)
		}
	} else {
		batch := make([]model.QueueItem, 0, len(items))
		var deferred []model.QueueItem
		for _, item := range items {
			if item.Priority == model.Low {
				deferred = append(deferred, item)
				continue
			}
			batch = append(batch, item)
		}
		if len(batch) > 0 {
			p.dispatchBatch(ctx, batch)
		}
		if len(deferred) > 0 {
			p.bufferItems(ctx, deferred)
		}
	}

	p.mu.Lock()
	stale := len(p.buffer) > 0 && p.now().Sub(p.bufferSince) >= p.flushInterval
	p.mu.Unlock()
	if stale {
		p.flush(ctx, "interval")
	}
	return len(items)
}

// ProcessImmediate flushes the buffer and then runs the single-item path
// for id. The outcome arrives through the usual callback.
func (p *Processor) ProcessImmediate(ctx context.Context, id model.Identifier, reason string) {
	if !p.Enabled() {
		return
	}
	p.flush(ctx, "immediate")
	p.dispatchSingle(ctx, model.QueueItem{ID: id, Priority: model.Critical, Reason: reason, EnqueuedAt: p.now()})
}

// bufferItems appends deferred items. The first item into an empty buffer
// arms a timer so the buffer is flushed even if ProcessBatch is not called
// again.
func (p *Processor) bufferItems(ctx context.Context, items []model.QueueItem) {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.bufferSince = p.now()
		timerCtx := context.WithoutCancel(ctx)
		p.flushTimer = time.AfterFunc(p.flushInterval, func() {
			p.flush(timerCtx, "interval")
		})
	}
	p.buffer = append(p.buffer, items...)
	full := len(p.buffer) >= p.bufferLimit
	p.mu.Unlock()
	if full {
		p.flush(ctx, "size")
	}
}

func (p *Processor) flush(ctx context.Context, trigger string) {
	p.mu.Lock()
	items := p.buffer
	p.buffer = nil
	if p.flushTimer != nil {
		p.flushTimer.Stop()
		p.flushTimer = nil
	}
	p.mu.Unlock()
	if len(items) == 0 {
		return
	}
	metrics.RecordBufferFlush(p.deps.Top, trigger)
	p.dispatchBatch(ctx, items)
}

func (p *Processor) emit(ctx context.Context, path string, o model.UpdateOutcome) {
	result := "success"
	if !o.OK {
		result = "failure"
		p.logger.Debug(ctx, "update failed", logger.String("id", o.ID.String()), logger.String("reason", o.Reason))
	}
	metrics.RecordOutcome(p.deps.Top, path, result)
	p.deps.OnOutcome(ctx, o)
}

// submit hands job to the executor. Items refused because the backlog is
// full go back on the queue for a later tick.
func (p *Processor) submit(ctx context.Context, path string, items []model.QueueItem, job worker.Job) {
	err := p.deps.Executor.Submit(job)
	switch {
	case err == nil:
	case errors.Is(err, worker.ErrBacklogFull):
		p.logger.Warn(ctx, "executor busy, requeueing", logger.String("path", path), logger.Int("items", len(items)))
		for _, item := range items {
			p.deps.Queue.Enqueue(ctx, item.ID, item.Priority, item.Reason)
		}
	default:
		p.logger.Warn(ctx, "could not dispatch update", logger.String("path", path), logger.Int("items", len(items)), logger.Error(err))
		for _, item := range items {
			p.emit(ctx, path, model.Failure(item.ID, reasonUnexpected+err.Error()))
		}
	}
}

func (p *Processor) dispatchSingle(ctx context.Context, item model.QueueItem) {
	p.submit(ctx, "single", []model.QueueItem{item}, func(jobCtx context.Context) {
		p.emit(jobCtx, "single", p.processOne(jobCtx, item.ID))
	})
}

func (p *Processor) processOne(ctx context.Context, id model.Identifier) model.UpdateOutcome {
	d := p.deps
	name, ok := d.Names.Resolve(ctx, id)
	if !ok {
		return model.Failure(id, reasonName)
	}

	prev, had, err := d.Store.Entry(ctx, d.Top, id)
	if err != nil {
		return model.Failure(id, reasonUnexpected+err.Error())
	}
	var (
		oldValue *float64
		oldPos   *int
	)
	if had {
		oldValue = model.Float(prev.Value)
		oldPos = model.Int(prev.Position)
	}

	value, ok := d.Values.Value(ctx, id)
	if !ok {
		return model.Failure(id, reasonValue)
	}

	saved, err := d.Store.Save(ctx, d.Top, id, name, value, d.MaxSize)
	if err != nil {
		return model.Failure(id, reasonUnexpected+err.Error())
	}
	if !saved && oldPos == nil {
		return model.Success(id, oldValue, model.Float(value), nil, nil)
	}

	pos, err := d.Store.Position(ctx, d.Top, id)
	if err != nil {
		return model.Failure(id, reasonUnexpected+err.Error())
	}
	var newPos *int
	if pos != ranking.NotFound {
		newPos = model.Int(pos)
	}
	return model.Success(id, oldValue, model.Float(value), oldPos, newPos)
}

func (p *Processor) dispatchBatch(ctx context.Context, items []model.QueueItem) {
	ids := make([]model.Identifier, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	metrics.RecordBatchSize(p.deps.Top, len(items))
	p.submit(ctx, "batch", items, func(jobCtx context.Context) {
		p.processGroup(jobCtx, ids)
	})
}

// processGroup resolves every identifier, then writes the survivors with one
// SaveBatch. Outcomes of the grouped write carry no before-image.
func (p *Processor) processGroup(ctx context.Context, ids []model.Identifier) {
	d := p.deps
	entries := make([]repository.BatchEntry, 0, len(ids))
	for _, id := range ids {
		name, ok := d.Names.Resolve(ctx, id)
		if !ok {
			p.emit(ctx, "batch", model.Failure(id, reasonName))
			continue
		}
		value, ok := d.Values.Value(ctx, id)
		if !ok {
			p.emit(ctx, "batch", model.Failure(id, reasonValue))
			continue
		}
		entries = append(entries, repository.BatchEntry{ID: id, Name: name, Value: value})
	}
	if len(entries) == 0 {
		return
	}

	if err := d.Store.SaveBatch(ctx, d.Top, entries, d.MaxSize); err != nil {
		p.logger.Error(ctx, "batch write failed", logger.Int("items", len(entries)), logger.Error(err))
		for _, e := range entries {
			p.emit(ctx, "batch", model.Failure(e.ID, reasonBatch+err.Error()))
		}
		return
	}
	for _, e := range entries {
		p.emit(ctx, "batch", model.Success(e.ID, nil, model.Float(e.Value), nil, nil))
	}
}
