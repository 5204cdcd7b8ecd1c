// Package leaderboard holds the board aggregates: plain boards, timed
// boards that reset on a schedule, and the registry that owns them.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/tops/internal/adapters/mq/queue"
	"github.com/okian/tops/internal/adapters/mq/worker"
	"github.com/okian/tops/internal/adapters/repository"
	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/internal/domain/processor"
	"github.com/okian/tops/internal/domain/ranking"
	"github.com/okian/tops/internal/domain/source"
	"github.com/okian/tops/pkg/logger"
	"github.com/okian/tops/pkg/metrics"
)

// Kind tells plain and timed boards apart.
type Kind string

const (
	KindNormal Kind = "normal"
	KindTimed  Kind = "timed"
)

// Board is the ranking API shared by every board kind.
type Board interface {
	ID() string
	Kind() Kind
	Config() Config
	Provider() string

	Entries() []model.Entry
	Entry(pos int) (model.Entry, bool)
	Position(id model.Identifier) int
	InTop(id model.Identifier) bool
	MinValue() (float64, bool)
	MaxValue() (float64, bool)
	Size() int

	MarkDirty(ctx context.Context, id model.Identifier, reason string) bool
	Enqueue(ctx context.Context, ids []model.Identifier, p model.Priority, reason string) int
	ProcessBatch(ctx context.Context) int
	ProcessImmediate(ctx context.Context, id model.Identifier, reason string)
	Enabled() bool
	SetEnabled(ctx context.Context, enabled bool)
	Pending(ctx context.Context) int

	Refresh(ctx context.Context)
	Load(ctx context.Context) error
	Reset(ctx context.Context) error
	AddObserver(obs Observer)
}

// Deps are the collaborators of a board.
type Deps struct {
	Store    repository.Store
	Values   source.ScoreSource
	Names    source.NameSource
	Executor worker.Submitter
}

// Option applies a configuration option to a board.
type Option func(*options)

type options struct {
	now       func() time.Time
	logger    logger.Logger
	procOpts  []processor.Option
	observers []Observer
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger overrides the named logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProcessorOptions forwards options to the board's processor.
func WithProcessorOptions(opts ...processor.Option) Option {
	return func(o *options) {
		o.procOpts = append(o.procOpts, opts...)
	}
}

// WithObserver registers an observer at construction.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs)
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("leaderboard")
	}
	return o
}

// Leaderboard is a plain ranked board. It owns its queue, processor and
// cache and writes through to the store.
type Leaderboard struct {
	id     string
	cfg    Config
	deps   Deps
	now    func() time.Time
	logger logger.Logger

	queue     *queue.WorkQueue
	processor *processor.Processor
	cache     *ranking.Cache
	observers observers

	refreshQueued atomic.Bool
}

var _ Board = (*Leaderboard)(nil)

// New builds a plain board. The cache is empty until Load or Refresh.
func New(id string, cfg Config, deps Deps, opts ...Option) (*Leaderboard, error) {
	return newLeaderboard(id, cfg, deps, applyOptions(opts))
}

func newLeaderboard(id string, cfg Config, deps Deps, o options) (*Leaderboard, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: board id is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("board %q: %w", id, err)
	}
	if deps.Store == nil || deps.Values == nil || deps.Names == nil || deps.Executor == nil {
		return nil, fmt.Errorf("board %q: store, values, names and executor are required", id)
	}
	l := &Leaderboard{
		id:     id,
		cfg:    cfg,
		deps:   deps,
		now:    o.now,
		logger: o.logger.Named(id),
		queue:  queue.NewWorkQueue(queue.WithName(id), queue.WithClock(o.now)),
		cache:  ranking.NewCache(),
	}
	for _, obs := range o.observers {
		l.observers.add(obs)
	}
	proc, err := processor.New(processor.Deps{
		Top:       id,
		MaxSize:   cfg.Size,
		Queue:     l.queue,
		Store:     deps.Store,
		Values:    deps.Values,
		Names:     deps.Names,
		Executor:  deps.Executor,
		OnOutcome: l.handleOutcome,
	}, append([]processor.Option{processor.WithClock(o.now), processor.WithLogger(o.logger)}, o.procOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("board %q: %w", id, err)
	}
	l.processor = proc
	return l, nil
}

func (l *Leaderboard) ID() string       { return l.id }
func (l *Leaderboard) Kind() Kind       { return KindNormal }
func (l *Leaderboard) Config() Config   { return l.cfg }
func (l *Leaderboard) Provider() string { return l.deps.Values.Name() }

// Entries returns a copy of the ranked list.
func (l *Leaderboard) Entries() []model.Entry { return l.cache.Entries() }

// Entry returns the entry at a 1-based position.
func (l *Leaderboard) Entry(pos int) (model.Entry, bool) { return l.cache.EntryAt(pos) }

// Position returns the 1-based position of id or ranking.NotFound.
func (l *Leaderboard) Position(id model.Identifier) int { return l.cache.Position(id) }

func (l *Leaderboard) InTop(id model.Identifier) bool { return l.cache.Contains(id) }
func (l *Leaderboard) MinValue() (float64, bool)      { return l.cache.MinValue() }
func (l *Leaderboard) MaxValue() (float64, bool)      { return l.cache.MaxValue() }
func (l *Leaderboard) Size() int                      { return l.cache.Size() }

// MarkDirty enqueues id at CRITICAL priority.
func (l *Leaderboard) MarkDirty(ctx context.Context, id model.Identifier, reason string) bool {
	return l.queue.Enqueue(ctx, id, model.Critical, reason)
}

// Enqueue adds ids at priority p and returns how many were new.
func (l *Leaderboard) Enqueue(ctx context.Context, ids []model.Identifier, p model.Priority, reason string) int {
	return l.queue.EnqueueAll(ctx, ids, p, reason)
}

// ProcessBatch drains up to the configured batch size.
func (l *Leaderboard) ProcessBatch(ctx context.Context) int {
	return l.processor.ProcessBatch(ctx, l.cfg.BatchSize)
}

func (l *Leaderboard) ProcessImmediate(ctx context.Context, id model.Identifier, reason string) {
	l.processor.ProcessImmediate(ctx, id, reason)
}

func (l *Leaderboard) Enabled() bool { return l.processor.Enabled() }

func (l *Leaderboard) SetEnabled(ctx context.Context, enabled bool) {
	l.processor.SetEnabled(ctx, enabled)
}

// Pending returns queued plus buffered work.
func (l *Leaderboard) Pending(ctx context.Context) int {
	return l.queue.Len(ctx) + l.processor.Buffered()
}

// AddObserver registers obs for future events.
func (l *Leaderboard) AddObserver(obs Observer) { l.observers.add(obs) }

// Refresh reloads the cache from the store on the executor. Requests made
// while a reload is queued are folded into it.
func (l *Leaderboard) Refresh(ctx context.Context) {
	if !l.refreshQueued.CompareAndSwap(false, true) {
		return
	}
	err := l.deps.Executor.Submit(func(jobCtx context.Context) {
		l.refreshQueued.Store(false)
		if err := l.Load(jobCtx); err != nil {
			l.logger.Warn(jobCtx, "refresh failed", logger.Error(err))
		}
	})
	if err != nil {
		l.refreshQueued.Store(false)
		l.logger.Warn(ctx, "could not schedule refresh", logger.Error(err))
	}
}

// Load replaces the cache with the stored ranking. On error the cache keeps
// its last good snapshot.
func (l *Leaderboard) Load(ctx context.Context) error {
	start := time.Now()
	entries, err := l.deps.Store.Load(ctx, l.id)
	if err != nil {
		return fmt.Errorf("load board %q: %w", l.id, err)
	}
	l.cache.SetEntries(entries)
	metrics.UpdateBoardSize(l.id, len(entries))
	metrics.RecordRefreshDuration(l.id, time.Since(start))
	return nil
}

// Reset clears stored entries, the cache and pending work.
func (l *Leaderboard) Reset(ctx context.Context) error {
	if err := l.clearRankings(ctx); err != nil {
		return err
	}
	l.queue.Clear(ctx)
	return nil
}

// clearRankings empties the store and the cache. Queued work is kept.
func (l *Leaderboard) clearRankings(ctx context.Context) error {
	if err := l.deps.Store.Clear(ctx, l.id); err != nil {
		return fmt.Errorf("clear board %q: %w", l.id, err)
	}
	l.cache.Clear()
	metrics.UpdateBoardSize(l.id, 0)
	return nil
}

func (l *Leaderboard) handleOutcome(ctx context.Context, o model.UpdateOutcome) {
	if !o.OK || !o.Changed() {
		return
	}
	name, _ := l.deps.Names.Resolve(ctx, o.ID)
	l.observers.positionUpdate(ctx, PositionUpdate{
		Top:         l.id,
		ID:          o.ID,
		Name:        name,
		OldValue:    o.OldValue,
		NewValue:    o.NewValue,
		OldPosition: o.OldPosition,
		NewPosition: o.NewPosition,
	})
	l.Refresh(ctx)
}

// ErrNotFound is returned by lookups of unregistered boards.
var ErrNotFound = errors.New("board not found")
