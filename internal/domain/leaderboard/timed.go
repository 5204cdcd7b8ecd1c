package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tops/internal/adapters/mq/worker"
	"github.com/okian/tops/internal/adapters/repository"
	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/internal/domain/schedule"
	"github.com/okian/tops/internal/domain/source"
	"github.com/okian/tops/pkg/logger"
	"github.com/okian/tops/pkg/metrics"
)

// State is the lifecycle state of a timed board.
type State int32

const (
	AwaitingInitialLoad State = iota
	Active
	Resetting
)

func (s State) String() string {
	switch s {
	case AwaitingInitialLoad:
		return "awaiting_initial_load"
	case Active:
		return "active"
	case Resetting:
		return "resetting"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	// ErrNotActive is returned when a reset is requested outside Active.
	ErrNotActive = errors.New("timed board is not active")
)

// TimedDeps are the collaborators of a timed board. Base is the raw value
// source; the board ranks its growth since the last reset.
type TimedDeps struct {
	Store       repository.PersistentStore
	Base        source.ScoreSource
	Names       source.NameSource
	Executor    worker.Submitter
	Location    *time.Location
	GracePeriod time.Duration
}

// TimedLeaderboard is a board that periodically starts over. Values are
// deltas against per-identifier snapshots taken at each reset.
type TimedLeaderboard struct {
	*Leaderboard

	schedule schedule.ResetSchedule
	loc      *time.Location
	store    repository.PersistentStore
	base     source.ScoreSource
	delta    *DeltaSource

	state atomic.Int32

	mu   sync.RWMutex
	meta repository.TimedMeta
}

var _ Board = (*TimedLeaderboard)(nil)

// NewTimed builds a timed board. Its metadata is read by Load.
func NewTimed(id string, cfg Config, sched schedule.ResetSchedule, deps TimedDeps, opts ...Option) (*TimedLeaderboard, error) {
	if deps.Store == nil || deps.Base == nil || deps.Executor == nil {
		return nil, fmt.Errorf("timed board %q: store, base source and executor are required", id)
	}
	o := applyOptions(opts)
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	delta := NewDeltaSource(id, deps.Base, deps.Store, deps.Executor, deps.GracePeriod, o.now, o.logger.Named(id).Named("delta"))
	board, err := newLeaderboard(id, cfg, Deps{
		Store:    deps.Store,
		Values:   delta,
		Names:    deps.Names,
		Executor: deps.Executor,
	}, o)
	if err != nil {
		return nil, err
	}
	return &TimedLeaderboard{
		Leaderboard: board,
		schedule:    sched,
		loc:         loc,
		store:       deps.Store,
		base:        deps.Base,
		delta:       delta,
	}, nil
}

func (t *TimedLeaderboard) Kind() Kind       { return KindTimed }
func (t *TimedLeaderboard) Provider() string { return t.base.Name() }

// Schedule returns the reset schedule.
func (t *TimedLeaderboard) Schedule() schedule.ResetSchedule { return t.schedule }

// Location returns the zone reset instants are computed in.
func (t *TimedLeaderboard) Location() *time.Location { return t.loc }

// Delta returns the board's value source.
func (t *TimedLeaderboard) Delta() *DeltaSource { return t.delta }

// State returns the current lifecycle state.
func (t *TimedLeaderboard) State() State { return State(t.state.Load()) }

// Meta returns a copy of the current period metadata.
func (t *TimedLeaderboard) Meta() repository.TimedMeta {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta
}

func (t *TimedLeaderboard) StartTime() time.Time     { return t.Meta().StartTime }
func (t *TimedLeaderboard) NextResetTime() time.Time { return t.Meta().NextResetTime }

// TimeUntilReset is never negative.
func (t *TimedLeaderboard) TimeUntilReset() time.Duration {
	d := t.NextResetTime().Sub(t.now())
	if d < 0 {
		return 0
	}
	return d
}

// NextReset computes the reset instant following now.
func (t *TimedLeaderboard) NextReset(now time.Time) time.Time {
	return t.schedule.NextReset(now, t.loc)
}

// ShouldReset is true once an active board reached its reset instant.
func (t *TimedLeaderboard) ShouldReset() bool {
	if t.State() != Active {
		return false
	}
	return !t.now().Before(t.NextResetTime())
}

// Load reads or creates the period metadata on first use, then reloads the
// ranked cache.
func (t *TimedLeaderboard) Load(ctx context.Context) error {
	if t.State() == AwaitingInitialLoad {
		if err := t.loadMeta(ctx); err != nil {
			return err
		}
	}
	return t.Leaderboard.Load(ctx)
}

func (t *TimedLeaderboard) loadMeta(ctx context.Context) error {
	meta, ok, err := t.store.LoadMeta(ctx, t.id)
	if err != nil {
		return fmt.Errorf("load timed meta %q: %w", t.id, err)
	}
	if !ok {
		now := t.now()
		meta = repository.TimedMeta{StartTime: now, NextResetTime: t.NextReset(now)}
		if err := t.store.SaveMeta(ctx, t.id, meta); err != nil {
			return fmt.Errorf("save timed meta %q: %w", t.id, err)
		}
		t.logger.Info(ctx, "timed board started", logger.Time("next_reset", meta.NextResetTime))
	}
	t.mu.Lock()
	t.meta = meta
	t.mu.Unlock()
	t.state.CompareAndSwap(int32(AwaitingInitialLoad), int32(Active))
	return nil
}

// Reset starts a new period: snapshot raw values of ranked identifiers,
// clear the ranking, advance the metadata and notify observers.
//
// The steps are not transactional. A failure is logged and leaves the
// board Active with its old metadata, so the next sweep retries.
func (t *TimedLeaderboard) Reset(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(Active), int32(Resetting)) {
		return ErrNotActive
	}
	defer t.state.Store(int32(Active))

	if err := t.reset(ctx); err != nil {
		metrics.RecordResetFailure(t.id)
		t.logger.Error(ctx, "timed reset failed", logger.Error(err))
		return err
	}
	return nil
}

func (t *TimedLeaderboard) reset(ctx context.Context) error {
	entries, err := t.store.Load(ctx, t.id)
	if err != nil {
		return fmt.Errorf("read ranked entries: %w", err)
	}
	snapshots := make(map[model.Identifier]float64, len(entries))
	for _, e := range entries {
		if raw, ok := t.delta.Raw(ctx, e.ID); ok {
			snapshots[e.ID] = raw
		}
	}
	if err := t.delta.UpdateSnapshots(ctx, snapshots); err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}
	// Pending work belongs to identifiers still online, so it carries over
	// into the new period.
	if err := t.clearRankings(ctx); err != nil {
		return err
	}

	prev := t.Meta()
	now := t.now()
	prevStart := prev.StartTime
	meta := repository.TimedMeta{
		StartTime:     now,
		NextResetTime: t.NextReset(now),
		LastResetTime: &prevStart,
	}
	if err := t.store.SaveMeta(ctx, t.id, meta); err != nil {
		return fmt.Errorf("save timed meta: %w", err)
	}
	t.mu.Lock()
	t.meta = meta
	t.mu.Unlock()

	metrics.RecordReset(t.id, t.schedule.Type.String())
	t.logger.Info(ctx, "timed board reset",
		logger.Int("snapshots", len(snapshots)),
		logger.Time("previous_start", prevStart),
		logger.Time("next_reset", meta.NextResetTime),
	)
	t.observers.timedReset(ctx, TimedReset{
		Top:           t.id,
		Schedule:      t.schedule.Type.String(),
		PreviousStart: prevStart,
		NewStart:      now,
		NextReset:     meta.NextResetTime,
	})
	return nil
}
