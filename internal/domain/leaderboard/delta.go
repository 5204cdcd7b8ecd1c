package leaderboard

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tops/internal/adapters/mq/worker"
	"github.com/okian/tops/internal/adapters/repository"
	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/internal/domain/source"
	"github.com/okian/tops/pkg/logger"
)

const (
	defaultGracePeriod = 10 * time.Second
	rawValueTTL        = 100 * time.Millisecond
)

type rawReading struct {
	value float64
	ok    bool
	at    time.Time
}

// DeltaSource reports how much a base value grew since the identifier's
// snapshot, the raw value recorded at the last reset.
//
// It borrows the base source and the snapshot store. Until the stored
// snapshots are loaded every value is unavailable.
type DeltaSource struct {
	top    string
	base   source.ScoreSource
	store  repository.SnapshotStore
	exec   worker.Submitter
	now    func() time.Time
	logger logger.Logger

	created time.Time
	grace   time.Duration

	mu        sync.RWMutex
	snapshots map[model.Identifier]float64
	raw       map[model.Identifier]rawReading

	initialized atomic.Bool
	ready       chan struct{}
	loadErr     error
}

var _ source.ScoreSource = (*DeltaSource)(nil)

// NewDeltaSource creates the source and schedules the snapshot load on exec.
func NewDeltaSource(top string, base source.ScoreSource, store repository.SnapshotStore, exec worker.Submitter, grace time.Duration, now func() time.Time, log logger.Logger) *DeltaSource {
	if now == nil {
		now = time.Now
	}
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	if log == nil {
		log = logger.Get().Named("delta")
	}
	d := &DeltaSource{
		top:       top,
		base:      base,
		store:     store,
		exec:      exec,
		now:       now,
		logger:    log,
		created:   now(),
		grace:     grace,
		snapshots: make(map[model.Identifier]float64),
		raw:       make(map[model.Identifier]rawReading),
		ready:     make(chan struct{}),
	}
	if err := exec.Submit(d.load); err != nil {
		d.finishLoad(err)
	}
	return d
}

func (d *DeltaSource) load(ctx context.Context) {
	snaps, err := d.store.Snapshots(ctx, d.top)
	if err == nil {
		d.mu.Lock()
		for id, v := range snaps {
			d.snapshots[id] = v
		}
		d.mu.Unlock()
	}
	d.finishLoad(err)
}

func (d *DeltaSource) finishLoad(err error) {
	if err != nil {
		d.logger.Error(context.Background(), "snapshot load failed", logger.String("top", d.top), logger.Error(err))
		d.loadErr = err
	}
	d.initialized.Store(true)
	close(d.ready)
}

// Ready is closed once the initial snapshot load finished.
func (d *DeltaSource) Ready() <-chan struct{} { return d.ready }

// Wait blocks until the initial load finished and returns its error.
func (d *DeltaSource) Wait(ctx context.Context) error {
	select {
	case <-d.ready:
		return d.loadErr
	default:
	}
	select {
	case <-d.ready:
		return d.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *DeltaSource) Name() string { return "Timed[" + d.base.Name() + "]" }

func (d *DeltaSource) RequiresActiveSubject() bool { return d.base.RequiresActiveSubject() }

func (d *DeltaSource) Available() bool { return d.initialized.Load() && d.base.Available() }

// Raw returns the base value through the short-lived reading cache.
func (d *DeltaSource) Raw(ctx context.Context, id model.Identifier) (float64, bool) {
	now := d.now()
	d.mu.RLock()
	r, hit := d.raw[id]
	d.mu.RUnlock()
	if hit && now.Sub(r.at) < rawValueTTL {
		return r.value, r.ok
	}
	v, ok := d.base.Value(ctx, id)
	d.mu.Lock()
	d.raw[id] = rawReading{value: v, ok: ok, at: now}
	d.mu.Unlock()
	return v, ok
}

// Value returns max(0, raw - snapshot). A missing or non-positive raw value
// is unavailable. Without a snapshot the value is unavailable during the
// grace period; afterwards the current raw value becomes the snapshot.
func (d *DeltaSource) Value(ctx context.Context, id model.Identifier) (float64, bool) {
	if !d.initialized.Load() {
		return 0, false
	}
	raw, ok := d.Raw(ctx, id)
	if !ok || raw <= 0 {
		return 0, false
	}

	d.mu.RLock()
	snap, has := d.snapshots[id]
	d.mu.RUnlock()
	if !has {
		if d.now().Sub(d.created) < d.grace {
			return 0, false
		}
		d.mu.Lock()
		snap, has = d.snapshots[id]
		if !has {
			snap = raw
			d.snapshots[id] = raw
		}
		d.mu.Unlock()
		if !has {
			d.persist(ctx, id, raw)
		}
	}
	return math.Max(0, raw-snap), true
}

func (d *DeltaSource) persist(ctx context.Context, id model.Identifier, value float64) {
	err := d.exec.Submit(func(jobCtx context.Context) {
		if err := d.store.SetSnapshot(jobCtx, d.top, id, value); err != nil {
			d.logger.Warn(jobCtx, "snapshot write failed", logger.String("top", d.top), logger.String("id", id.String()), logger.Error(err))
		}
	})
	if err != nil {
		d.logger.Warn(ctx, "could not schedule snapshot write", logger.String("top", d.top), logger.Error(err))
	}
}

// Snapshot returns the zero-point of id.
func (d *DeltaSource) Snapshot(id model.Identifier) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.snapshots[id]
	return v, ok
}

// SnapshotIDs lists every identifier with a snapshot.
func (d *DeltaSource) SnapshotIDs() []model.Identifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Identifier, 0, len(d.snapshots))
	for id := range d.snapshots {
		out = append(out, id)
	}
	return out
}

// UpdateSnapshots persists values as new zero-points and drops cached raw
// readings.
func (d *DeltaSource) UpdateSnapshots(ctx context.Context, values map[model.Identifier]float64) error {
	if len(values) > 0 {
		if err := d.store.SaveSnapshots(ctx, d.top, values); err != nil {
			return err
		}
	}
	d.mu.Lock()
	for id, v := range values {
		d.snapshots[id] = v
	}
	d.raw = make(map[model.Identifier]rawReading)
	d.mu.Unlock()
	return nil
}
