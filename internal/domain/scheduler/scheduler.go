// Package scheduler drives every registered board from a single ticking
// goroutine. I/O never runs on that goroutine; boards hand it to the
// executor.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tops/internal/adapters/mq/worker"
	"github.com/okian/tops/internal/domain/leaderboard"
	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/internal/domain/source"
	"github.com/okian/tops/pkg/logger"
	"github.com/okian/tops/pkg/metrics"
)

const (
	defaultTick             = 50 * time.Millisecond
	defaultOnlineInterval   = 20 * defaultTick
	defaultRotativeInterval = 40 * defaultTick
	defaultResetInterval    = 1200 * defaultTick
	defaultRotativeChunk    = 10

	reasonOnline   = "online_periodic"
	reasonRotative = "rotative_check"
	reasonStartup  = "server_startup"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Scheduler runs four duties over the registry:
//
//  1. processing, every tick
//  2. re-enqueue of active identifiers
//  3. rotating re-validation of ranked identifiers
//  4. reset of due timed boards
type Scheduler struct {
	registry *leaderboard.Registry
	active   source.ActiveSet
	exec     worker.Submitter

	tick             time.Duration
	onlineInterval   time.Duration
	rotativeInterval time.Duration
	resetInterval    time.Duration
	chunk            int
	now              func() time.Time
	logger           logger.Logger

	mu          sync.Mutex
	ticks       uint64
	nextProcess map[string]time.Time
	nextOnline  map[string]time.Time
	offsets     map[string]int

	startOnce sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// New creates a scheduler. active may be nil when no board uses online sweeps.
func New(registry *leaderboard.Registry, active source.ActiveSet, exec worker.Submitter, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:         registry,
		active:           active,
		exec:             exec,
		tick:             defaultTick,
		onlineInterval:   defaultOnlineInterval,
		rotativeInterval: defaultRotativeInterval,
		resetInterval:    defaultResetInterval,
		chunk:            defaultRotativeChunk,
		now:              time.Now,
		nextProcess:      make(map[string]time.Time),
		nextOnline:       make(map[string]time.Time),
		offsets:          make(map[string]int),
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("scheduler")
	}
	return s
}

func (s *Scheduler) every(d time.Duration) uint64 {
	n := uint64(d / s.tick)
	if n < 1 {
		return 1
	}
	return n
}

// Start waits for every timed board to load its snapshots, pre-enqueues
// the known identifiers, then starts ticking in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	s.startOnce.Do(func() {
		if err = s.awaitReady(ctx); err != nil {
			close(s.done)
			return
		}
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.loop(ctx)
	})
	return err
}

func (s *Scheduler) awaitReady(ctx context.Context) error {
	timed := s.registry.Timed()
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range timed {
		g.Go(func() error {
			if err := t.Delta().Wait(gctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				// a failed load leaves the board running without stored snapshots
				s.logger.Warn(gctx, "snapshot load failed", logger.String("top", t.ID()), logger.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, t := range timed {
		n := t.Enqueue(ctx, t.Delta().SnapshotIDs(), model.High, reasonStartup)
		if n > 0 {
			s.logger.Info(ctx, "pre-enqueued snapshot identifiers", logger.String("top", t.ID()), logger.Int("count", n))
		}
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	s.logger.Info(ctx, "scheduler started", logger.Duration("tick", s.tick))
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop ends the loop and waits until no further tick can start. In-flight
// executor work is not awaited.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return nil
	}
	close(s.stop)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one scheduler step. The loop calls it; tests may too.
func (s *Scheduler) Tick(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	s.ticks++
	n := s.ticks
	s.mu.Unlock()

	boards := s.registry.All()
	s.process(ctx, boards)
	if n%s.every(s.onlineInterval) == 0 {
		s.online(ctx, boards)
	}
	if n%s.every(s.rotativeInterval) == 0 {
		s.rotate(ctx, boards)
	}
	if n%s.every(s.resetInterval) == 0 {
		s.resets(ctx)
	}
	metrics.RecordTickDuration(time.Since(start))
}

// due reports whether the per-board deadline in next has passed and, if so,
// moves it period ahead.
func (s *Scheduler) due(next map[string]time.Time, id string, now time.Time, period time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := next[id]; ok && now.Before(at) {
		return false
	}
	next[id] = now.Add(period)
	return true
}

func (s *Scheduler) process(ctx context.Context, boards []leaderboard.Board) {
	metrics.RecordDuty("process")
	now := s.now()
	for _, b := range boards {
		if !b.Enabled() {
			continue
		}
		delay := b.Config().TickDelay
		if delay > 1 && !s.due(s.nextProcess, b.ID(), now, time.Duration(delay)*s.tick) {
			continue
		}
		b.ProcessBatch(ctx)
	}
}

func (s *Scheduler) online(ctx context.Context, boards []leaderboard.Board) {
	if s.active == nil {
		return
	}
	metrics.RecordDuty("online")
	ids := s.active.Active(ctx)
	if len(ids) == 0 {
		// deadlines stay put so the first identifier to arrive is swept at once
		return
	}
	now := s.now()
	for _, b := range boards {
		cfg := b.Config()
		if !cfg.OnlineEnabled {
			continue
		}
		period := time.Duration(max(1, cfg.OnlineInterval)) * s.tick
		if !s.due(s.nextOnline, b.ID(), now, period) {
			continue
		}
		b.Enqueue(ctx, ids, model.High, reasonOnline)
	}
}

func (s *Scheduler) rotate(ctx context.Context, boards []leaderboard.Board) {
	metrics.RecordDuty("rotative")
	for _, b := range boards {
		cfg := b.Config()
		if !cfg.RotativeEnabled {
			continue
		}
		entries := b.Entries()
		window := min(cfg.RotativeSize, len(entries))
		if window == 0 {
			continue
		}
		s.mu.Lock()
		offset := s.offsets[b.ID()] % window
		end := min(offset+s.chunk, window)
		if end >= window {
			s.offsets[b.ID()] = 0
		} else {
			s.offsets[b.ID()] = end
		}
		s.mu.Unlock()

		ids := make([]model.Identifier, 0, end-offset)
		for _, e := range entries[offset:end] {
			ids = append(ids, e.ID)
		}
		b.Enqueue(ctx, ids, model.Medium, reasonRotative)
	}
}

func (s *Scheduler) resets(ctx context.Context) {
	metrics.RecordDuty("reset")
	for _, t := range s.registry.Timed() {
		if !t.ShouldReset() {
			continue
		}
		err := s.exec.Submit(func(jobCtx context.Context) {
			// Reset logs its own failures.
			_ = t.Reset(jobCtx)
		})
		if err != nil {
			s.logger.Warn(ctx, "could not schedule reset", logger.String("top", t.ID()), logger.Error(err))
		}
	}
}
