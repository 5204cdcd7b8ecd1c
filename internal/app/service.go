// Package service wires stores, sources, boards and the scheduler into the
// process and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tops/internal/adapters/mq/publisher"
	"github.com/okian/tops/internal/adapters/mq/worker"
	"github.com/okian/tops/internal/adapters/repository"
	"github.com/okian/tops/internal/adapters/source/httpsource"
	"github.com/okian/tops/internal/config"
	"github.com/okian/tops/internal/domain/leaderboard"
	"github.com/okian/tops/internal/domain/scheduler"
	"github.com/okian/tops/internal/domain/source"
	"github.com/okian/tops/internal/domain/team"
	"github.com/okian/tops/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")

// Service owns every runtime component.
type Service struct {
	mu sync.Mutex

	cfg *config.Config
	loc *time.Location
	now func() time.Time

	// Core components
	store     repository.PersistentStore
	exec      *worker.Executor
	directory *source.Directory
	values    *source.MemoryValues
	client    *httpsource.Client
	teams     *team.Service
	hook      *team.StaticHook
	registry  *leaderboard.Registry
	scheduler *scheduler.Scheduler
	publisher *publisher.NATS
	observers []leaderboard.Observer

	// State
	started bool
	ready   atomic.Bool
	cancel  context.CancelFunc

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore replaces the store selected by configuration.
func WithStore(store repository.PersistentStore) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithValues replaces the in-memory value table used when no HTTP source
// is configured.
func WithValues(values *source.MemoryValues) Option {
	return func(s *Service) {
		if values != nil {
			s.values = values
		}
	}
}

// WithObserver attaches obs to every board.
func WithObserver(obs leaderboard.Observer) Option {
	return func(s *Service) {
		if obs != nil {
			s.observers = append(s.observers, obs)
		}
	}
}

// WithClock overrides time.Now for boards and the scheduler.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service from cfg. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:       cfg,
		loc:       loc,
		now:       time.Now,
		directory: source.NewDirectory(),
		registry:  leaderboard.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.values == nil {
		s.values = source.NewMemoryValues()
	}
	return s, nil
}

// Start opens storage, builds and loads the boards, waits for timed boards
// to read their snapshots and starts the scheduler. A board that fails to
// build or load is logged and skipped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting tops service...")

	if err := s.openStore(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.exec = worker.NewExecutor(s.cfg.IOWorkers)
	s.exec.Start(runCtx)

	if err := s.openSources(); err != nil {
		s.abort()
		return err
	}
	if s.cfg.NATS.URL != "" {
		pub, err := publisher.New(publisher.Config{URL: s.cfg.NATS.URL, Prefix: s.cfg.NATS.SubjectPrefix, Name: "tops"})
		if err != nil {
			// boards keep working without events
			s.logger.Error(ctx, "event publisher disabled", logger.Error(err))
		} else {
			s.publisher = pub
			s.observers = append(s.observers, pub)
		}
	}

	s.buildBoards(ctx)

	s.scheduler = scheduler.New(s.registry, s.directory, s.exec,
		scheduler.WithTickInterval(s.cfg.TickInterval),
		scheduler.WithOnlineInterval(s.cfg.OnlineInterval),
		scheduler.WithRotativeInterval(s.cfg.RotativeInterval),
		scheduler.WithResetCheckInterval(s.cfg.ResetCheckInterval),
		scheduler.WithRotativeChunk(s.cfg.RotativeChunk),
		scheduler.WithClock(s.now),
	)
	if err := s.scheduler.Start(runCtx); err != nil {
		s.abort()
		return fmt.Errorf("start scheduler: %w", err)
	}

	s.started = true
	s.ready.Store(true)
	s.logger.Info(ctx, "tops service started",
		logger.Int("boards", s.registry.Size()),
		logger.Int("io_workers", s.exec.Workers()),
		logger.String("storage", s.cfg.Storage.Driver),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) error {
	if s.store == nil {
		switch s.cfg.Storage.Driver {
		case config.DriverSQLite:
			st, err := repository.NewSQLiteStore(ctx, s.cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("open sqlite store: %w", err)
			}
			s.store = st
		default:
			s.store = repository.NewMemoryStore()
		}
	}
	if err := s.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	return nil
}

func (s *Service) openSources() error {
	if s.cfg.Source.URL != "" {
		client, err := httpsource.New(s.cfg.Source.URL, httpsource.WithTimeout(s.cfg.Source.Timeout))
		if err != nil {
			return fmt.Errorf("%w: source: %w", config.ErrInvalidConfig, err)
		}
		s.client = client
	}
	teams, err := parseTeams(s.cfg.Teams)
	if err != nil {
		return err
	}
	s.hook = team.NewStaticHook("config", 0, teams)
	s.teams = team.NewService(team.NewHandler(s.hook), team.WithClock(s.now))
	return nil
}

// abort releases what Start opened before failing.
func (s *Service) abort() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.exec != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.exec.Shutdown(ctx)
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// Stop halts the scheduler first so no new work is produced, then drains
// the executor and closes the publisher and the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping tops service...")
	s.ready.Store(false)

	var errs []error
	if err := s.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	for _, b := range s.registry.All() {
		b.SetEnabled(ctx, false)
	}
	if err := s.exec.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown executor: %w", err))
	}
	s.cancel()
	if s.publisher != nil {
		if err := s.publisher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "tops service stopped")
	return errors.Join(errs...)
}

// Ready reports whether the service is started and accepting work.
func (s *Service) Ready() bool { return s.ready.Load() }

// Registry exposes the registered boards.
func (s *Service) Registry() *leaderboard.Registry { return s.registry }

// Values exposes the in-memory value table.
func (s *Service) Values() *source.MemoryValues { return s.values }

// Directory exposes the active identifier set.
func (s *Service) Directory() *source.Directory { return s.directory }

// Teams exposes the configured team hook so members can be changed at runtime.
func (s *Service) Teams() *team.StaticHook { return s.hook }
