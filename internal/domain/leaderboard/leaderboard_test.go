package leaderboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tops/internal/adapters/mq/worker"
	"github.com/okian/tops/internal/adapters/repository"
	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/internal/domain/ranking"
	"github.com/okian/tops/internal/domain/source"
	"github.com/okian/tops/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type eventLog struct {
	mu      sync.Mutex
	updates []PositionUpdate
	resets  []TimedReset
}

func (e *eventLog) OnPositionUpdate(_ context.Context, ev PositionUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updates = append(e.updates, ev)
}

func (e *eventLog) OnTimedReset(_ context.Context, ev TimedReset) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets = append(e.resets, ev)
}

type env struct {
	ctx    context.Context
	store  *repository.MemoryStore
	values *source.MemoryValues
	names  *source.Directory
	events *eventLog
	now    time.Time
}

func newEnv() *env {
	return &env{
		ctx:    context.Background(),
		store:  repository.NewMemoryStore(),
		values: source.NewMemoryValues(),
		names:  source.NewDirectory(),
		events: &eventLog{},
		now:    time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC),
	}
}

func (e *env) clock() time.Time { return e.now }

func (e *env) subject(key string, name string, value float64) model.Identifier {
	id := uuid.New()
	e.names.Join(id, name)
	e.values.Set(key, id, value)
	return id
}

func (e *env) board(id string, cfg Config) *Leaderboard {
	b, err := New(id, cfg, Deps{
		Store:    e.store,
		Values:   e.values.Source(id, nil),
		Names:    e.names,
		Executor: worker.Inline{},
	}, WithClock(e.clock), WithObserver(e.events))
	So(err, ShouldBeNil)
	return b
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero size", func(c *Config) { c.Size = 0 }, true},
		{"negative size", func(c *Config) { c.Size = -1 }, true},
		{"zero online interval", func(c *Config) { c.OnlineInterval = 0 }, true},
		{"zero rotative size", func(c *Config) { c.RotativeSize = 0 }, true},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, true},
		{"zero tick delay", func(c *Config) { c.TickDelay = 0 }, false},
		{"negative tick delay", func(c *Config) { c.TickDelay = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLeaderboard(t *testing.T) {
	Convey("Given a two-slot board", t, func() {
		e := newEnv()
		cfg := DefaultConfig()
		cfg.Size = 2
		cfg.BatchSize = 10
		b := e.board("kills", cfg)

		So(b.ID(), ShouldEqual, "kills")
		So(b.Kind(), ShouldEqual, KindNormal)
		So(b.Provider(), ShouldEqual, "kills")

		Convey("When A=5, B=15 and C=10 are processed at MEDIUM", func() {
			a := e.subject("kills", "alice", 5)
			bb := e.subject("kills", "bob", 15)
			c := e.subject("kills", "carol", 10)
			So(b.Enqueue(e.ctx, []model.Identifier{a, bb, c}, model.Medium, "test"), ShouldEqual, 3)
			So(b.ProcessBatch(e.ctx), ShouldEqual, 3)

			Convey("Then the cache holds B then C and A is out", func() {
				entries := b.Entries()
				So(len(entries), ShouldEqual, 2)
				So(entries[0].ID, ShouldEqual, bb)
				So(entries[0].Value, ShouldEqual, 15)
				So(entries[1].ID, ShouldEqual, c)
				So(b.InTop(a), ShouldBeFalse)
				So(b.Position(a), ShouldEqual, ranking.NotFound)
				So(b.Position(c), ShouldEqual, 2)
				So(b.Size(), ShouldEqual, 2)
				lo, _ := b.MinValue()
				hi, _ := b.MaxValue()
				So(lo, ShouldEqual, 10)
				So(hi, ShouldEqual, 15)
				first, ok := b.Entry(1)
				So(ok, ShouldBeTrue)
				So(first.Name, ShouldEqual, "bob")
			})

			Convey("Then observers saw each change with names", func() {
				So(len(e.events.updates), ShouldEqual, 3)
				So(e.events.updates[0].Top, ShouldEqual, "kills")
				So(e.events.updates[0].Name, ShouldEqual, "alice")
				So(*e.events.updates[2].NewPosition, ShouldEqual, 2)
			})

			Convey("And an unchanged subject is processed again", func() {
				b.MarkDirty(e.ctx, bb, "again")
				b.ProcessBatch(e.ctx)

				Convey("Then no event is emitted", func() {
					So(len(e.events.updates), ShouldEqual, 3)
				})
			})

			Convey("And the board is reset", func() {
				b.MarkDirty(e.ctx, a, "pending")
				So(b.Reset(e.ctx), ShouldBeNil)

				Convey("Then storage, cache and queue are empty", func() {
					So(b.Size(), ShouldEqual, 0)
					So(b.Pending(e.ctx), ShouldEqual, 0)
					n, _ := e.store.Size(e.ctx, "kills")
					So(n, ShouldEqual, 0)
				})
			})
		})

		Convey("When MarkDirty is called twice before a drain", func() {
			id := e.subject("kills", "dave", 1)
			So(b.MarkDirty(e.ctx, id, "a"), ShouldBeTrue)
			So(b.MarkDirty(e.ctx, id, "b"), ShouldBeFalse)
			So(b.Pending(e.ctx), ShouldEqual, 1)
		})

		Convey("When the store already has rows", func() {
			_, _ = e.store.Save(e.ctx, "kills", uuid.New(), "zed", 3, 2)
			So(b.Load(e.ctx), ShouldBeNil)
			So(b.Size(), ShouldEqual, 1)
		})

		Convey("When the store fails on load", func() {
			_, _ = e.store.Save(e.ctx, "kills", uuid.New(), "zed", 3, 2)
			So(b.Load(e.ctx), ShouldBeNil)
			_ = e.store.Close()

			Convey("Then the cache keeps its last snapshot", func() {
				So(b.Load(e.ctx), ShouldNotBeNil)
				So(b.Size(), ShouldEqual, 1)
			})
		})
	})
}

func TestNewRejectsBadInput(t *testing.T) {
	Convey("Given invalid board definitions", t, func() {
		e := newEnv()
		deps := Deps{Store: e.store, Values: e.values.Source("x", nil), Names: e.names, Executor: worker.Inline{}}

		_, err := New("", DefaultConfig(), deps)
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)

		cfg := DefaultConfig()
		cfg.Size = 0
		_, err = New("x", cfg, deps)
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)

		deps.Store = nil
		_, err = New("x", DefaultConfig(), deps)
		So(err, ShouldNotBeNil)
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given a registry", t, func() {
		e := newEnv()
		r := NewRegistry()
		a := e.board("b", DefaultConfig())
		b := e.board("a", DefaultConfig())

		So(r.Register(a), ShouldBeNil)
		So(r.Register(b), ShouldBeNil)

		Convey("Then duplicates are rejected", func() {
			So(errors.Is(r.Register(e.board("a", DefaultConfig())), ErrDuplicateBoard), ShouldBeTrue)
			So(r.Size(), ShouldEqual, 2)
		})

		Convey("Then lookups work and All is ordered", func() {
			got, err := r.Get("a")
			So(err, ShouldBeNil)
			So(got, ShouldEqual, b)
			_, err = r.Get("zzz")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			So(r.All()[0].ID(), ShouldEqual, "a")
			So(r.IsRegistered("b"), ShouldBeTrue)
			So(r.Timed(), ShouldBeEmpty)
		})

		Convey("When a board is unregistered", func() {
			removed, ok := r.Unregister(e.ctx, "b")

			Convey("Then it is gone and disabled", func() {
				So(ok, ShouldBeTrue)
				So(removed.Enabled(), ShouldBeFalse)
				So(r.IsRegistered("b"), ShouldBeFalse)
			})
		})

		Convey("When cleared", func() {
			r.Clear()
			So(r.Size(), ShouldEqual, 0)
		})
	})
}
