package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	worker "github.com/okian/tops/internal/adapters/mq/worker"
	logging "github.com/okian/tops/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

func TestExecutorRunsJobs(t *testing.T) {
	convey.Convey("Given a started executor", t, func() {
		ctx := context.Background()
		e := worker.NewExecutor(4, worker.WithName("test"))
		e.Start(ctx)
		defer func() { _ = e.Shutdown(ctx) }()

		convey.Convey("When many jobs are submitted", func() {
			var count atomic.Int64
			for i := 0; i < 100; i++ {
				convey.So(e.Submit(func(context.Context) { count.Add(1) }), convey.ShouldBeNil)
			}
			e.Wait()

			convey.Convey("Then all of them run", func() {
				convey.So(count.Load(), convey.ShouldEqual, 100)
				convey.So(e.Pending(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When jobs submit follow-up jobs", func() {
			var count atomic.Int64
			for i := 0; i < 10; i++ {
				_ = e.Submit(func(context.Context) {
					_ = e.Submit(func(context.Context) { count.Add(1) })
				})
			}
			e.Wait()

			convey.Convey("Then Wait covers the nested work", func() {
				convey.So(count.Load(), convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When a job panics", func() {
			var after atomic.Bool
			_ = e.Submit(func(context.Context) { panic("boom") })
			_ = e.Submit(func(context.Context) { after.Store(true) })
			e.Wait()

			convey.Convey("Then the executor keeps working", func() {
				convey.So(after.Load(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a nil job is submitted", func() {
			convey.So(e.Submit(nil), convey.ShouldNotBeNil)
		})
	})
}

func TestExecutorBoundsConcurrency(t *testing.T) {
	convey.Convey("Given an executor with two workers", t, func() {
		ctx := context.Background()
		e := worker.NewExecutor(2)
		e.Start(ctx)
		defer func() { _ = e.Shutdown(ctx) }()

		var running, peak atomic.Int64
		var mu sync.Mutex
		for i := 0; i < 12; i++ {
			_ = e.Submit(func(context.Context) {
				n := running.Add(1)
				mu.Lock()
				if n > peak.Load() {
					peak.Store(n)
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
			})
		}
		e.Wait()

		convey.So(peak.Load(), convey.ShouldBeLessThanOrEqualTo, 2)
		convey.So(e.Workers(), convey.ShouldEqual, 2)
	})
}

func TestExecutorDefaults(t *testing.T) {
	e := worker.NewExecutor(0)
	if e.Workers() != 4 {
		t.Errorf("expected default of 4 workers, got %d", e.Workers())
	}
	if err := e.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown of unstarted executor failed: %v", err)
	}
}

func TestExecutorShutdown(t *testing.T) {
	convey.Convey("Given an executor that is shut down", t, func() {
		ctx := context.Background()
		e := worker.NewExecutor(1)
		e.Start(ctx)

		release := make(chan struct{})
		started := make(chan struct{})
		_ = e.Submit(func(context.Context) {
			close(started)
			<-release
		})
		<-started
		for i := 0; i < 3; i++ {
			_ = e.Submit(func(context.Context) {})
		}

		errCh := make(chan error, 1)
		go func() { errCh <- e.Shutdown(ctx) }()
		time.Sleep(10 * time.Millisecond)
		close(release)

		convey.So(<-errCh, convey.ShouldBeNil)

		convey.Convey("Then new submissions are refused", func() {
			err := e.Submit(func(context.Context) {})
			convey.So(errors.Is(err, worker.ErrStopped), convey.ShouldBeTrue)
		})

		convey.Convey("Then Wait does not hang on dropped backlog", func() {
			done := make(chan struct{})
			go func() { e.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("Wait hung after shutdown")
			}
		})
	})
}

func TestExecutorBacklogFull(t *testing.T) {
	convey.Convey("Given an executor with a single backlog slot that is not started", t, func() {
		e := worker.NewExecutor(1, worker.WithBacklog(1))
		defer func() { _ = e.Shutdown(context.Background()) }()

		convey.So(e.Submit(func(context.Context) {}), convey.ShouldBeNil)

		convey.Convey("Then the next submission is refused without blocking", func() {
			err := e.Submit(func(context.Context) {})
			convey.So(errors.Is(err, worker.ErrBacklogFull), convey.ShouldBeTrue)
			convey.So(e.Pending(), convey.ShouldEqual, 1)
		})
	})
}

func TestExecutorShutdownTimeout(t *testing.T) {
	ctx := context.Background()
	e := worker.NewExecutor(1)
	e.Start(ctx)
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	_ = e.Submit(func(context.Context) { close(started); <-block })
	<-started

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := e.Shutdown(short); err == nil {
		t.Error("expected shutdown to time out while a job is blocked")
	}
}
