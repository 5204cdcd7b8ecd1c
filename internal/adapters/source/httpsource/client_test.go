package httpsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/sony/gobreaker/v2"

	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

type activeOnly map[model.Identifier]bool

func (a activeOnly) Active(context.Context) []model.Identifier { return nil }
func (a activeOnly) IsActive(id model.Identifier) bool        { return a[id] }

func TestClient(t *testing.T) {
	Convey("Given a value service", t, func() {
		known := uuid.New()
		var calls atomic.Int64
		var failing atomic.Bool

		mux := http.NewServeMux()
		mux.HandleFunc("GET /values/{key}/{id}", func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if failing.Load() {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			if r.PathValue("id") != known.String() {
				http.NotFound(w, r)
				return
			}
			fmt.Fprintf(w, `{"value": %d}`, len(r.PathValue("key")))
		})
		mux.HandleFunc("GET /names/{id}", func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("id") != known.String() {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, `{"name": "alice"}`)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		client, err := New(srv.URL, WithTimeout(time.Second))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When reading a known value", func() {
			v, ok := client.Source("kills", nil).Value(ctx, known)

			Convey("Then the value is returned", func() {
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 5)
			})
		})

		Convey("When reading an unknown identifier", func() {
			_, ok := client.Source("kills", nil).Value(ctx, uuid.New())
			_, err := client.Value(ctx, "kills", uuid.New())

			Convey("Then it is unavailable but the breaker stays closed", func() {
				So(ok, ShouldBeFalse)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(client.Available(), ShouldBeTrue)
			})
		})

		Convey("When the source requires active identifiers", func() {
			src := client.Source("kills", activeOnly{})
			_, ok := src.Value(ctx, known)

			Convey("Then inactive identifiers are not queried", func() {
				So(ok, ShouldBeFalse)
				So(calls.Load(), ShouldEqual, 0)
				So(src.RequiresActiveSubject(), ShouldBeTrue)
				So(src.Name(), ShouldEqual, "kills")
			})
		})

		Convey("When resolving names", func() {
			name, ok := client.Names().Resolve(ctx, known)
			_, missing := client.Names().Resolve(ctx, uuid.New())

			So(ok, ShouldBeTrue)
			So(name, ShouldEqual, "alice")
			So(missing, ShouldBeFalse)
		})

		Convey("When the upstream keeps failing", func() {
			failing.Store(true)
			src := client.Source("kills", nil)
			for i := 0; i < 5; i++ {
				_, err := client.Value(ctx, "kills", known)
				So(errors.Is(err, ErrUpstream), ShouldBeTrue)
			}
			So(src.Available(), ShouldBeTrue)
			_, err := client.Value(ctx, "kills", known)
			So(err, ShouldNotBeNil)

			Convey("Then the breaker opens and short-circuits", func() {
				So(src.Available(), ShouldBeFalse)
				before := calls.Load()
				_, err := client.Value(ctx, "kills", known)
				So(errors.Is(err, gobreaker.ErrOpenState), ShouldBeTrue)
				So(calls.Load(), ShouldEqual, before)
			})
		})
	})
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative"} {
		if _, err := New(raw); err == nil {
			t.Errorf("New(%q) expected error", raw)
		}
	}
}
