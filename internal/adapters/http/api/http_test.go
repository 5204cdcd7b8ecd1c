package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/tops/internal/adapters/http/api"
	"github.com/okian/tops/internal/domain/types"
	"github.com/okian/tops/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

type mockDeps struct {
	boards     map[string]types.Board
	entries    map[string][]types.Entry
	activities []types.Activity
	failWith   error
	lastLimit  int
}

func newMockDeps() *mockDeps {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	entries := []types.Entry{
		{Position: 1, ID: uuid.NewString(), Name: "alice", Value: 30, LastUpdated: now},
		{Position: 2, ID: uuid.NewString(), Name: "bob", Value: 20, LastUpdated: now},
		{Position: 3, ID: uuid.NewString(), Name: "carol", Value: 10, LastUpdated: now},
	}
	return &mockDeps{
		boards: map[string]types.Board{
			"kills": {ID: "kills", Kind: "normal", Provider: "kills", Size: 3, MaxSize: 10, Enabled: true},
		},
		entries: map[string][]types.Entry{"kills": entries},
	}
}

func (m *mockDeps) Boards(context.Context) []types.Board {
	out := make([]types.Board, 0, len(m.boards))
	for _, b := range m.boards {
		out = append(out, b)
	}
	return out
}

func (m *mockDeps) Board(_ context.Context, id string) (types.Board, error) {
	b, ok := m.boards[id]
	if !ok {
		return types.Board{}, fmt.Errorf("board %q: %w", id, api.ErrNotFound)
	}
	return b, nil
}

func (m *mockDeps) Top(_ context.Context, id string, limit int) ([]types.Entry, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.lastLimit = limit
	list := m.entries[id]
	if limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (m *mockDeps) Position(_ context.Context, id string, identifier uuid.UUID) (types.Position, error) {
	if _, ok := m.boards[id]; !ok {
		return types.Position{}, api.ErrNotFound
	}
	for _, e := range m.entries[id] {
		if e.ID == identifier.String() {
			return types.Position{Top: id, ID: e.ID, Position: e.Position, InTop: true, Entry: &e}, nil
		}
	}
	return types.Position{Top: id, ID: identifier.String(), Position: -1}, nil
}

func (m *mockDeps) EntryAt(_ context.Context, id string, pos int) (types.Entry, error) {
	list := m.entries[id]
	if pos > len(list) {
		return types.Entry{}, api.ErrNotFound
	}
	return list[pos-1], nil
}

func (m *mockDeps) Activity(_ context.Context, a types.Activity) (types.ActivityResult, error) {
	if m.failWith != nil {
		return types.ActivityResult{}, m.failWith
	}
	m.activities = append(m.activities, a)
	return types.ActivityResult{Status: "accepted", Enqueued: len(m.boards)}, nil
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestBoardRoutes(t *testing.T) {
	Convey("Given an API server with one board", t, func() {
		deps := newMockDeps()
		mux := newMux(deps, api.WithMaxLimit(100))

		Convey("When listing boards", func() {
			rec := do(mux, http.MethodGet, "/tops", "")

			Convey("Then the board summary is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				var boards []types.Board
				So(json.Unmarshal(rec.Body.Bytes(), &boards), ShouldBeNil)
				So(boards, ShouldHaveLength, 1)
				So(boards[0].ID, ShouldEqual, "kills")
			})
		})

		Convey("When reading a board without a limit", func() {
			rec := do(mux, http.MethodGet, "/tops/kills", "")

			Convey("Then every entry up to the board size is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 3)
				var body struct {
					Board   types.Board   `json:"board"`
					Entries []types.Entry `json:"entries"`
				}
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body.Board.ID, ShouldEqual, "kills")
				So(body.Entries, ShouldHaveLength, 3)
				So(body.Entries[0].Name, ShouldEqual, "alice")
			})
		})

		Convey("When reading a board with limit=2", func() {
			rec := do(mux, http.MethodGet, "/tops/kills?limit=2", "")

			Convey("Then two entries are returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 2)
			})
		})

		Convey("When the limit is invalid or too large", func() {
			for _, q := range []string{"limit=0", "limit=abc", "limit=-3"} {
				So(do(mux, http.MethodGet, "/tops/kills?"+q, "").Code, ShouldEqual, http.StatusBadRequest)
			}
			rec := do(mux, http.MethodGet, "/tops/kills?limit=101", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(rec.Body.String(), ShouldContainSubstring, "limit_exceeded")
		})

		Convey("When the board does not exist", func() {
			rec := do(mux, http.MethodGet, "/tops/nope", "")

			Convey("Then 404 is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusNotFound)
				So(rec.Body.String(), ShouldContainSubstring, "not_found")
			})
		})

		Convey("When the read fails upstream", func() {
			deps.failWith = errors.New("store down")
			rec := do(mux, http.MethodGet, "/tops/kills", "")

			Convey("Then 500 is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
				So(rec.Body.String(), ShouldContainSubstring, "store down")
			})
		})

		Convey("When using the wrong method", func() {
			So(do(mux, http.MethodPost, "/tops", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestPositionRoutes(t *testing.T) {
	Convey("Given an API server with ranked entries", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)
		bob := deps.entries["kills"][1]

		Convey("When asking for a ranked identifier", func() {
			rec := do(mux, http.MethodGet, "/tops/kills/position/"+bob.ID, "")

			Convey("Then its position and entry are returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				var pos types.Position
				So(json.Unmarshal(rec.Body.Bytes(), &pos), ShouldBeNil)
				So(pos.Position, ShouldEqual, 2)
				So(pos.InTop, ShouldBeTrue)
				So(pos.Entry.Name, ShouldEqual, "bob")
			})
		})

		Convey("When asking for an unranked identifier", func() {
			rec := do(mux, http.MethodGet, "/tops/kills/position/"+uuid.NewString(), "")

			Convey("Then position -1 is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				var pos types.Position
				So(json.Unmarshal(rec.Body.Bytes(), &pos), ShouldBeNil)
				So(pos.Position, ShouldEqual, -1)
				So(pos.InTop, ShouldBeFalse)
				So(pos.Entry, ShouldBeNil)
			})
		})

		Convey("When the identifier is not a UUID", func() {
			So(do(mux, http.MethodGet, "/tops/kills/position/bob", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the board is unknown", func() {
			So(do(mux, http.MethodGet, "/tops/nope/position/"+bob.ID, "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When reading the entry at a position", func() {
			rec := do(mux, http.MethodGet, "/tops/kills/entry/1", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var e types.Entry
			So(json.Unmarshal(rec.Body.Bytes(), &e), ShouldBeNil)
			So(e.Name, ShouldEqual, "alice")

			So(do(mux, http.MethodGet, "/tops/kills/entry/0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/tops/kills/entry/x", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/tops/kills/entry/9", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestActivityRoute(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)
		id := uuid.NewString()

		Convey("When a join is posted", func() {
			rec := do(mux, http.MethodPost, "/activity", fmt.Sprintf(`{"id":%q,"name":" dave ","action":"join"}`, id))

			Convey("Then it is accepted and forwarded", func() {
				So(rec.Code, ShouldEqual, http.StatusAccepted)
				So(deps.activities, ShouldHaveLength, 1)
				So(deps.activities[0].Name, ShouldEqual, "dave")
				So(deps.activities[0].Action, ShouldEqual, types.ActionJoin)
				var res types.ActivityResult
				So(json.Unmarshal(rec.Body.Bytes(), &res), ShouldBeNil)
				So(res.Enqueued, ShouldEqual, 1)
			})
		})

		Convey("When the body is invalid", func() {
			tests := []string{
				`not json`,
				`{"action":"join"}`,
				fmt.Sprintf(`{"id":%q,"action":"dance"}`, id),
				`{"id":"not-a-uuid","action":"quit"}`,
			}
			for _, body := range tests {
				So(do(mux, http.MethodPost, "/activity", body).Code, ShouldEqual, http.StatusBadRequest)
			}
			So(deps.activities, ShouldBeEmpty)
		})

		Convey("When the service is unavailable", func() {
			deps.failWith = fmt.Errorf("executor: %w", api.ErrUnavailable)
			rec := do(mux, http.MethodPost, "/activity", fmt.Sprintf(`{"id":%q,"action":"quit"}`, id))
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestHealthRoutes(t *testing.T) {
	Convey("Given an API server with a readiness probe", t, func() {
		ready := false
		mux := newMux(newMockDeps(), api.WithReadiness(func() bool { return ready }))

		Convey("Then /healthz follows readiness", func() {
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusServiceUnavailable)
			ready = true
			rec := do(mux, http.MethodGet, "/healthz", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "ok")
		})

		Convey("Then /metrics exposes request counters", func() {
			do(mux, http.MethodGet, "/tops", "")
			rec := do(mux, http.MethodGet, "/metrics", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "http_requests_total")
		})
	})
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		kind error
		want string
	}{
		{"kind only", api.NewKind("op", api.ErrNotFound), api.ErrNotFound, "op: not found"},
		{"kind and cause", api.WrapKind("op", api.ErrBadRequest, cause), api.ErrBadRequest, "op: bad request: boom"},
		{"cause only", api.Wrap("op", cause), cause, "op: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.kind) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.kind)
			}
			if tt.err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.want)
			}
		})
	}
}
