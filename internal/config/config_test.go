package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/tops/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.IOWorkers, convey.ShouldEqual, 4)
			convey.So(cfg.TickInterval, convey.ShouldEqual, 50*time.Millisecond)
			convey.So(cfg.ResetCheckInterval, convey.ShouldEqual, time.Minute)
			convey.So(cfg.GracePeriod, convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Storage.Driver, convey.ShouldEqual, config.DriverMemory)
		})

		convey.Convey("Then the default location is Local", func() {
			loc, err := config.New().Location()
			convey.So(err, convey.ShouldBeNil)
			convey.So(loc, convey.ShouldEqual, time.Local)
		})
	})
}

func TestBoardConfig_Validate(t *testing.T) {
	valid := func() config.BoardConfig {
		b := config.DefaultBoard()
		b.Provider = "kills"
		return b
	}
	tests := []struct {
		name    string
		mutate  func(*config.BoardConfig)
		wantErr error
	}{
		{"defaults", func(*config.BoardConfig) {}, nil},
		{"zero size", func(b *config.BoardConfig) { b.Size = 0 }, config.ErrInvalidConfig},
		{"zero online interval", func(b *config.BoardConfig) { b.Queues.OnlineInterval = 0 }, config.ErrInvalidConfig},
		{"negative rotative size", func(b *config.BoardConfig) { b.Queues.RotativeSize = -1 }, config.ErrInvalidConfig},
		{"zero batch size", func(b *config.BoardConfig) { b.Processing.BatchSize = 0 }, config.ErrInvalidConfig},
		{"zero tick delay allowed", func(b *config.BoardConfig) { b.Processing.TickDelay = 0 }, nil},
		{"negative tick delay", func(b *config.BoardConfig) { b.Processing.TickDelay = -1 }, config.ErrInvalidConfig},
		{"missing provider", func(b *config.BoardConfig) { b.Provider = "" }, config.ErrInvalidConfig},
		{"unknown type", func(b *config.BoardConfig) { b.Type = "hourly" }, config.ErrInvalidConfig},
		{"recursive provider", func(b *config.BoardConfig) { b.Provider = "%TOPS_kills_1%" }, config.ErrRecursiveProvider},
		{"timed without reset", func(b *config.BoardConfig) { b.Type = config.TypeTimed }, config.ErrInvalidConfig},
		{"timed with reset", func(b *config.BoardConfig) { b.Type = config.TypeTeamTimed; b.Reset = "daily" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(&b)
			err := b.Validate()
			switch {
			case tt.wantErr == nil && err != nil:
				t.Fatalf("unexpected error: %v", err)
			case tt.wantErr != nil && !errors.Is(err, tt.wantErr):
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBoardConfig_Leaderboard(t *testing.T) {
	b := config.DefaultBoard()
	b.Size = 25
	b.Queues.Rotative = true
	b.Processing.TickDelay = 3

	lc := b.Leaderboard()
	if lc.Size != 25 || !lc.RotativeEnabled || lc.TickDelay != 3 {
		t.Fatalf("unexpected conversion: %+v", lc)
	}
	if err := lc.Validate(); err != nil {
		t.Fatalf("converted config invalid: %v", err)
	}
	if !(config.BoardConfig{Type: config.TypeTeamTimed}).Team() {
		t.Fatal("team-timed should be a team board")
	}
}
