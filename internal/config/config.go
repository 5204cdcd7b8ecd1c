// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Process settings live on Config, per-board settings on BoardConfig.
// - Defaults come from New and DefaultBoard; Load layers file and env on top.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/tops/internal/domain/leaderboard"
)

// Board types.
const (
	TypeNormal    = "normal"
	TypeTimed     = "timed"
	TypeTeam      = "team"
	TypeTeamTimed = "team-timed"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// recursiveToken marks placeholder keys that resolve through this service.
const recursiveToken = "%tops_"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// MaxTopLimit caps GET /tops/{id}?limit.
	MaxTopLimit int `koanf:"max_top_limit"`

	Storage StorageConfig `koanf:"storage"`

	// IOWorkers sizes the executor that runs every durable read and write.
	IOWorkers int `koanf:"io_workers"`

	TickInterval       time.Duration `koanf:"tick_interval"`
	OnlineInterval     time.Duration `koanf:"online_interval"`
	RotativeInterval   time.Duration `koanf:"rotative_interval"`
	ResetCheckInterval time.Duration `koanf:"reset_check_interval"`
	RotativeChunk      int           `koanf:"rotative_chunk"`
	BatchFlushInterval time.Duration `koanf:"batch_flush_interval"`

	// GracePeriod is how long a timed board waits for stored snapshots
	// before adopting the first observed value as the zero point.
	GracePeriod time.Duration `koanf:"grace_period"`

	// Timezone is the IANA zone used for reset boundaries. Empty means Local.
	Timezone string `koanf:"timezone"`

	NATS   NATSConfig   `koanf:"nats"`
	Source SourceConfig `koanf:"source"`

	// Teams maps a team key to its display name and members.
	Teams map[string]TeamConfig `koanf:"teams"`

	// Boards is filled by Load with per-board defaults applied.
	Boards map[string]BoardConfig `koanf:"-"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// SourceConfig enables the HTTP value source when URL is set.
type SourceConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// TeamConfig declares one team.
type TeamConfig struct {
	Name    string   `koanf:"name"`
	Members []string `koanf:"members"`
}

// QueueConfig controls how identifiers are fed to a board.
type QueueConfig struct {
	Online         bool `koanf:"online"`
	OnlineInterval int  `koanf:"online_interval" validate:"gt=0"`
	Rotative       bool `koanf:"rotative"`
	RotativeSize   int  `koanf:"rotative_size" validate:"gt=0"`
}

// ProcessingConfig controls how fast a board drains its queue.
type ProcessingConfig struct {
	BatchSize int `koanf:"batch_size" validate:"gt=0"`
	TickDelay int `koanf:"tick_delay" validate:"gte=0"`
}

// BoardConfig is the configuration of one board.
type BoardConfig struct {
	Type       string           `koanf:"type" validate:"oneof=normal timed team team-timed"`
	Provider   string           `koanf:"provider" validate:"required"`
	Size       int              `koanf:"size" validate:"gt=0"`
	Queues     QueueConfig      `koanf:"queues"`
	Processing ProcessingConfig `koanf:"processing"`
	// Reset is the schedule token of timed boards.
	Reset string `koanf:"reset"`
	// RequireActive limits values to identifiers that joined and have not quit.
	RequireActive bool `koanf:"require_active"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		MaxTopLimit:        1000,
		Storage:            StorageConfig{Driver: DriverMemory},
		IOWorkers:          4,
		TickInterval:       50 * time.Millisecond,
		OnlineInterval:     time.Second,
		RotativeInterval:   2 * time.Second,
		ResetCheckInterval: time.Minute,
		RotativeChunk:      10,
		BatchFlushInterval: 5 * time.Second,
		GracePeriod:        10 * time.Second,
		NATS:               NATSConfig{SubjectPrefix: "tops"},
		Source:             SourceConfig{Timeout: 2 * time.Second},
		Teams:              map[string]TeamConfig{},
		Boards:             map[string]BoardConfig{},
	}
}

// DefaultBoard returns the defaults applied to every board before its keys.
func DefaultBoard() BoardConfig {
	d := leaderboard.DefaultConfig()
	return BoardConfig{
		Type: TypeNormal,
		Size: d.Size,
		Queues: QueueConfig{
			Online:         d.OnlineEnabled,
			OnlineInterval: d.OnlineInterval,
			Rotative:       d.RotativeEnabled,
			RotativeSize:   d.RotativeSize,
		},
		Processing: ProcessingConfig{
			BatchSize: d.BatchSize,
			TickDelay: d.TickDelay,
		},
	}
}

var validate = validator.New()

// Validate checks the board. A failing board is skipped; others still load.
func (b BoardConfig) Validate() error {
	if err := validate.Struct(b); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed %s %s, got %v", ErrInvalidConfig, f.Namespace(), f.Tag(), f.Param(), f.Value())
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if strings.Contains(strings.ToLower(b.Provider), recursiveToken) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrRecursiveProvider, b.Provider)
	}
	if b.Timed() && strings.TrimSpace(b.Reset) == "" {
		return fmt.Errorf("%w: reset is required for %s boards", ErrInvalidConfig, b.Type)
	}
	return nil
}

// Timed reports whether the board resets on a schedule.
func (b BoardConfig) Timed() bool { return b.Type == TypeTimed || b.Type == TypeTeamTimed }

// Team reports whether the board ranks teams.
func (b BoardConfig) Team() bool { return b.Type == TypeTeam || b.Type == TypeTeamTimed }

// Leaderboard converts the board config to the runtime config.
func (b BoardConfig) Leaderboard() leaderboard.Config {
	return leaderboard.Config{
		Size:            b.Size,
		OnlineEnabled:   b.Queues.Online,
		OnlineInterval:  b.Queues.OnlineInterval,
		RotativeEnabled: b.Queues.Rotative,
		RotativeSize:    b.Queues.RotativeSize,
		BatchSize:       b.Processing.BatchSize,
		TickDelay:       b.Processing.TickDelay,
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}
