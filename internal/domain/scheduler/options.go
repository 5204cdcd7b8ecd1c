package scheduler

import (
	"time"

	"github.com/okian/tops/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets the period of the processing duty.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithOnlineInterval sets how often active identifiers are re-enqueued.
func WithOnlineInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.onlineInterval = d
		}
	}
}

// WithRotativeInterval sets how often the rotating sweep advances.
func WithRotativeInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.rotativeInterval = d
		}
	}
}

// WithResetCheckInterval sets how often timed boards are checked for reset.
func WithResetCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.resetInterval = d
		}
	}
}

// WithRotativeChunk sets how many ranked identifiers one sweep step visits.
func WithRotativeChunk(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.chunk = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides the named logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
