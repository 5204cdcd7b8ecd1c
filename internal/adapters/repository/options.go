package repository

import "time"

// Option configures a store.
type Option func(*options)

type options struct {
	now           func() time.Time
	sizeCacheTTL  time.Duration
	maxOpenConns  int
	busyTimeoutMS int
}

func applyOptions(opts []Option) options {
	o := options{
		now:           time.Now,
		sizeCacheTTL:  10 * time.Second,
		maxOpenConns:  4,
		busyTimeoutMS: 5000,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source used to stamp writes.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSizeCacheTTL sets how long the SQLite store trusts a cached board size.
// Writes always invalidate the cache.
func WithSizeCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl >= 0 {
			o.sizeCacheTTL = ttl
		}
	}
}

// WithMaxOpenConns bounds the SQLite connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}
