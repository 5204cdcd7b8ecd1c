package processor

import (
	"time"

	"github.com/okian/tops/pkg/logger"
)

// Option applies a configuration option to the Processor.
type Option func(*Processor)

// WithFlushInterval bounds how long buffered low-priority items may wait.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// WithBatchThreshold sets the drain size from which the batched path is used.
func WithBatchThreshold(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithBufferLimit sets how many deferred low-priority items trigger a flush.
func WithBufferLimit(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.bufferLimit = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger overrides the named logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}
