package queue

import "time"

// Option applies a configuration option to the WorkQueue.
type Option func(*WorkQueue)

// WithName labels the queue in metrics, normally with the board id.
func WithName(name string) Option {
	return func(q *WorkQueue) {
		if name != "" {
			q.name = name
		}
	}
}

// WithCapacity bounds the number of pending identifiers. Enqueue returns
// false once the bound is reached. Zero means unbounded.
func WithCapacity(capacity int) Option {
	return func(q *WorkQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithClock overrides the time source used to stamp items.
func WithClock(now func() time.Time) Option {
	return func(q *WorkQueue) {
		if now != nil {
			q.now = now
		}
	}
}
