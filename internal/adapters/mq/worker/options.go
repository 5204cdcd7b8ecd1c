package worker

import (
	"github.com/okian/tops/pkg/logger"
)

// Option applies a configuration option to the Executor.
type Option func(*Executor)

// WithName sets the executor name for identification and logging.
func WithName(name string) Option {
	return func(e *Executor) {
		if name != "" {
			e.name = name
		}
	}
}

// WithBacklog bounds how many jobs may wait for a free worker.
func WithBacklog(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.backlog = n
		}
	}
}

// WithLogger sets a custom logger for the executor.
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}
