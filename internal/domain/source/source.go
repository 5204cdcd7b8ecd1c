// Package source defines where boards get values and display names from,
// plus in-memory implementations.
package source

import (
	"context"

	"github.com/okian/tops/internal/domain/model"
)

// ScoreSource supplies the raw value of an identifier for one statistic.
type ScoreSource interface {
	// Value returns the current value, or false when unavailable.
	Value(ctx context.Context, id model.Identifier) (float64, bool)
	// Name identifies the statistic, e.g. the provider key.
	Name() string
	// RequiresActiveSubject is true when values exist only for active identifiers.
	RequiresActiveSubject() bool
	// Available reports whether the source can currently answer at all.
	Available() bool
}

// NameSource resolves display names.
type NameSource interface {
	Resolve(ctx context.Context, id model.Identifier) (string, bool)
}

// ActiveSet lists identifiers currently considered online.
type ActiveSet interface {
	Active(ctx context.Context) []model.Identifier
	IsActive(id model.Identifier) bool
}

// NameFunc adapts a function to NameSource.
type NameFunc func(ctx context.Context, id model.Identifier) (string, bool)

// Resolve calls f.
func (f NameFunc) Resolve(ctx context.Context, id model.Identifier) (string, bool) {
	return f(ctx, id)
}
