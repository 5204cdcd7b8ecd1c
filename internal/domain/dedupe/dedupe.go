// Package dedupe tracks which identifiers currently have pending work.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/tops/internal/domain/model"
)

// Deduper records pending identifiers to enforce at-most-one pending item per key.
type Deduper interface {
	// SeenAndRecord atomically checks if id is present and records it if not.
	// Returns true if id was already present (or the set is full), false if
	// it was newly recorded.
	SeenAndRecord(ctx context.Context, id model.Identifier) bool

	// Unrecord removes id so it may be recorded again.
	Unrecord(ctx context.Context, id model.Identifier)

	// Contains reports whether id is recorded.
	Contains(ctx context.Context, id model.Identifier) bool

	// Reset forgets every identifier.
	Reset(ctx context.Context)

	Size() int64
}

// inMemoryDeduper implements Deduper with a mutex guarded map.
// With maxSize > 0 the set refuses new identifiers once full instead of
// evicting, since evicting a pending key would allow a second pending item.
type inMemoryDeduper struct {
	mu      sync.RWMutex
	seen    map[model.Identifier]struct{}
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[model.Identifier]struct{})
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id model.Identifier) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		return true
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id model.Identifier) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Contains(_ context.Context, id model.Identifier) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.seen[id]
	return ok
}

func (d *inMemoryDeduper) Reset(_ context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[model.Identifier]struct{})
	d.size.Store(0)
}

// Size returns the current number of recorded identifiers.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
