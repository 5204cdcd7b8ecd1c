// Package repository defines the persistent store contracts for boards and
// their in-memory and SQLite implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/tops/internal/domain/model"
)

// BatchEntry is one row of a grouped write.
type BatchEntry struct {
	ID    model.Identifier
	Name  string
	Value float64
}

// TimedMeta is the restart-surviving state of a timed board.
type TimedMeta struct {
	StartTime     time.Time
	NextResetTime time.Time
	LastResetTime *time.Time
}

// Store provides ranked storage per board, keyed by top id.
type Store interface {
	// Init prepares the backing storage. It is idempotent.
	Init(ctx context.Context) error
	// Close releases resources. Further calls fail with ErrStoreClosed.
	Close() error
	// Available reports whether the store accepts operations.
	Available() bool

	// Load returns every entry of top ordered by value descending with
	// positions assigned 1..n.
	Load(ctx context.Context, top string) ([]model.Entry, error)
	// Save writes one entry under the eviction policy. It returns false
	// when the board is full and value does not beat the current minimum
	// for an identifier that is not already stored.
	Save(ctx context.Context, top string, id model.Identifier, name string, value float64, maxSize int) (bool, error)
	// SaveBatch upserts all entries, then evicts the lowest until the
	// board holds at most maxSize entries.
	SaveBatch(ctx context.Context, top string, entries []BatchEntry, maxSize int) error

	// MinValue returns the lowest stored value and whether any exists.
	MinValue(ctx context.Context, top string) (float64, bool, error)
	// Size returns the number of stored entries.
	Size(ctx context.Context, top string) (int, error)
	// Entry returns the stored entry including its position.
	Entry(ctx context.Context, top string, id model.Identifier) (model.Entry, bool, error)
	// Position returns the 1-based position of id in Load order, or -1
	// when id is not stored. Ties rank the earlier update first, then the
	// lower identifier.
	Position(ctx context.Context, top string, id model.Identifier) (int, error)

	Remove(ctx context.Context, top string, id model.Identifier) error
	Clear(ctx context.Context, top string) error
}

// SnapshotStore keeps the zero-point raw value per identifier for timed boards.
type SnapshotStore interface {
	Snapshot(ctx context.Context, top string, id model.Identifier) (float64, bool, error)
	// SetSnapshot records value only when no snapshot exists for id yet.
	SetSnapshot(ctx context.Context, top string, id model.Identifier, value float64) error
	// SaveSnapshots upserts every value, replacing existing snapshots.
	SaveSnapshots(ctx context.Context, top string, values map[model.Identifier]float64) error
	Snapshots(ctx context.Context, top string) (map[model.Identifier]float64, error)
	ClearSnapshots(ctx context.Context, top string) error
}

// MetaStore keeps one TimedMeta record per timed board.
type MetaStore interface {
	SaveMeta(ctx context.Context, top string, meta TimedMeta) error
	LoadMeta(ctx context.Context, top string) (TimedMeta, bool, error)
}

// PersistentStore is everything a board needs from durable storage.
type PersistentStore interface {
	Store
	SnapshotStore
	MetaStore
}
