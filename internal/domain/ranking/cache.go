// Package ranking holds the in-memory ranked view of one board.
package ranking

import (
	"sync/atomic"

	"github.com/okian/tops/internal/domain/model"
)

// NotFound is returned by Position for identifiers outside the snapshot.
const NotFound = -1

// Snapshot is an immutable ranked list plus its position index.
type Snapshot struct {
	entries    []model.Entry
	positionOf map[model.Identifier]int
}

func newSnapshot(entries []model.Entry) *Snapshot {
	s := &Snapshot{
		entries:    make([]model.Entry, len(entries)),
		positionOf: make(map[model.Identifier]int, len(entries)),
	}
	copy(s.entries, entries)
	model.SortEntries(s.entries)
	for i := range s.entries {
		s.entries[i].Position = i + 1
		s.positionOf[s.entries[i].ID] = i + 1
	}
	return s
}

// Cache publishes snapshots atomically; readers never take a lock.
type Cache struct {
	snapshot atomic.Pointer[Snapshot]
}

// NewCache returns a cache holding an empty snapshot.
func NewCache() *Cache {
	c := &Cache{}
	c.snapshot.Store(newSnapshot(nil))
	return c
}

// SetEntries replaces the snapshot. entries is copied and re-sorted.
func (c *Cache) SetEntries(entries []model.Entry) {
	c.snapshot.Store(newSnapshot(entries))
}

// Clear publishes an empty snapshot.
func (c *Cache) Clear() {
	c.SetEntries(nil)
}

// Entries returns a copy of the ranked list.
func (c *Cache) Entries() []model.Entry {
	s := c.snapshot.Load()
	out := make([]model.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// EntryAt returns the entry at a 1-based position.
func (c *Cache) EntryAt(pos int) (model.Entry, bool) {
	s := c.snapshot.Load()
	if pos < 1 || pos > len(s.entries) {
		return model.Entry{}, false
	}
	return s.entries[pos-1], true
}

// Position returns the 1-based position of id or NotFound.
func (c *Cache) Position(id model.Identifier) int {
	if pos, ok := c.snapshot.Load().positionOf[id]; ok {
		return pos
	}
	return NotFound
}

// Contains reports whether id is ranked.
func (c *Cache) Contains(id model.Identifier) bool {
	return c.Position(id) != NotFound
}

// MinValue returns the value of the last entry.
func (c *Cache) MinValue() (float64, bool) {
	s := c.snapshot.Load()
	if len(s.entries) == 0 {
		return 0, false
	}
	return s.entries[len(s.entries)-1].Value, true
}

// MaxValue returns the value of the first entry.
func (c *Cache) MaxValue() (float64, bool) {
	s := c.snapshot.Load()
	if len(s.entries) == 0 {
		return 0, false
	}
	return s.entries[0].Value, true
}

// Size returns the number of ranked entries.
func (c *Cache) Size() int {
	return len(c.snapshot.Load().entries)
}

// IDs returns the ranked identifiers in order.
func (c *Cache) IDs() []model.Identifier {
	s := c.snapshot.Load()
	out := make([]model.Identifier, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.ID
	}
	return out
}
