package source

import (
	"context"
	"sync"

	"github.com/okian/tops/internal/domain/model"
)

// Directory tracks which identifiers are online and remembers the last
// display name reported for each. It serves as both ActiveSet and NameSource.
type Directory struct {
	mu     sync.RWMutex
	active map[model.Identifier]struct{}
	names  map[model.Identifier]string
}

var (
	_ ActiveSet  = (*Directory)(nil)
	_ NameSource = (*Directory)(nil)
)

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		active: make(map[model.Identifier]struct{}),
		names:  make(map[model.Identifier]string),
	}
}

// Join marks id active and records its name when one is given.
func (d *Directory) Join(id model.Identifier, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active[id] = struct{}{}
	if name != "" {
		d.names[id] = name
	}
}

// Quit marks id inactive. Its name is kept.
func (d *Directory) Quit(id model.Identifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, id)
}

// SetName records a display name without changing activity.
func (d *Directory) SetName(id model.Identifier, name string) {
	if name == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[id] = name
}

func (d *Directory) Active(context.Context) []model.Identifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Identifier, 0, len(d.active))
	for id := range d.active {
		out = append(out, id)
	}
	return out
}

func (d *Directory) IsActive(id model.Identifier) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.active[id]
	return ok
}

func (d *Directory) Resolve(_ context.Context, id model.Identifier) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[id]
	return name, ok && name != ""
}
