package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateBoard is returned when registering an id twice.
var ErrDuplicateBoard = errors.New("board already registered")

// Registry is the keyed set of live boards.
type Registry struct {
	mu     sync.RWMutex
	boards map[string]Board
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{boards: make(map[string]Board)}
}

// Register adds b. Ids are unique.
func (r *Registry) Register(b Board) error {
	if b == nil {
		return errors.New("register: nil board")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.boards[b.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBoard, b.ID())
	}
	r.boards[b.ID()] = b
	return nil
}

// Unregister removes the board and disables its processor, which flushes
// any buffered work.
func (r *Registry) Unregister(ctx context.Context, id string) (Board, bool) {
	r.mu.Lock()
	b, ok := r.boards[id]
	delete(r.boards, id)
	r.mu.Unlock()
	if ok {
		b.SetEnabled(ctx, false)
	}
	return b, ok
}

// Get returns the board registered under id.
func (r *Registry) Get(id string) (Board, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.boards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

// All returns every board ordered by id.
func (r *Registry) All() []Board {
	r.mu.RLock()
	out := make([]Board, 0, len(r.boards))
	for _, b := range r.boards {
		out = append(out, b)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Timed returns the timed boards ordered by id.
func (r *Registry) Timed() []*TimedLeaderboard {
	var out []*TimedLeaderboard
	for _, b := range r.All() {
		if t, ok := b.(*TimedLeaderboard); ok {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.boards[id]
	return ok
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.boards)
}

// Clear drops every board without touching their state.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards = make(map[string]Board)
}
