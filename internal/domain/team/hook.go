// Package team aggregates individual values into team scores through
// pluggable membership hooks.
package team

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/okian/tops/internal/domain/model"
)

// Hook is a membership provider. Hooks are asked in descending priority
// order and the first available hook that knows an identifier answers.
type Hook interface {
	PluginName() string
	Available() bool
	Priority() int
	// Members returns every member of the team id belongs to.
	Members(id model.Identifier) []model.Identifier
	// DisplayName returns the team name of id.
	DisplayName(id model.Identifier) string
	IsMember(id model.Identifier) bool
	// ValidateMembers filters members down to those still in the team.
	ValidateMembers(members []model.Identifier) []model.Identifier
}

// Handler holds hooks ordered by priority.
type Handler struct {
	mu    sync.RWMutex
	hooks []Hook
}

// NewHandler registers the given hooks.
func NewHandler(hooks ...Hook) *Handler {
	h := &Handler{}
	for _, hook := range hooks {
		h.Register(hook)
	}
	return h
}

// Register adds hook and keeps the list sorted by priority, highest first.
func (h *Handler) Register(hook Hook) {
	if hook == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
	sort.SliceStable(h.hooks, func(i, j int) bool {
		return h.hooks[i].Priority() > h.hooks[j].Priority()
	})
}

// Unregister removes hook.
func (h *Handler) Unregister(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, existing := range h.hooks {
		if existing == hook {
			h.hooks = append(h.hooks[:i], h.hooks[i+1:]...)
			return
		}
	}
}

// Hooks returns a copy of the registered hooks in priority order.
func (h *Handler) Hooks() []Hook {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Hook(nil), h.hooks...)
}

// Primary returns the highest-priority available hook.
func (h *Handler) Primary() (Hook, bool) {
	for _, hook := range h.Hooks() {
		if hook.Available() {
			return hook, true
		}
	}
	return nil, false
}

func (h *Handler) hookFor(id model.Identifier) (Hook, bool) {
	for _, hook := range h.Hooks() {
		if hook.Available() && safe(func() bool { return hook.IsMember(id) }) {
			return hook, true
		}
	}
	return nil, false
}

// IsMember reports whether any available hook knows id.
func (h *Handler) IsMember(id model.Identifier) bool {
	_, ok := h.hookFor(id)
	return ok
}

// Members returns the team of id, or false when id is in no team.
func (h *Handler) Members(id model.Identifier) (members []model.Identifier, ok bool) {
	hook, ok := h.hookFor(id)
	if !ok {
		return nil, false
	}
	defer func() {
		if recover() != nil {
			members, ok = nil, true
		}
	}()
	return hook.Members(id), true
}

// DisplayName returns the trimmed team name of id, or false when unknown.
func (h *Handler) DisplayName(id model.Identifier) (name string, ok bool) {
	hook, ok := h.hookFor(id)
	if !ok {
		return "", false
	}
	defer func() {
		if recover() != nil {
			name, ok = "", false
		}
	}()
	name = strings.TrimSpace(hook.DisplayName(id))
	return name, name != ""
}

// ValidateMembers asks the hook owning the first known member to filter
// members. An empty result means nothing could be validated.
func (h *Handler) ValidateMembers(members []model.Identifier) []model.Identifier {
	for _, m := range members {
		if hook, ok := h.hookFor(m); ok {
			return validate(hook, members)
		}
	}
	return nil
}

func validate(hook Hook, members []model.Identifier) (out []model.Identifier) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return hook.ValidateMembers(members)
}

func (h *Handler) String() string {
	parts := make([]string, 0, len(h.Hooks()))
	for _, hook := range h.Hooks() {
		parts = append(parts, fmt.Sprintf("%s(p=%d,avail=%t)", hook.PluginName(), hook.Priority(), hook.Available()))
	}
	return "team.Handler{" + strings.Join(parts, ", ") + "}"
}

func safe(f func() bool) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return f()
}
