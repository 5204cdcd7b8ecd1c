package team

import (
	"sync"

	"github.com/okian/tops/internal/domain/model"
)

// StaticHook serves teams declared up front, typically from configuration.
type StaticHook struct {
	name     string
	priority int

	mu     sync.RWMutex
	teamOf map[model.Identifier]string
	teams  map[string][]model.Identifier
}

var _ Hook = (*StaticHook)(nil)

// NewStaticHook creates a hook over teams, keyed by team display name.
func NewStaticHook(name string, priority int, teams map[string][]model.Identifier) *StaticHook {
	h := &StaticHook{
		name:     name,
		priority: priority,
		teamOf:   make(map[model.Identifier]string),
		teams:    make(map[string][]model.Identifier),
	}
	for team, members := range teams {
		for _, m := range members {
			h.Add(team, m)
		}
	}
	return h
}

// Add puts id into team, moving it out of any previous team.
func (h *StaticHook) Add(team string, id model.Identifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.teamOf[id]; ok {
		h.teams[prev] = without(h.teams[prev], id)
	}
	h.teamOf[id] = team
	h.teams[team] = append(h.teams[team], id)
}

// Remove takes id out of its team.
func (h *StaticHook) Remove(id model.Identifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if team, ok := h.teamOf[id]; ok {
		h.teams[team] = without(h.teams[team], id)
		delete(h.teamOf, id)
	}
}

func without(ids []model.Identifier, id model.Identifier) []model.Identifier {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func (h *StaticHook) PluginName() string { return h.name }
func (h *StaticHook) Available() bool    { return true }
func (h *StaticHook) Priority() int      { return h.priority }

func (h *StaticHook) Members(id model.Identifier) []model.Identifier {
	h.mu.RLock()
	defer h.mu.RUnlock()
	team, ok := h.teamOf[id]
	if !ok {
		return nil
	}
	return append([]model.Identifier(nil), h.teams[team]...)
}

func (h *StaticHook) DisplayName(id model.Identifier) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.teamOf[id]
}

func (h *StaticHook) IsMember(id model.Identifier) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.teamOf[id]
	return ok
}

func (h *StaticHook) ValidateMembers(members []model.Identifier) []model.Identifier {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.Identifier, 0, len(members))
	for _, m := range members {
		if _, ok := h.teamOf[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
