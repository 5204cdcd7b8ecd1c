package team

import (
	"context"
	"sync"
	"time"

	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/internal/domain/source"
)

const cacheTTL = 3 * time.Second

type timed[T any] struct {
	value T
	ok    bool
	at    time.Time
}

type ttlCache[T any] struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	m         map[model.Identifier]timed[T]
	lastSweep time.Time
}

func newTTLCache[T any](ttl time.Duration, now func() time.Time) *ttlCache[T] {
	return &ttlCache[T]{ttl: ttl, now: now, m: make(map[model.Identifier]timed[T]), lastSweep: now()}
}

func (c *ttlCache[T]) get(id model.Identifier, load func() (T, bool)) (T, bool) {
	now := c.now()
	c.mu.Lock()
	e, hit := c.m[id]
	c.mu.Unlock()
	if hit && now.Sub(e.at) <= c.ttl {
		return e.value, e.ok
	}
	v, ok := load()
	c.mu.Lock()
	c.m[id] = timed[T]{value: v, ok: ok, at: now}
	if now.Sub(c.lastSweep) > c.ttl {
		c.sweepLocked(now)
	}
	c.mu.Unlock()
	return v, ok
}

// sweepLocked drops expired entries. At most one sweep runs per ttl.
func (c *ttlCache[T]) sweepLocked(now time.Time) {
	for id, e := range c.m {
		if now.Sub(e.at) > c.ttl {
			delete(c.m, id)
		}
	}
	c.lastSweep = now
}

func (c *ttlCache[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used by the member and name caches.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service computes team scores and names with short-lived caches in front
// of the hooks.
type Service struct {
	handler *Handler
	now     func() time.Time
	members *ttlCache[[]model.Identifier]
	names   *ttlCache[string]
}

// NewService creates a team service over handler.
func NewService(handler *Handler, opts ...Option) *Service {
	s := &Service{handler: handler, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.members = newTTLCache[[]model.Identifier](cacheTTL, s.now)
	s.names = newTTLCache[string](cacheTTL, s.now)
	return s
}

// Score sums member values from base. Members are validated first, and
// the unvalidated set is kept when validation returns nothing. The score is
// unavailable when no member has a value.
func (s *Service) Score(ctx context.Context, id model.Identifier, base source.ScoreSource) (float64, bool) {
	members, ok := s.members.get(id, func() ([]model.Identifier, bool) {
		return s.handler.Members(id)
	})
	if !ok || len(members) == 0 {
		return 0, false
	}
	if validated := s.handler.ValidateMembers(members); len(validated) > 0 {
		members = validated
	}
	var (
		sum   float64
		found bool
	)
	for _, m := range members {
		if v, ok := base.Value(ctx, m); ok {
			sum += v
			found = true
		}
	}
	return sum, found
}

// Name returns the cached display name of id's team.
func (s *Service) Name(id model.Identifier) (string, bool) {
	return s.names.get(id, func() (string, bool) {
		return s.handler.DisplayName(id)
	})
}

// ScoreSource returns a source summing base over each identifier's team.
func (s *Service) ScoreSource(base source.ScoreSource) source.ScoreSource {
	return &teamSource{svc: s, base: base}
}

// NameSource returns a resolver that prefers the team name and falls back
// to fallback for identifiers without a team.
func (s *Service) NameSource(fallback source.NameSource) source.NameSource {
	return source.NameFunc(func(ctx context.Context, id model.Identifier) (string, bool) {
		if name, ok := s.Name(id); ok {
			return name, true
		}
		if fallback == nil {
			return "", false
		}
		return fallback.Resolve(ctx, id)
	})
}

type teamSource struct {
	svc  *Service
	base source.ScoreSource
}

func (t *teamSource) Value(ctx context.Context, id model.Identifier) (float64, bool) {
	return t.svc.Score(ctx, id, t.base)
}

func (t *teamSource) Name() string { return "TeamSum[" + t.base.Name() + "]" }

func (t *teamSource) RequiresActiveSubject() bool { return t.base.RequiresActiveSubject() }

func (t *teamSource) Available() bool {
	_, ok := t.svc.handler.Primary()
	return ok && t.base.Available()
}
