package source

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/tops/internal/domain/model"
)

// Option applies a configuration option to MemoryValues.
type Option func(*MemoryValues)

// WithLatencyRange simulates a slow external system on every read.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(m *MemoryValues) {
		if minLatency >= 0 && maxLatency > minLatency {
			m.minLatency = minLatency
			m.maxLatency = maxLatency
		}
	}
}

// MemoryValues holds raw statistic values keyed by provider key.
type MemoryValues struct {
	mu   sync.RWMutex
	data map[string]map[model.Identifier]float64

	minLatency time.Duration
	maxLatency time.Duration
	rngMu      sync.Mutex
	rng        *rand.Rand
}

// NewMemoryValues creates an empty value table.
func NewMemoryValues(opts ...Option) *MemoryValues {
	m := &MemoryValues{
		data: make(map[string]map[model.Identifier]float64),
		rng:  rand.New(rand.NewSource(42)), //nolint:gosec // deterministic latency jitter
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Set stores the raw value of key for id.
func (m *MemoryValues) Set(key string, id model.Identifier, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.data[key]
	if !ok {
		byID = make(map[model.Identifier]float64)
		m.data[key] = byID
	}
	byID[id] = v
}

// Add increments the raw value of key for id and returns the new value.
func (m *MemoryValues) Add(key string, id model.Identifier, delta float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.data[key]
	if !ok {
		byID = make(map[model.Identifier]float64)
		m.data[key] = byID
	}
	byID[id] += delta
	return byID[id]
}

// Delete forgets the value of key for id.
func (m *MemoryValues) Delete(key string, id model.Identifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[key], id)
}

// Get returns the stored value of key for id after the simulated latency.
func (m *MemoryValues) Get(ctx context.Context, key string, id model.Identifier) (float64, bool) {
	if !m.wait(ctx) {
		return 0, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key][id]
	return v, ok
}

func (m *MemoryValues) wait(ctx context.Context) bool {
	if m.maxLatency <= 0 {
		return ctx.Err() == nil
	}
	m.rngMu.Lock()
	latency := m.minLatency + time.Duration(m.rng.Int63n(int64(m.maxLatency-m.minLatency)))
	m.rngMu.Unlock()
	select {
	case <-ctx.Done():
		return false
	case <-time.After(latency):
		return true
	}
}

// Source returns a ScoreSource reading key. When active is non-nil the
// source answers only for identifiers in that set.
func (m *MemoryValues) Source(key string, active ActiveSet) ScoreSource {
	return &keyedSource{values: m, key: key, active: active}
}

type keyedSource struct {
	values *MemoryValues
	key    string
	active ActiveSet
}

func (s *keyedSource) Value(ctx context.Context, id model.Identifier) (float64, bool) {
	if s.active != nil && !s.active.IsActive(id) {
		return 0, false
	}
	return s.values.Get(ctx, s.key, id)
}

func (s *keyedSource) Name() string { return s.key }

func (s *keyedSource) RequiresActiveSubject() bool { return s.active != nil }

func (s *keyedSource) Available() bool { return true }
