package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/pkg/metrics"
)

const memoryDriver = "memory"

type record struct {
	node *node
	name string
}

type memoryBoard struct {
	root *node
	byID map[model.Identifier]record
}

func newMemoryBoard() *memoryBoard {
	return &memoryBoard{byID: make(map[model.Identifier]record)}
}

func (b *memoryBoard) upsert(id model.Identifier, name string, value float64, ts time.Time) {
	if old, ok := b.byID[id]; ok {
		b.root = erase(b.root, old.node)
	}
	n := newNode(id, value, ts)
	b.root = insert(b.root, n)
	b.byID[id] = record{node: n, name: name}
}

func (b *memoryBoard) evictLowest() {
	low := last(b.root)
	if low == nil {
		return
	}
	b.root = erase(b.root, low)
	delete(b.byID, low.id)
}

func (b *memoryBoard) entry(id model.Identifier) (model.Entry, bool) {
	rec, ok := b.byID[id]
	if !ok {
		return model.Entry{}, false
	}
	return model.Entry{
		ID:          id,
		Name:        rec.name,
		Value:       rec.node.value,
		Position:    rank(b.root, rec.node),
		LastUpdated: rec.node.updated,
	}, true
}

// MemoryStore is an in-process PersistentStore backed by one treap per board.
type MemoryStore struct {
	mu        sync.RWMutex
	boards    map[string]*memoryBoard
	snapshots map[string]map[model.Identifier]float64
	metas     map[string]TimedMeta
	closed    bool
	now       func() time.Time
}

var _ PersistentStore = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := applyOptions(opts)
	return &MemoryStore{
		boards:    make(map[string]*memoryBoard),
		snapshots: make(map[string]map[model.Identifier]float64),
		metas:     make(map[string]TimedMeta),
		now:       o.now,
	}
}

func observe(driver, op string, start time.Time, err *error) {
	metrics.RecordStorageLatency(driver, op, time.Since(start))
	if err != nil && *err != nil {
		metrics.RecordStorageError(driver, op)
	}
}

func (s *MemoryStore) Init(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// board returns the board for top, creating it when create is set.
// Callers hold s.mu.
func (s *MemoryStore) board(top string, create bool) *memoryBoard {
	b, ok := s.boards[top]
	if !ok && create {
		b = newMemoryBoard()
		s.boards[top] = b
	}
	return b
}

func (s *MemoryStore) check(top string) error {
	if s.closed {
		return ErrStoreClosed
	}
	if top == "" {
		return ErrInvalidTop
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, top string) (out []model.Entry, err error) {
	defer observe(memoryDriver, "load", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err = s.check(top); err != nil {
		return nil, err
	}
	b := s.board(top, false)
	if b == nil {
		return []model.Entry{}, nil
	}
	nodes := make([]*node, 0, len(b.byID))
	collect(b.root, &nodes)
	out = make([]model.Entry, len(nodes))
	for i, n := range nodes {
		out[i] = model.Entry{ID: n.id, Name: b.byID[n.id].name, Value: n.value, Position: i + 1, LastUpdated: n.updated}
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, top string, id model.Identifier, name string, value float64, maxSize int) (saved bool, err error) {
	defer observe(memoryDriver, "save", time.Now(), &err)
	if maxSize <= 0 {
		return false, ErrInvalidSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.check(top); err != nil {
		return false, err
	}
	b := s.board(top, true)
	if _, present := b.byID[id]; !present && len(b.byID) >= maxSize {
		if low := last(b.root); low != nil && value <= low.value {
			return false, nil
		}
	}
	b.upsert(id, name, value, s.now())
	if len(b.byID) > maxSize {
		b.evictLowest()
	}
	return true, nil
}

func (s *MemoryStore) SaveBatch(_ context.Context, top string, entries []BatchEntry, maxSize int) (err error) {
	defer observe(memoryDriver, "save_batch", time.Now(), &err)
	if maxSize <= 0 {
		return ErrInvalidSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.check(top); err != nil {
		return err
	}
	b := s.board(top, true)
	ts := s.now()
	for _, e := range entries {
		b.upsert(e.ID, e.Name, e.Value, ts)
	}
	for len(b.byID) > maxSize {
		b.evictLowest()
	}
	return nil
}

func (s *MemoryStore) MinValue(_ context.Context, top string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(top); err != nil {
		return 0, false, err
	}
	b := s.board(top, false)
	if b == nil {
		return 0, false, nil
	}
	low := last(b.root)
	if low == nil {
		return 0, false, nil
	}
	return low.value, true, nil
}

func (s *MemoryStore) Size(_ context.Context, top string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(top); err != nil {
		return 0, err
	}
	if b := s.board(top, false); b != nil {
		return len(b.byID), nil
	}
	return 0, nil
}

func (s *MemoryStore) Entry(_ context.Context, top string, id model.Identifier) (model.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(top); err != nil {
		return model.Entry{}, false, err
	}
	b := s.board(top, false)
	if b == nil {
		return model.Entry{}, false, nil
	}
	e, ok := b.entry(id)
	return e, ok, nil
}

func (s *MemoryStore) Position(ctx context.Context, top string, id model.Identifier) (int, error) {
	e, ok, err := s.Entry(ctx, top, id)
	if err != nil {
		return -1, err
	}
	if !ok {
		return -1, nil
	}
	return e.Position, nil
}

func (s *MemoryStore) Remove(_ context.Context, top string, id model.Identifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(top); err != nil {
		return err
	}
	b := s.board(top, false)
	if b == nil {
		return nil
	}
	if rec, ok := b.byID[id]; ok {
		b.root = erase(b.root, rec.node)
		delete(b.byID, id)
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, top string) (err error) {
	defer observe(memoryDriver, "clear", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.check(top); err != nil {
		return err
	}
	delete(s.boards, top)
	return nil
}

func (s *MemoryStore) Snapshot(_ context.Context, top string, id model.Identifier) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(top); err != nil {
		return 0, false, err
	}
	v, ok := s.snapshots[top][id]
	return v, ok, nil
}

func (s *MemoryStore) SetSnapshot(_ context.Context, top string, id model.Identifier, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(top); err != nil {
		return err
	}
	m := s.snapshotBoard(top)
	if _, exists := m[id]; !exists {
		m[id] = value
	}
	return nil
}

func (s *MemoryStore) SaveSnapshots(_ context.Context, top string, values map[model.Identifier]float64) (err error) {
	defer observe(memoryDriver, "save_snapshots", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.check(top); err != nil {
		return err
	}
	m := s.snapshotBoard(top)
	for id, v := range values {
		m[id] = v
	}
	return nil
}

func (s *MemoryStore) snapshotBoard(top string) map[model.Identifier]float64 {
	m, ok := s.snapshots[top]
	if !ok {
		m = make(map[model.Identifier]float64)
		s.snapshots[top] = m
	}
	return m
}

func (s *MemoryStore) Snapshots(_ context.Context, top string) (map[model.Identifier]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(top); err != nil {
		return nil, err
	}
	out := make(map[model.Identifier]float64, len(s.snapshots[top]))
	for id, v := range s.snapshots[top] {
		out[id] = v
	}
	return out, nil
}

func (s *MemoryStore) ClearSnapshots(_ context.Context, top string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(top); err != nil {
		return err
	}
	delete(s.snapshots, top)
	return nil
}

func (s *MemoryStore) SaveMeta(_ context.Context, top string, meta TimedMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(top); err != nil {
		return err
	}
	if meta.LastResetTime != nil {
		t := *meta.LastResetTime
		meta.LastResetTime = &t
	}
	s.metas[top] = meta
	return nil
}

func (s *MemoryStore) LoadMeta(_ context.Context, top string) (TimedMeta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(top); err != nil {
		return TimedMeta{}, false, err
	}
	m, ok := s.metas[top]
	return m, ok, nil
}
