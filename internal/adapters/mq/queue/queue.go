// Package queue implements the per-board priority work queue.
//
// Identifiers wait here between being marked dirty and being drained by a
// processor. At most one item per identifier is pending at any time.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/tops/internal/domain/dedupe"
	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/pkg/metrics"
)

const (
	defaultLaneCapacity = 64
)

// Queue is the contract the processor and scheduler depend on.
type Queue interface {
	Enqueue(ctx context.Context, id model.Identifier, p model.Priority, reason string) bool
	EnqueueAll(ctx context.Context, ids []model.Identifier, p model.Priority, reason string) int
	Poll(ctx context.Context, maxCount int) []model.QueueItem
	Contains(ctx context.Context, id model.Identifier) bool
	Len(ctx context.Context) int
	LenPriority(ctx context.Context, p model.Priority) int
	IsEmpty(ctx context.Context) bool
	Clear(ctx context.Context)
	ClearPriority(ctx context.Context, p model.Priority)
}

// WorkQueue keeps one FIFO lane per priority plus a pending-set.
type WorkQueue struct {
	name     string
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	lanes   [len(model.Priorities)][]model.QueueItem
	pending dedupe.Deduper
	closed  bool
}

var _ Queue = (*WorkQueue)(nil)

// NewWorkQueue creates an empty queue with configuration options.
func NewWorkQueue(opts ...Option) *WorkQueue {
	q := &WorkQueue{
		name: "default",
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.pending = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(q.capacity))
	for i := range q.lanes {
		q.lanes[i] = make([]model.QueueItem, 0, defaultLaneCapacity)
	}
	metrics.UpdateQueueSize(q.name, 0)
	return q
}

// Enqueue inserts id at priority p unless it is already pending.
func (q *WorkQueue) Enqueue(ctx context.Context, id model.Identifier, p model.Priority, reason string) bool {
	if !p.Valid() {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.pending.SeenAndRecord(ctx, id) {
		metrics.RecordDuplicate(q.name)
		return false
	}
	q.lanes[p] = append(q.lanes[p], model.QueueItem{
		ID:         id,
		Priority:   p,
		Reason:     reason,
		EnqueuedAt: q.now(),
	})
	metrics.RecordEnqueue(q.name, p.String())
	metrics.UpdateQueueSize(q.name, int(q.pending.Size()))
	return true
}

// EnqueueAll enqueues each id and returns how many were inserted.
func (q *WorkQueue) EnqueueAll(ctx context.Context, ids []model.Identifier, p model.Priority, reason string) int {
	n := 0
	for _, id := range ids {
		if q.Enqueue(ctx, id, p, reason) {
			n++
		}
	}
	return n
}

// Poll removes up to maxCount items, higher priorities first and FIFO
// within a priority. Polled identifiers may be enqueued again at once.
func (q *WorkQueue) Poll(ctx context.Context, maxCount int) []model.QueueItem {
	if maxCount <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]model.QueueItem, 0, min(maxCount, int(q.pending.Size())))
	for i := range q.lanes {
		lane := q.lanes[i]
		take := min(maxCount-len(out), len(lane))
		if take == 0 {
			continue
		}
		out = append(out, lane[:take]...)
		q.lanes[i] = compact(lane, take)
		if len(out) == maxCount {
			break
		}
	}
	for _, item := range out {
		q.pending.Unrecord(ctx, item.ID)
	}

	metrics.RecordDrained(q.name, len(out))
	metrics.UpdateQueueSize(q.name, int(q.pending.Size()))
	return out
}

// compact drops the first n items, releasing the backing array once a lane
// has drained completely.
func compact(lane []model.QueueItem, n int) []model.QueueItem {
	if n >= len(lane) {
		return lane[:0]
	}
	rest := make([]model.QueueItem, len(lane)-n, max(len(lane)-n, defaultLaneCapacity))
	copy(rest, lane[n:])
	return rest
}

// Contains reports whether id is pending.
func (q *WorkQueue) Contains(ctx context.Context, id model.Identifier) bool {
	return q.pending.Contains(ctx, id)
}

// Len returns the number of pending items.
func (q *WorkQueue) Len(_ context.Context) int {
	return int(q.pending.Size())
}

// LenPriority returns the number of pending items at p.
func (q *WorkQueue) LenPriority(_ context.Context, p model.Priority) int {
	if !p.Valid() {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes[p])
}

// IsEmpty reports whether nothing is pending.
func (q *WorkQueue) IsEmpty(ctx context.Context) bool {
	return q.Len(ctx) == 0
}

// Clear drops every pending item.
func (q *WorkQueue) Clear(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.lanes {
		q.lanes[i] = q.lanes[i][:0]
	}
	q.pending.Reset(ctx)
	metrics.UpdateQueueSize(q.name, 0)
}

// ClearPriority drops pending items at p only.
func (q *WorkQueue) ClearPriority(ctx context.Context, p model.Priority) {
	if !p.Valid() {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.lanes[p] {
		q.pending.Unrecord(ctx, item.ID)
	}
	q.lanes[p] = q.lanes[p][:0]
	metrics.UpdateQueueSize(q.name, int(q.pending.Size()))
}

// Close stops accepting new items. Pending items can still be polled.
func (q *WorkQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *WorkQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
