package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tops/internal/domain/model"
)

func TestWorkQueue_BasicOperations(t *testing.T) {
	q := NewWorkQueue(WithName("basic"))
	ctx := context.Background()

	if !q.IsEmpty(ctx) {
		t.Error("expected new queue to be empty")
	}

	id := uuid.New()
	if !q.Enqueue(ctx, id, model.Medium, "test") {
		t.Fatal("expected first enqueue to succeed")
	}
	if q.Enqueue(ctx, id, model.Critical, "again") {
		t.Error("expected duplicate enqueue under another priority to be rejected")
	}
	if !q.Contains(ctx, id) {
		t.Error("expected queue to contain id")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}
	if l := q.LenPriority(ctx, model.Medium); l != 1 {
		t.Errorf("expected one MEDIUM item, got %d", l)
	}
	if l := q.LenPriority(ctx, model.Critical); l != 0 {
		t.Errorf("expected no CRITICAL items, got %d", l)
	}

	items := q.Poll(ctx, 10)
	if len(items) != 1 || items[0].ID != id || items[0].Reason != "test" {
		t.Fatalf("unexpected poll result %+v", items)
	}
	if q.Contains(ctx, id) {
		t.Error("polled id should no longer be pending")
	}
	if !q.Enqueue(ctx, id, model.Low, "re-enqueue") {
		t.Error("expected enqueue right after poll to succeed")
	}
}

func TestWorkQueue_PriorityOrder(t *testing.T) {
	q := NewWorkQueue()
	ctx := context.Background()

	low, critical, high := uuid.New(), uuid.New(), uuid.New()
	q.Enqueue(ctx, low, model.Low, "low")
	q.Enqueue(ctx, critical, model.Critical, "critical")
	q.Enqueue(ctx, high, model.High, "high")

	items := q.Poll(ctx, 3)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	want := []model.Identifier{critical, high, low}
	for i, item := range items {
		if item.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s (%s)", i, want[i], item.ID, item.Priority)
		}
	}
}

func TestWorkQueue_FIFOWithinPriority(t *testing.T) {
	q := NewWorkQueue()
	ctx := context.Background()

	ids := make([]model.Identifier, 10)
	for i := range ids {
		ids[i] = uuid.New()
	}
	if n := q.EnqueueAll(ctx, ids, model.High, "bulk"); n != len(ids) {
		t.Fatalf("expected %d inserted, got %d", len(ids), n)
	}
	if n := q.EnqueueAll(ctx, ids[:3], model.High, "bulk"); n != 0 {
		t.Errorf("expected duplicates to insert nothing, got %d", n)
	}

	first := q.Poll(ctx, 4)
	second := q.Poll(ctx, 100)
	got := append(first, second...)
	if len(first) != 4 || len(got) != len(ids) {
		t.Fatalf("unexpected poll sizes %d/%d", len(first), len(got))
	}
	for i := range ids {
		if got[i].ID != ids[i] {
			t.Errorf("FIFO broken at %d", i)
		}
	}
}

func TestWorkQueue_PollBounds(t *testing.T) {
	q := NewWorkQueue()
	ctx := context.Background()
	q.Enqueue(ctx, uuid.New(), model.Low, "x")

	if items := q.Poll(ctx, 0); len(items) != 0 {
		t.Errorf("poll(0) should return nothing, got %d", len(items))
	}
	if items := q.Poll(ctx, -3); len(items) != 0 {
		t.Errorf("poll(-3) should return nothing, got %d", len(items))
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("non-positive poll should not drain, length %d", l)
	}
	if items := q.Poll(ctx, 5); len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
}

func TestWorkQueue_Clear(t *testing.T) {
	q := NewWorkQueue()
	ctx := context.Background()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	q.Enqueue(ctx, a, model.Critical, "a")
	q.Enqueue(ctx, b, model.Low, "b")
	q.Enqueue(ctx, c, model.Low, "c")

	q.ClearPriority(ctx, model.Low)
	if q.Contains(ctx, b) || q.Contains(ctx, c) {
		t.Error("cleared priority should release membership")
	}
	if !q.Contains(ctx, a) {
		t.Error("other priorities must survive ClearPriority")
	}
	if !q.Enqueue(ctx, b, model.High, "back") {
		t.Error("expected cleared id to be accepted again")
	}

	q.Clear(ctx)
	if !q.IsEmpty(ctx) || q.LenPriority(ctx, model.High) != 0 {
		t.Error("expected queue to be empty after Clear")
	}
}

func TestWorkQueue_Capacity(t *testing.T) {
	q := NewWorkQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, uuid.New(), model.Low, "1") || !q.Enqueue(ctx, uuid.New(), model.Low, "2") {
		t.Fatal("expected enqueue within capacity to succeed")
	}
	if q.Enqueue(ctx, uuid.New(), model.Low, "3") {
		t.Error("expected enqueue to fail when full")
	}
	q.Poll(ctx, 1)
	if !q.Enqueue(ctx, uuid.New(), model.Low, "4") {
		t.Error("expected room after poll")
	}
}

func TestWorkQueue_EnqueueStampsTime(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	q := NewWorkQueue(WithClock(func() time.Time { return at }))
	ctx := context.Background()

	q.Enqueue(ctx, uuid.New(), model.High, "stamp")
	items := q.Poll(ctx, 1)
	if !items[0].EnqueuedAt.Equal(at) {
		t.Errorf("expected enqueue time %v, got %v", at, items[0].EnqueuedAt)
	}
}

func TestWorkQueue_InvalidPriorityAndClose(t *testing.T) {
	q := NewWorkQueue()
	ctx := context.Background()

	if q.Enqueue(ctx, uuid.New(), model.Priority(42), "bad") {
		t.Error("expected invalid priority to be rejected")
	}
	_ = q.Close()
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, uuid.New(), model.High, "late") {
		t.Error("expected enqueue after close to fail")
	}
}

func TestWorkQueue_ConcurrentAccess(t *testing.T) {
	q := NewWorkQueue()
	ctx := context.Background()
	const producers, perProducer = 10, 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.Enqueue(ctx, uuid.New(), model.Priorities[(p+j)%len(model.Priorities)], "load")
			}
		}(i)
	}

	drained := 0
	var dmu sync.Mutex
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				n := len(q.Poll(ctx, 7))
				dmu.Lock()
				drained += n
				dmu.Unlock()
			}
		}()
	}
	wg.Wait()

	drained += len(q.Poll(ctx, producers*perProducer))
	if drained != producers*perProducer {
		t.Errorf("expected %d drained, got %d", producers*perProducer, drained)
	}
	if !q.IsEmpty(ctx) {
		t.Errorf("expected empty queue, got %d", q.Len(ctx))
	}
}
