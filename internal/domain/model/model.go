// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Identifier is the opaque key of a ranked subject.
type Identifier = uuid.UUID

// Entry is one ranked row. Entries are values; the With* helpers return
// modified copies.
type Entry struct {
	ID          Identifier
	Name        string
	Value       float64
	Position    int // 1-based, assigned per ranked snapshot
	LastUpdated time.Time
}

// WithPosition returns a copy of e at position pos.
func (e Entry) WithPosition(pos int) Entry {
	e.Position = pos
	return e
}

// WithValue returns a copy of e holding value v, stamped at ts.
func (e Entry) WithValue(v float64, ts time.Time) Entry {
	e.Value = v
	e.LastUpdated = ts
	return e
}

// WithName returns a copy of e with display name n.
func (e Entry) WithName(n string) Entry {
	e.Name = n
	return e
}

// SortEntries orders entries by value descending. Ties keep the earlier
// update first and fall back to the identifier bytes so the order is total.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// Less reports whether a ranks before b.
func Less(a, b Entry) bool {
	if a.Value != b.Value {
		return a.Value > b.Value
	}
	if !a.LastUpdated.Equal(b.LastUpdated) {
		return a.LastUpdated.Before(b.LastUpdated)
	}
	return a.ID.String() < b.ID.String()
}

// AssignPositions stamps 1-based positions onto an already sorted slice.
func AssignPositions(entries []Entry) {
	for i := range entries {
		entries[i].Position = i + 1
	}
}

// Priority orders pending work. Lower numeric values drain first.
type Priority int

const (
	Critical Priority = iota
	High
	Medium
	Low
)

// Priorities lists every priority in drain order.
var Priorities = [...]Priority{Critical, High, Medium, Low}

func (p Priority) String() string {
	switch p {
	case Critical:
		return "CRITICAL"
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	case Low:
		return "LOW"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p >= Critical && p <= Low
}

// QueueItem is a pending recomputation request. Two items are the same
// pending work when their identifiers are equal.
type QueueItem struct {
	ID         Identifier
	Priority   Priority
	Reason     string
	EnqueuedAt time.Time
}

// UpdateOutcome reports the result of processing one identifier.
type UpdateOutcome struct {
	ID          Identifier
	OK          bool
	OldValue    *float64
	NewValue    *float64
	OldPosition *int
	NewPosition *int
	Reason      string
}

// Success builds a successful outcome. Any pointer may be nil.
func Success(id Identifier, oldValue, newValue *float64, oldPos, newPos *int) UpdateOutcome {
	return UpdateOutcome{ID: id, OK: true, OldValue: oldValue, NewValue: newValue, OldPosition: oldPos, NewPosition: newPos}
}

// Failure builds a failed outcome carrying a human-readable reason.
func Failure(id Identifier, reason string) UpdateOutcome {
	return UpdateOutcome{ID: id, Reason: reason}
}

// ValueChanged reports whether old and new values differ.
func (o UpdateOutcome) ValueChanged() bool {
	return !equalFloat(o.OldValue, o.NewValue)
}

// PositionChanged reports whether old and new positions differ.
func (o UpdateOutcome) PositionChanged() bool {
	return !equalInt(o.OldPosition, o.NewPosition)
}

// EnteredBoard reports an identifier that was outside and is now ranked.
func (o UpdateOutcome) EnteredBoard() bool {
	return o.OldPosition == nil && o.NewPosition != nil
}

// LeftBoard reports an identifier that was ranked and is now outside.
func (o UpdateOutcome) LeftBoard() bool {
	return o.OldPosition != nil && o.NewPosition == nil
}

// Changed is true when the outcome is worth telling observers about.
func (o UpdateOutcome) Changed() bool {
	return o.ValueChanged() || o.PositionChanged() || o.EnteredBoard() || o.LeftBoard()
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
