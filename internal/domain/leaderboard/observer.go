package leaderboard

import (
	"context"
	"sync"
	"time"

	"github.com/okian/tops/internal/domain/model"
)

// PositionUpdate tells observers that an identifier's value, position or
// membership changed.
type PositionUpdate struct {
	Top         string
	ID          model.Identifier
	Name        string
	OldValue    *float64
	NewValue    *float64
	OldPosition *int
	NewPosition *int
}

// TimedReset tells observers that a timed board started a new period.
type TimedReset struct {
	Top           string
	Schedule      string
	PreviousStart time.Time
	NewStart      time.Time
	NextReset     time.Time
}

// Observer receives board events. Calls may arrive on any goroutine and
// must not block for long.
type Observer interface {
	OnPositionUpdate(ctx context.Context, ev PositionUpdate)
	OnTimedReset(ctx context.Context, ev TimedReset)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	PositionUpdate func(ctx context.Context, ev PositionUpdate)
	TimedReset     func(ctx context.Context, ev TimedReset)
}

func (o ObserverFuncs) OnPositionUpdate(ctx context.Context, ev PositionUpdate) {
	if o.PositionUpdate != nil {
		o.PositionUpdate(ctx, ev)
	}
}

func (o ObserverFuncs) OnTimedReset(ctx context.Context, ev TimedReset) {
	if o.TimedReset != nil {
		o.TimedReset(ctx, ev)
	}
}

type observers struct {
	mu   sync.RWMutex
	list []Observer
}

func (o *observers) add(obs Observer) {
	if obs == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, obs)
}

func (o *observers) snapshot() []Observer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.list
}

func (o *observers) positionUpdate(ctx context.Context, ev PositionUpdate) {
	for _, obs := range o.snapshot() {
		obs.OnPositionUpdate(ctx, ev)
	}
}

func (o *observers) timedReset(ctx context.Context, ev TimedReset) {
	for _, obs := range o.snapshot() {
		obs.OnTimedReset(ctx, ev)
	}
}
