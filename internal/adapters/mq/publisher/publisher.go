// Package publisher forwards board events to NATS as JSON.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/tops/internal/domain/leaderboard"
	"github.com/okian/tops/pkg/logger"
	"github.com/okian/tops/pkg/metrics"
)

const (
	defaultPrefix = "tops"

	kindPosition = "position_update"
	kindReset    = "timed_reset"
)

// ErrConnect is returned when the NATS connection cannot be established.
var ErrConnect = errors.New("nats connect failed")

// Config configures the NATS publisher.
type Config struct {
	// URL is the NATS server URL. Default: nats.DefaultURL.
	URL string
	// Prefix is prepended to every subject. Default: "tops".
	Prefix string
	// Name is an optional NATS connection name.
	Name string
}

// NATS publishes position updates on <prefix>.position.<top> and timed
// resets on <prefix>.reset.<top>.
type NATS struct {
	nc     *nats.Conn
	prefix string
	log    logger.Logger
}

var _ leaderboard.Observer = (*NATS)(nil)

// New connects to NATS and returns a publisher.
func New(cfg Config) (*NATS, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	nc, err := nats.Connect(url, func(o *nats.Options) error {
		if cfg.Name != "" {
			o.Name = cfg.Name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return &NATS{nc: nc, prefix: prefix, log: logger.Get().Named("publisher")}, nil
}

// positionMessage is the wire shape of a position update.
type positionMessage struct {
	Top         string   `json:"top"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	OldValue    *float64 `json:"old_value"`
	NewValue    *float64 `json:"new_value"`
	OldPosition *int     `json:"old_position"`
	NewPosition *int     `json:"new_position"`
}

// resetMessage is the wire shape of a timed reset.
type resetMessage struct {
	Top           string    `json:"top"`
	Schedule      string    `json:"schedule"`
	PreviousStart time.Time `json:"previous_start"`
	NewStart      time.Time `json:"new_start"`
	NextReset     time.Time `json:"next_reset"`
}

// OnPositionUpdate implements leaderboard.Observer.
func (p *NATS) OnPositionUpdate(ctx context.Context, ev leaderboard.PositionUpdate) {
	p.publish(ctx, kindPosition, p.subject("position", ev.Top), positionMessage{
		Top:         ev.Top,
		ID:          ev.ID.String(),
		Name:        ev.Name,
		OldValue:    ev.OldValue,
		NewValue:    ev.NewValue,
		OldPosition: ev.OldPosition,
		NewPosition: ev.NewPosition,
	})
}

// OnTimedReset implements leaderboard.Observer.
func (p *NATS) OnTimedReset(ctx context.Context, ev leaderboard.TimedReset) {
	p.publish(ctx, kindReset, p.subject("reset", ev.Top), resetMessage{
		Top:           ev.Top,
		Schedule:      ev.Schedule,
		PreviousStart: ev.PreviousStart,
		NewStart:      ev.NewStart,
		NextReset:     ev.NextReset,
	})
}

func (p *NATS) subject(kind, top string) string {
	return p.prefix + "." + kind + "." + top
}

func (p *NATS) publish(ctx context.Context, kind, subject string, v any) {
	data, err := json.Marshal(v)
	if err == nil {
		err = p.nc.Publish(subject, data)
	}
	if err != nil {
		metrics.RecordEventFailed(kind)
		p.log.Warn(ctx, "publish failed",
			logger.String("subject", subject),
			logger.Error(err),
		)
		return
	}
	metrics.RecordEventPublished(kind)
}

// Close flushes pending messages and closes the connection.
func (p *NATS) Close(ctx context.Context) error {
	if p == nil || p.nc == nil {
		return nil
	}
	err := p.nc.FlushWithContext(ctx)
	p.nc.Close()
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
