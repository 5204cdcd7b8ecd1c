package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/tops/internal/adapters/http/api"
	"github.com/okian/tops/internal/domain/leaderboard"
	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/internal/domain/schedule"
	"github.com/okian/tops/internal/domain/types"
)

const (
	reasonJoin = "player_join"
	reasonQuit = "player_quit"
)

var _ api.Dependencies = (*Service)(nil)

func (s *Service) board(id string) (leaderboard.Board, error) {
	b, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, leaderboard.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", api.ErrNotFound, err)
		}
		return nil, err
	}
	return b, nil
}

// Boards summarizes every registered board.
func (s *Service) Boards(ctx context.Context) []types.Board {
	all := s.registry.All()
	out := make([]types.Board, 0, len(all))
	for _, b := range all {
		out = append(out, s.summary(ctx, b))
	}
	return out
}

// Board summarizes one board.
func (s *Service) Board(ctx context.Context, id string) (types.Board, error) {
	b, err := s.board(id)
	if err != nil {
		return types.Board{}, err
	}
	return s.summary(ctx, b), nil
}

func (s *Service) summary(ctx context.Context, b leaderboard.Board) types.Board {
	out := types.Board{
		ID:       b.ID(),
		Kind:     string(b.Kind()),
		Provider: b.Provider(),
		Size:     b.Size(),
		MaxSize:  b.Config().Size,
		Pending:  b.Pending(ctx),
		Enabled:  b.Enabled(),
	}
	if v, ok := b.MinValue(); ok {
		out.MinValue = &v
	}
	if v, ok := b.MaxValue(); ok {
		out.MaxValue = &v
	}
	if t, ok := b.(*leaderboard.TimedLeaderboard); ok {
		meta := t.Meta()
		until := t.TimeUntilReset()
		out.Timed = &types.Timed{
			Schedule:     t.Schedule().String(),
			Type:         t.Schedule().Type.String(),
			State:        t.State().String(),
			StartTime:    meta.StartTime,
			NextReset:    meta.NextResetTime,
			LastReset:    meta.LastResetTime,
			ResetsIn:     schedule.FormatDuration(until),
			ResetsInText: schedule.Humanize(until),
		}
	}
	return out
}

// Top returns up to limit ranked entries of board id.
func (s *Service) Top(_ context.Context, id string, limit int) ([]types.Entry, error) {
	b, err := s.board(id)
	if err != nil {
		return nil, err
	}
	entries := b.Entries()
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = toEntry(e)
	}
	return out, nil
}

// Position reports where identifier stands on board id.
func (s *Service) Position(_ context.Context, id string, identifier uuid.UUID) (types.Position, error) {
	b, err := s.board(id)
	if err != nil {
		return types.Position{}, err
	}
	out := types.Position{Top: id, ID: identifier.String(), Position: b.Position(identifier)}
	if out.Position > 0 {
		if e, ok := b.Entry(out.Position); ok && e.ID == identifier {
			entry := toEntry(e)
			out.Entry = &entry
			out.InTop = true
		}
	}
	return out, nil
}

// EntryAt returns the entry at 1-based position pos of board id.
func (s *Service) EntryAt(_ context.Context, id string, pos int) (types.Entry, error) {
	b, err := s.board(id)
	if err != nil {
		return types.Entry{}, err
	}
	e, ok := b.Entry(pos)
	if !ok {
		return types.Entry{}, fmt.Errorf("%w: position %d of %q", api.ErrNotFound, pos, id)
	}
	return toEntry(e), nil
}

// Activity marks an identifier online or offline and queues it on every
// board: joins at CRITICAL, quits at HIGH.
func (s *Service) Activity(ctx context.Context, a types.Activity) (types.ActivityResult, error) {
	if !s.Ready() {
		return types.ActivityResult{}, fmt.Errorf("%w: %w", api.ErrUnavailable, ErrNotStarted)
	}
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return types.ActivityResult{}, fmt.Errorf("%w: %w", api.ErrBadRequest, err)
	}

	var (
		priority model.Priority
		reason   string
	)
	switch a.Action {
	case types.ActionJoin:
		s.directory.Join(id, a.Name)
		priority, reason = model.Critical, reasonJoin
	case types.ActionQuit:
		priority, reason = model.High, reasonQuit
	default:
		return types.ActivityResult{}, fmt.Errorf("%w: unknown action %q", api.ErrBadRequest, a.Action)
	}

	enqueued := 0
	for _, b := range s.registry.All() {
		enqueued += b.Enqueue(ctx, []model.Identifier{id}, priority, reason)
	}
	if a.Action == types.ActionQuit {
		s.directory.Quit(id)
	}
	return types.ActivityResult{Status: "accepted", Enqueued: enqueued}, nil
}

func toEntry(e model.Entry) types.Entry {
	return types.Entry{
		Position:    e.Position,
		ID:          e.ID.String(),
		Name:        e.Name,
		Value:       e.Value,
		LastUpdated: e.LastUpdated,
	}
}
