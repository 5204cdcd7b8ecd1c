package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/okian/tops/internal/config"
	"github.com/okian/tops/internal/domain/leaderboard"
	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/internal/domain/processor"
	"github.com/okian/tops/internal/domain/schedule"
	"github.com/okian/tops/internal/domain/source"
	"github.com/okian/tops/pkg/logger"
)

func parseTeams(teams map[string]config.TeamConfig) (map[string][]model.Identifier, error) {
	out := make(map[string][]model.Identifier, len(teams))
	for key, t := range teams {
		name := t.Name
		if name == "" {
			name = key
		}
		for _, raw := range t.Members {
			id, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: team %s member %q: %w", config.ErrInvalidConfig, key, raw, err)
			}
			out[name] = append(out[name], id)
		}
	}
	return out, nil
}

// buildBoards creates, loads and registers every configured board in id
// order. Failures are isolated to the failing board.
func (s *Service) buildBoards(ctx context.Context) {
	ids := make([]string, 0, len(s.cfg.Boards))
	for id := range s.cfg.Boards {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		bc := s.cfg.Boards[id]
		board, err := s.newBoard(ctx, id, bc)
		if err != nil {
			s.logger.Error(ctx, "board skipped", logger.String("top", id), logger.Error(err))
			continue
		}
		if err := board.Load(ctx); err != nil {
			s.logger.Error(ctx, "board load failed", logger.String("top", id), logger.Error(err))
			continue
		}
		if err := s.registry.Register(board); err != nil {
			s.logger.Error(ctx, "board not registered", logger.String("top", id), logger.Error(err))
			continue
		}
		s.logger.Info(ctx, "board registered",
			logger.String("top", id),
			logger.String("type", bc.Type),
			logger.String("provider", board.Provider()),
			logger.Int("size", bc.Size),
		)
	}
}

func (s *Service) newBoard(ctx context.Context, id string, bc config.BoardConfig) (leaderboard.Board, error) {
	if err := bc.Validate(); err != nil {
		return nil, err
	}

	values := s.valuesFor(bc.Provider, bc.RequireActive)
	names := s.namesFor()
	if bc.Team() {
		values = s.teams.ScoreSource(values)
		names = s.teams.NameSource(names)
	}

	opts := []leaderboard.Option{
		leaderboard.WithClock(s.now),
		leaderboard.WithProcessorOptions(
			processor.WithFlushInterval(s.cfg.BatchFlushInterval),
			processor.WithClock(s.now),
		),
	}
	for _, obs := range s.observers {
		opts = append(opts, leaderboard.WithObserver(obs))
	}

	if !bc.Timed() {
		return leaderboard.New(id, bc.Leaderboard(), leaderboard.Deps{
			Store:    s.store,
			Values:   values,
			Names:    names,
			Executor: s.exec,
		}, opts...)
	}

	sched, err := schedule.ParseToken(bc.Reset)
	if err != nil {
		// the weekly fallback keeps the board usable
		s.logger.Warn(ctx, "invalid reset token, using weekly", logger.String("top", id), logger.Error(err))
	}
	return leaderboard.NewTimed(id, bc.Leaderboard(), sched, leaderboard.TimedDeps{
		Store:       s.store,
		Base:        values,
		Names:       names,
		Executor:    s.exec,
		Location:    s.loc,
		GracePeriod: s.cfg.GracePeriod,
	}, opts...)
}

// valuesFor picks the HTTP source when configured, else the memory table.
// Boards that require an active subject read only identifiers the
// directory lists as online.
func (s *Service) valuesFor(provider string, requireActive bool) source.ScoreSource {
	var active source.ActiveSet
	if requireActive {
		active = s.directory
	}
	if s.client != nil {
		return s.client.Source(provider, active)
	}
	return s.values.Source(provider, active)
}

// namesFor resolves names from the directory, then from the HTTP source.
func (s *Service) namesFor() source.NameSource {
	if s.client == nil {
		return s.directory
	}
	remote := s.client.Names()
	return source.NameFunc(func(ctx context.Context, id model.Identifier) (string, bool) {
		if name, ok := s.directory.Resolve(ctx, id); ok {
			return name, true
		}
		return remote.Resolve(ctx, id)
	})
}
