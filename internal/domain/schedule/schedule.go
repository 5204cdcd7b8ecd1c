package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ResetType is the base rule of a reset schedule.
type ResetType int

const (
	Hourly ResetType = iota
	Daily
	Weekly
	Monthly
	Custom
)

func (t ResetType) String() string {
	switch t {
	case Hourly:
		return "HOURLY"
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Custom:
		return "CUSTOM"
	default:
		return fmt.Sprintf("ResetType(%d)", int(t))
	}
}

// ResetSchedule couples a type rule with an optional cron expression that
// takes precedence over it.
type ResetSchedule struct {
	Type  ResetType
	Every time.Duration // CUSTOM only
	Cron  *Expression
}

// Of builds a schedule for one of the fixed types.
func Of(t ResetType) ResetSchedule { return ResetSchedule{Type: t} }

// Every builds a CUSTOM schedule firing d after each reset.
func Every(d time.Duration) (ResetSchedule, error) {
	if d <= 0 {
		return ResetSchedule{}, fmt.Errorf("custom reset interval must be positive, got %s", d)
	}
	return ResetSchedule{Type: Custom, Every: d}, nil
}

// String renders the schedule in token form.
func (s ResetSchedule) String() string {
	if s.Cron != nil {
		return s.Cron.String()
	}
	if s.Type == Custom {
		return "@every " + s.Every.String()
	}
	return strings.ToLower(s.Type.String())
}

// NextReset returns the next reset instant after now in loc. A configured
// cron expression is tried first; the type rule is the fallback.
func (s ResetSchedule) NextReset(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	if s.Cron != nil {
		if next, ok := s.Cron.NextAfter(now); ok {
			return next
		}
	}
	switch s.Type {
	case Hourly:
		return time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, loc)
	case Daily:
		return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, loc)
	case Monthly:
		return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, loc)
	case Custom:
		if s.Every > 0 {
			return now.Add(s.Every)
		}
	}
	return nextMonday(now, loc)
}

func nextMonday(now time.Time, loc *time.Location) time.Time {
	days := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	next := time.Date(now.Year(), now.Month(), now.Day()+days, 0, 0, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(next.Year(), next.Month(), next.Day()+7, 0, 0, 0, 0, loc)
	}
	return next
}

// ParseToken reads a configured reset token: hourly, daily, weekly,
// monthly, "@every <duration>" or a five-field cron expression. On error
// the returned schedule is the weekly default so callers can warn and go on.
func ParseToken(token string) (ResetSchedule, error) {
	tok := strings.TrimSpace(token)
	switch strings.ToLower(tok) {
	case "hourly":
		return Of(Hourly), nil
	case "daily":
		return Of(Daily), nil
	case "", "weekly":
		return Of(Weekly), nil
	case "monthly":
		return Of(Monthly), nil
	}

	if strings.HasPrefix(tok, "@every") {
		sched, err := cron.ParseStandard(tok)
		if err != nil {
			return Of(Weekly), fmt.Errorf("parse reset token %q: %w", token, err)
		}
		delay, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return Of(Weekly), fmt.Errorf("parse reset token %q: not a constant delay", token)
		}
		return Every(delay.Delay)
	}

	expr, err := Parse(tok)
	if err != nil {
		return Of(Weekly), fmt.Errorf("parse reset token %q: %w", token, err)
	}
	return ResetSchedule{Type: Weekly, Cron: expr}, nil
}
