// Package schedule computes reset instants for timed boards.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// searchHorizon bounds how far NextAfter looks before giving up.
const searchHorizon = 60 * 24 * 366 * 5 * time.Minute

// ErrInvalidExpression is wrapped by every parse failure.
var ErrInvalidExpression = errors.New("invalid cron expression")

type field struct {
	name     string
	min, max int
}

var fields = [5]field{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// Expression is a parsed five-field cron expression:
// minute hour day-of-month month day-of-week.
type Expression struct {
	raw    string
	minute uint64
	hour   uint64
	dom    uint64
	month  uint64
	dow    uint64

	domRestricted bool
	dowRestricted bool
}

var _ cron.Schedule = (*Expression)(nil)

// Parse validates expr and returns its compiled form.
func Parse(expr string) (*Expression, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(fields) {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidExpression, len(parts))
	}
	sets := make([]uint64, len(fields))
	for i, p := range parts {
		set, err := parseField(p, fields[i])
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}
	e := &Expression{
		raw:           strings.Join(parts, " "),
		minute:        sets[0],
		hour:          sets[1],
		dom:           sets[2],
		month:         sets[3],
		dow:           sets[4],
		domRestricted: !strings.HasPrefix(parts[2], "*"),
		dowRestricted: !strings.HasPrefix(parts[4], "*"),
	}
	// 7 is an alias for Sunday.
	if e.dow&(1<<7) != 0 {
		e.dow |= 1
	}
	return e, nil
}

// MustParse is Parse that panics on error.
func MustParse(expr string) *Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

func parseField(s string, f field) (uint64, error) {
	var set uint64
	for _, item := range strings.Split(s, ",") {
		if item == "" {
			return 0, fmt.Errorf("%w: empty item in %s", ErrInvalidExpression, f.name)
		}
		rangePart, step := item, 1
		if i := strings.IndexByte(item, '/'); i >= 0 {
			rangePart = item[:i]
			n, err := strconv.Atoi(item[i+1:])
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("%w: bad step %q in %s", ErrInvalidExpression, item[i+1:], f.name)
			}
			step = n
		}

		lo, hi := f.min, f.max
		switch {
		case rangePart == "*":
		case strings.Contains(rangePart, "-"):
			bounds := strings.SplitN(rangePart, "-", 2)
			a, err := atoiInRange(bounds[0], f)
			if err != nil {
				return 0, err
			}
			b, err := atoiInRange(bounds[1], f)
			if err != nil {
				return 0, err
			}
			if a > b {
				return 0, fmt.Errorf("%w: range %q is reversed in %s", ErrInvalidExpression, rangePart, f.name)
			}
			lo, hi = a, b
		default:
			v, err := atoiInRange(rangePart, f)
			if err != nil {
				return 0, err
			}
			lo = v
			if step == 1 {
				hi = v
			}
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

func atoiInRange(s string, f field) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number in %s", ErrInvalidExpression, s, f.name)
	}
	if v < f.min || v > f.max {
		return 0, fmt.Errorf("%w: %d out of range [%d,%d] in %s", ErrInvalidExpression, v, f.min, f.max, f.name)
	}
	return v, nil
}

// String returns the normalized expression.
func (e *Expression) String() string { return e.raw }

// Next implements cron.Schedule. It returns the zero time when nothing
// matches within the search horizon.
func (e *Expression) Next(t time.Time) time.Time {
	next, _ := e.NextAfter(t)
	return next
}

// NextAfter returns the first matching minute strictly after t, evaluated
// in t's location. Seconds are truncated before the scan.
func (e *Expression) NextAfter(t time.Time) (time.Time, bool) {
	loc := t.Location()
	c := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc).Add(time.Minute)
	limit := c.Add(searchHorizon)

	for !c.After(limit) {
		if !has(e.month, int(c.Month())) {
			c = time.Date(c.Year(), c.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !e.dayMatches(c) {
			c = time.Date(c.Year(), c.Month(), c.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !has(e.hour, c.Hour()) {
			c = time.Date(c.Year(), c.Month(), c.Day(), c.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !has(e.minute, c.Minute()) {
			c = c.Add(time.Minute)
			continue
		}
		return c, true
	}
	return time.Time{}, false
}

// dayMatches ORs day-of-month and day-of-week only when both are
// restricted. A wildcard in either field defers to the other one.
func (e *Expression) dayMatches(t time.Time) bool {
	domOK := has(e.dom, t.Day())
	dowOK := has(e.dow, int(t.Weekday()))
	if e.domRestricted && e.dowRestricted {
		return domOK || dowOK
	}
	return domOK && dowOK
}

func has(set uint64, v int) bool { return set&(1<<uint(v)) != 0 }
