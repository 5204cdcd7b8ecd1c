package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/hako/durafmt"
)

// FormatDuration renders d using its two most significant non-zero units
// out of days, hours, minutes and seconds, e.g. "2d 5h". Zero or negative
// durations render as "0s".
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	if total <= 0 {
		return "0s"
	}
	units := []struct {
		n      int64
		suffix string
	}{
		{total / 86400, "d"},
		{total % 86400 / 3600, "h"},
		{total % 3600 / 60, "m"},
		{total % 60, "s"},
	}
	parts := make([]string, 0, 2)
	for _, u := range units {
		if u.n == 0 {
			continue
		}
		parts = append(parts, strconv.FormatInt(u.n, 10)+u.suffix)
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, " ")
}

// Humanize renders d in long form with two units, e.g. "2 days 5 hours".
func Humanize(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}
	return durafmt.Parse(d.Truncate(time.Second)).LimitFirstN(2).String()
}
