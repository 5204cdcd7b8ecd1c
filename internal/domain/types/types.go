// Package types contains the read shapes served by the HTTP API.
package types

import "time"

// Entry is one ranked row.
type Entry struct {
	Position    int       `json:"position"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Value       float64   `json:"value"`
	LastUpdated time.Time `json:"last_updated"`
}

// Timed describes the current period of a timed board.
type Timed struct {
	Schedule  string     `json:"schedule"`
	Type      string     `json:"type"`
	State     string     `json:"state"`
	StartTime time.Time  `json:"start_time"`
	NextReset time.Time  `json:"next_reset"`
	LastReset *time.Time `json:"last_reset,omitempty"`
	ResetsIn  string     `json:"resets_in"`
	// ResetsInText is the long form of ResetsIn, e.g. "2 days 5 hours".
	ResetsInText string `json:"resets_in_text"`
}

// Board summarizes one board.
type Board struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Provider string   `json:"provider"`
	Size     int      `json:"size"`
	MaxSize  int      `json:"max_size"`
	Pending  int      `json:"pending"`
	Enabled  bool     `json:"enabled"`
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
	Timed    *Timed   `json:"timed,omitempty"`
}

// Position answers where an identifier stands on a board.
type Position struct {
	Top      string `json:"top"`
	ID       string `json:"id"`
	Position int    `json:"position"`
	InTop    bool   `json:"in_top"`
	Entry    *Entry `json:"entry,omitempty"`
}

// Activity actions.
const (
	ActionJoin = "join"
	ActionQuit = "quit"
)

// Activity is an identifier coming online or going offline.
type Activity struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Action string `json:"action"`
}

// ActivityResult reports how many boards queued work for an activity.
type ActivityResult struct {
	Status   string `json:"status"`
	Enqueued int    `json:"enqueued"`
}
