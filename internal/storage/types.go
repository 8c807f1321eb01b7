package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshots)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// FiredEntry records one delivered (or failed) reminder.
// Keep it compact and schema-stable.
type FiredEntry struct {
	At        time.Time
	EventID   int
	Prayer    string
	Kind      string
	Title     string
	ChannelID string
	Error     string
}
