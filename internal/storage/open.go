package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "ontime/pkg/logx"
)

// Store is the minimal persistence API used by the services: the fired
// audit trail, notifier dedup keys, and the sound-channel registry.
type Store interface {
	AppendFired(ctx context.Context, e FiredEntry) error

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	PutChannel(ctx context.Context, asset, channelID string) error
	DeleteChannel(ctx context.Context, asset string) error
	Channels(ctx context.Context) (map[string]string, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
