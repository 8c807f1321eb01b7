//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "ontime/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendFired(ctx context.Context, e FiredEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fired (at, event_id, prayer, kind, title, channel_id, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.EventID, e.Prayer, e.Kind, e.Title, e.ChannelID, e.Error)
	return err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup (key, until) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET until = excluded.until`,
		key, until.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`,
		time.Now().UTC().Format(time.RFC3339Nano))
	return nil
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return until, true, nil
}

func (s *sqliteStore) PutChannel(ctx context.Context, asset, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (asset, channel_id) VALUES (?, ?)
		 ON CONFLICT(asset) DO UPDATE SET channel_id = excluded.channel_id`,
		asset, channelID)
	return err
}

func (s *sqliteStore) DeleteChannel(ctx context.Context, asset string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE asset = ?`, asset)
	return err
}

func (s *sqliteStore) Channels(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT asset, channel_id FROM channels`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var asset, ch string
		if err := rows.Scan(&asset, &ch); err != nil {
			return nil, err
		}
		out[asset] = ch
	}
	return out, rows.Err()
}
