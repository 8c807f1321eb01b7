package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "ontime/pkg/logx"
)

// fileStore is a dependency-free backend: the audit trail is an append-only
// jsonl file, dedup keys and the channel registry are small JSON snapshots
// rewritten atomically on change.
type fileStore struct {
	mu   sync.Mutex
	dir  string
	log  logx.Logger
	aud  *os.File
	dd   map[string]time.Time
	chns map[string]string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("file storage path is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	aud, err := os.OpenFile(filepath.Join(dir, "fired.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	st := &fileStore{dir: dir, log: log, aud: aud, dd: map[string]time.Time{}, chns: map[string]string{}}
	if err := st.loadSnapshot("dedup.json", &st.dd); err != nil {
		log.Warn("dedup snapshot unreadable, starting fresh", logx.Err(err))
		st.dd = map[string]time.Time{}
	}
	if err := st.loadSnapshot("channels.json", &st.chns); err != nil {
		log.Warn("channel snapshot unreadable, starting fresh", logx.Err(err))
		st.chns = map[string]string{}
	}
	return st, nil
}

func (s *fileStore) loadSnapshot(name string, into any) error {
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, into)
}

// writeSnapshot writes via temp file + rename so readers never observe a
// partial snapshot.
func (s *fileStore) writeSnapshot(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, name+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, name))
}

func (s *fileStore) AppendFired(ctx context.Context, e FiredEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.aud.Write(append(b, '\n'))
	return err
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dd[key] = until
	// Opportunistic prune of expired keys keeps the snapshot bounded.
	now := time.Now()
	for k, u := range s.dd {
		if u.Before(now) {
			delete(s.dd, k)
		}
	}
	return s.writeSnapshot("dedup.json", s.dd)
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.dd[key]
	return u, ok, nil
}

func (s *fileStore) PutChannel(ctx context.Context, asset, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chns[asset] = channelID
	return s.writeSnapshot("channels.json", s.chns)
}

func (s *fileStore) DeleteChannel(ctx context.Context, asset string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chns, asset)
	return s.writeSnapshot("channels.json", s.chns)
}

func (s *fileStore) Channels(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.chns))
	for k, v := range s.chns {
		out[k] = v
	}
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aud != nil {
		err := s.aud.Close()
		s.aud = nil
		return err
	}
	return nil
}
