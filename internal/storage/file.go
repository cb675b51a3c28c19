package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "loopsched/pkg/logx"
)

// fileStore is a dependency-free journal backend.
//
// Files:
//   - <prefix>.fires.jsonl (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu       sync.Mutex
	path     string
	f        *os.File
	readOnly bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	firesPath := prefix + ".fires.jsonl"
	if cfg.ReadOnly {
		if _, err := os.Stat(firesPath); err != nil {
			return nil, err
		}
		return &fileStore{log: log, path: firesPath, readOnly: true}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(firesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file journal opened", logx.String("path", firesPath))
	return &fileStore{log: log, path: firesPath, f: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendFire(ctx context.Context, r FireRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return ErrReadOnly
	}
	if s.f == nil {
		return errors.New("fire journal closed")
	}
	return json.NewEncoder(s.f).Encode(r)
}

func (s *fileStore) RecentFires(ctx context.Context, job string, limit int) ([]FireRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// keep a ring of the last `limit` matches
	ring := make([]FireRecord, 0, limit)
	next := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r FireRecord
		if err := json.Unmarshal(line, &r); err != nil {
			// torn write at the tail after a crash; skip
			s.log.Debug("skipping bad journal line", logx.Err(err))
			continue
		}
		if job != "" && r.Job != job {
			continue
		}
		if len(ring) < limit {
			ring = append(ring, r)
		} else {
			ring[next] = r
		}
		next = (next + 1) % limit
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]FireRecord, 0, len(ring))
	for i := 0; i < len(ring); i++ {
		idx := (next - 1 - i + len(ring)*2) % len(ring)
		out = append(out, ring[idx])
	}
	return out, nil
}
