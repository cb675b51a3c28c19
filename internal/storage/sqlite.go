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
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "loopsched/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// defaultRetain bounds the journal table; older rows are pruned periodically.
const defaultRetain = 10000

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
	retain     int
	readOnly   bool
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	dsn := path
	if cfg.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		dsn = path + "?_pragma=query_only(1)"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500, retain: defaultRetain, readOnly: cfg.ReadOnly}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	if cfg.ReadOnly {
		log.Debug("sqlite journal opened read-only", logx.String("path", path))
		return st, nil
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite journal opened", logx.String("path", path))
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

func (s *sqliteStore) AppendFire(ctx context.Context, r FireRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if s.readOnly {
		return ErrReadOnly
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fires(at, job, action, took_ms, ok, err) VALUES(?,?,?,?,?,?)`,
		r.At.UTC().Format(time.RFC3339Nano), r.Job, r.Action, r.TookMS, boolInt(r.OK), nullStr(r.Error),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.prune(pctx); perr != nil {
			s.log.Debug("journal prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentFires(ctx context.Context, job string, limit int) ([]FireRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}
	var (
		rows *sql.Rows
		err  error
	)
	if job == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT at, job, action, took_ms, ok, err FROM fires ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT at, job, action, took_ms, ok, err FROM fires WHERE job = ? ORDER BY id DESC LIMIT ?`, job, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FireRecord
	for rows.Next() {
		var (
			at   string
			r    FireRecord
			ok   int
			errS sql.NullString
		)
		if err := rows.Scan(&at, &r.Job, &r.Action, &r.TookMS, &ok, &errS); err != nil {
			return nil, err
		}
		r.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("fires.at %q: %w", at, err)
		}
		r.OK = ok != 0
		r.Error = errS.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM fires WHERE id <= (SELECT MAX(id) FROM fires) - ?`, s.retain)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
