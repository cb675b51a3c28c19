package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrReadOnly = errors.New("storage opened read-only")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file, <path>.fires.jsonl
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// If Driver is empty or "none", storage is disabled.
//
// ReadOnly opens an existing journal for queries. Nothing is created on
// disk and a missing journal is an error.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	ReadOnly    bool
}

// FireRecord records one job invocation.
// Keep it compact and schema-stable.
type FireRecord struct {
	At     time.Time `json:"at"`
	Job    string    `json:"job"`
	Action string    `json:"action"`
	TookMS int64     `json:"took_ms"`
	OK     bool      `json:"ok"`
	Error  string    `json:"error,omitempty"`
}
