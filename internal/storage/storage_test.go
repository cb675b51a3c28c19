package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "loopsched/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Logger{})
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if ValidDriver("redis") {
		t.Fatal("ValidDriver(redis) = true")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		if _, err := Open(Config{Driver: driver}, logx.Nop()); err == nil {
			t.Fatalf("Open(%q) without path: expected error", driver)
		}
	}
}

func TestStores(t *testing.T) {
	t.Parallel()
	for _, tt := range storeFiles {
		tt := tt
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), tt.file)
			st, err := Open(Config{Driver: tt.driver, Path: path, BusyTimeout: time.Second}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()
			exerciseStore(t, st)
		})
	}
}

var storeFiles = []struct {
	driver string
	file   string
}{
	{driver: "file", file: "journal"},
	{driver: "sqlite", file: "journal.db"},
}

func TestAppendFireHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	for _, tt := range storeFiles {
		tt := tt
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			st, err := Open(Config{Driver: tt.driver, Path: filepath.Join(t.TempDir(), tt.file)}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if err := st.AppendFire(ctx, FireRecord{Job: "beat", Action: "log", OK: true}); !errors.Is(err, context.Canceled) {
				t.Fatalf("AppendFire on canceled ctx = %v, want context.Canceled", err)
			}
			got, err := st.RecentFires(context.Background(), "", 10)
			if err != nil || len(got) != 0 {
				t.Fatalf("RecentFires = %v, %v; want nothing written", got, err)
			}
		})
	}
}

func TestReadOnlyOpen(t *testing.T) {
	t.Parallel()
	for _, tt := range storeFiles {
		tt := tt
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			missing := filepath.Join(dir, "nested", tt.file)
			if _, err := Open(Config{Driver: tt.driver, Path: missing, ReadOnly: true}, logx.Nop()); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("read-only Open of missing journal = %v, want os.ErrNotExist", err)
			}
			if _, err := os.Stat(filepath.Join(dir, "nested")); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("read-only Open created %s (stat err %v)", filepath.Join(dir, "nested"), err)
			}

			path := filepath.Join(dir, tt.file)
			rw, err := Open(Config{Driver: tt.driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if err := rw.AppendFire(context.Background(), FireRecord{Job: "beat", Action: "log", OK: true}); err != nil {
				t.Fatalf("AppendFire: %v", err)
			}
			if err := rw.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			ro, err := Open(Config{Driver: tt.driver, Path: path, ReadOnly: true}, logx.Nop())
			if err != nil {
				t.Fatalf("read-only Open: %v", err)
			}
			defer ro.Close()
			got, err := ro.RecentFires(context.Background(), "beat", 5)
			if err != nil || len(got) != 1 {
				t.Fatalf("RecentFires = %v, %v", got, err)
			}
			if err := ro.AppendFire(context.Background(), FireRecord{Job: "beat"}); !errors.Is(err, ErrReadOnly) {
				t.Fatalf("AppendFire on read-only store = %v, want ErrReadOnly", err)
			}
		})
	}
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	records := []FireRecord{
		{At: base, Job: "heartbeat", Action: "log", OK: true},
		{At: base.Add(time.Second), Job: "backup", Action: "exec", TookMS: 12, OK: false, Error: "exit status 1"},
		{At: base.Add(2 * time.Second), Job: "heartbeat", Action: "log", OK: true},
		{At: base.Add(3 * time.Second), Job: "heartbeat", Action: "log", TookMS: 1, OK: true},
	}
	for _, r := range records {
		if err := st.AppendFire(ctx, r); err != nil {
			t.Fatalf("AppendFire: %v", err)
		}
	}

	got, err := st.RecentFires(ctx, "heartbeat", 2)
	if err != nil {
		t.Fatalf("RecentFires: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].At.Equal(base.Add(3*time.Second)) || !got[1].At.Equal(base.Add(2*time.Second)) {
		t.Fatalf("not newest first: %+v", got)
	}
	if got[0].TookMS != 1 || !got[0].OK {
		t.Fatalf("unexpected record: %+v", got[0])
	}

	all, err := st.RecentFires(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentFires(all): %v", err)
	}
	if len(all) != len(records) {
		t.Fatalf("len(all) = %d, want %d", len(all), len(records))
	}
	if all[2].Job != "backup" || all[2].OK || all[2].Error != "exit status 1" {
		t.Fatalf("unexpected failed record: %+v", all[2])
	}

	none, err := st.RecentFires(ctx, "missing", 5)
	if err != nil || len(none) != 0 {
		t.Fatalf("RecentFires(missing) = %v, %v", none, err)
	}
	if got, _ := st.RecentFires(ctx, "", 0); len(got) != 0 {
		t.Fatalf("limit 0 returned %d records", len(got))
	}
}
