package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	logx "reminderd/pkg/logx"
)

func openForTest(t *testing.T, driver, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s) error: %v", driver, err)
	}
	return st
}

func TestStoreDriversSurviveReopen(t *testing.T) {
	t.Parallel()
	drivers := []struct {
		name string
		file string
	}{
		{name: "file", file: "state.json"},
		{name: "sqlite", file: "state.db"},
	}
	for _, tt := range drivers {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), tt.file)

			st := openForTest(t, tt.name, path)
			if err := st.Put(ctx, map[string]string{"intervalMinutes": "15", "isActive": "true"}); err != nil {
				t.Fatalf("Put error: %v", err)
			}
			if err := st.Put(ctx, map[string]string{"intervalMinutes": "20"}); err != nil {
				t.Fatalf("Put error: %v", err)
			}
			if err := st.Delete(ctx, "isActive"); err != nil {
				t.Fatalf("Delete error: %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close error: %v", err)
			}

			st = openForTest(t, tt.name, path)
			t.Cleanup(func() { _ = st.Close() })
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if got["intervalMinutes"] != "20" {
				t.Fatalf("intervalMinutes = %q, want 20", got["intervalMinutes"])
			}
			if _, ok := got["isActive"]; ok {
				t.Fatalf("isActive should have been deleted, got %q", got["isActive"])
			}
		})
	}
}

func TestFileStoreCompactsJournal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	st := openForTest(t, "file", path)

	for i := 0; i < compactEvery; i++ {
		if err := st.Put(ctx, map[string]string{"scheduleEpoch": strconv.Itoa(i)}); err != nil {
			t.Fatalf("Put #%d error: %v", i, err)
		}
	}
	_ = st.Close()

	info, err := os.Stat(filepath.Join(filepath.Dir(path), "state.journal.jsonl"))
	if err != nil {
		t.Fatalf("stat journal: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("journal size = %d after compaction, want 0", info.Size())
	}

	st = openForTest(t, "file", path)
	t.Cleanup(func() { _ = st.Close() })
	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if want := strconv.Itoa(compactEvery - 1); got["scheduleEpoch"] != want {
		t.Fatalf("scheduleEpoch = %q, want %s", got["scheduleEpoch"], want)
	}
}

func TestFileStoreSkipsTornJournalLine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	journal := filepath.Join(dir, "state.journal.jsonl")
	content := `{"k":"intervalMinutes","v":"30"}` + "\n" + `{"k":"isAct`
	if err := os.WriteFile(journal, []byte(content), 0o600); err != nil {
		t.Fatalf("write journal: %v", err)
	}

	st := openForTest(t, "file", filepath.Join(dir, "state.json"))
	t.Cleanup(func() { _ = st.Close() })
	got, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got["intervalMinutes"] != "30" || len(got) != 1 {
		t.Fatalf("unexpected state after torn journal: %v", got)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	_ = st.Close()
	if err := st.Put(context.Background(), map[string]string{"a": "b"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Put after Close = %v, want ErrClosed", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("Open(redis) = %v, want ErrUnknownDriver", err)
	}
}

func TestVolatileDrivers(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"":        true,
		"memory":  true,
		" None ":  true,
		"file":    false,
		"sqlite":  false,
		"sqlite3": false,
	}
	for driver, want := range tests {
		if got := Volatile(driver); got != want {
			t.Errorf("Volatile(%q) = %v, want %v", driver, got, want)
		}
	}
	st, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(empty driver) error: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*memoryStore); !ok {
		t.Fatalf("Open(empty driver) = %T, want memory store", st)
	}
}
