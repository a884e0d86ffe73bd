package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/j-veylop/polar-stats/internal/models"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "data"))
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}
	return s
}

func sampleState() models.AggregateState {
	ts := time.Date(2024, time.May, 14, 9, 0, 0, 0, time.UTC)
	state := models.NewAggregateState()
	state.LastUpdate = &ts
	for hour := 0; hour < models.HoursPerDay; hour++ {
		_ = state.Hourly.Set(hour, int64(hour*3))
	}
	_ = state.Monthly.Set(5, 1234)
	_ = state.Monthly.Set(12, 7)
	return state
}

func TestFileStore_LoadMissingReturnsDefault(t *testing.T) {
	s := newTestFileStore(t)

	state, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !state.Equal(models.NewAggregateState()) {
		t.Errorf("Load() = %+v, want zero state", state)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	s := newTestFileStore(t)
	want := sampleState()

	if err := s.Save(context.Background(), want); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestFileStore_SaveOverwritesAndLeavesNoTemp(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	first := sampleState()
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	second := models.NewAggregateState()
	_ = second.Hourly.Set(3, 1)
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !got.Equal(second) {
		t.Errorf("Load() = %+v, want %+v", got, second)
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contains %v, want only the state file", names)
	}
}

func TestFileStore_LoadLegacyRecord(t *testing.T) {
	s := newTestFileStore(t)
	legacy := `{"hourly": {"0": 1, "1": 2, "23": 5}, "monthly": {"1": 10, "12": 3}}`
	if err := os.WriteFile(s.Path(), []byte(legacy), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	state, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if state.Hourly.Get(23) != 5 || state.Hourly.Get(12) != 0 {
		t.Errorf("hourly = %v", state.Hourly)
	}
	if state.Monthly.Get(1) != 10 || state.Monthly.Get(12) != 3 {
		t.Errorf("monthly = %v", state.Monthly)
	}
	if state.LastUpdate != nil {
		t.Errorf("LastUpdate = %v, want nil", state.LastUpdate)
	}
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Garbage", "{not json"},
		{"MissingMonthly", `{"hourly": {}}`},
		{"MissingHourly", `{"monthly": {}}`},
		{"OutOfRangeHour", `{"hourly": {"24": 1}, "monthly": {}}`},
		{"NegativeCount", `{"hourly": {}, "monthly": {"3": -1}}`},
		{"ZeroPaddedHour", `{"hourly": {"01": 7}, "monthly": {}}`},
		{"SignedHour", `{"hourly": {"+1": 9}, "monthly": {}}`},
		{"AliasedHourKeys", `{"hourly": {"1": 5, "01": 7, "+1": 9}, "monthly": {}}`},
		{"ZeroPaddedMonth", `{"hourly": {}, "monthly": {"03": 2}}`},
		{"NegativeZeroMonth", `{"hourly": {}, "monthly": {"-0": 1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestFileStore(t)
			if err := os.WriteFile(s.Path(), []byte(tt.content), 0o600); err != nil {
				t.Fatalf("WriteFile() failed: %v", err)
			}

			_, err := s.Load(context.Background())
			var perr *PersistenceError
			if !errors.As(err, &perr) {
				t.Fatalf("Load() error = %v, want *PersistenceError", err)
			}
			if perr.Op != "load" {
				t.Errorf("Op = %q, want load", perr.Op)
			}
		})
	}
}

func TestFileStore_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	s := &FileStore{path: filepath.Join(dir, "missing", "data")}

	err := s.Save(context.Background(), sampleState())
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "save" {
		t.Fatalf("Save() error = %v, want save *PersistenceError", err)
	}
}

func TestMemory(t *testing.T) {
	m := &Memory{}
	want := sampleState()
	if err := m.Save(context.Background(), want); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, _ := m.Load(context.Background())
	if !got.Equal(want) || m.Saves != 1 {
		t.Errorf("Memory store did not keep state")
	}
}

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	lock, err := AcquireLock(path, DefaultStaleAfter)
	if err != nil {
		t.Fatalf("AcquireLock() failed: %v", err)
	}
	if Owner(path) != os.Getpid() {
		t.Errorf("Owner() = %d, want %d", Owner(path), os.Getpid())
	}

	if _, err := AcquireLock(path, DefaultStaleAfter); !errors.Is(err, ErrLocked) {
		t.Errorf("second AcquireLock() error = %v, want ErrLocked", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	again, err := AcquireLock(path, DefaultStaleAfter)
	if err != nil {
		t.Fatalf("AcquireLock() after release failed: %v", err)
	}
	_ = again.Release()
}

func TestAcquireLock_ReclaimsStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	if err := os.WriteFile(path, []byte("99999 old\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes() failed: %v", err)
	}

	lock, err := AcquireLock(path, DefaultStaleAfter)
	if err != nil {
		t.Fatalf("AcquireLock() should reclaim stale lock: %v", err)
	}
	defer func() { _ = lock.Release() }()

	if Owner(path) != os.Getpid() {
		t.Errorf("Owner() = %d, want %d", Owner(path), os.Getpid())
	}
}

func TestReclaimStale_KeepsLockTakenMeanwhile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.lock")
	if err := os.WriteFile(path, []byte("99999 old\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	stale, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}

	// Another process reclaims first and writes its own lock.
	fresh := filepath.Join(dir, "fresh.lock")
	if err := os.WriteFile(fresh, []byte("4242 now\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := os.Rename(fresh, path); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}

	reclaimed, err := reclaimStale(path, stale)
	if err != nil {
		t.Fatalf("reclaimStale() failed: %v", err)
	}
	if reclaimed {
		t.Error("reclaimStale() removed a lock it did not judge stale")
	}
	if Owner(path) != 4242 {
		t.Errorf("Owner() = %d, want the other process's lock 4242", Owner(path))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the lock", len(entries))
	}
}

func TestReclaimStale_AlreadyGone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	if err := os.WriteFile(path, []byte("1 old\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	stale, _ := os.Stat(path)
	_ = os.Remove(path)

	reclaimed, err := reclaimStale(path, stale)
	if err != nil || !reclaimed {
		t.Errorf("reclaimStale() = %v, %v, want true, nil", reclaimed, err)
	}
}

func TestLock_ReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() = %v", err)
	}
}
