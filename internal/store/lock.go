package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/j-veylop/polar-stats/internal/logger"
)

// ErrLocked is returned when another run holds the run lock.
var ErrLocked = errors.New("another run is in progress")

// DefaultStaleAfter is the age after which an abandoned lock is reclaimed.
const DefaultStaleAfter = 2 * time.Hour

// Lock is an exclusive run lock backed by a file.
type Lock struct {
	path string
}

// AcquireLock creates the lock file exclusively. A lock file older than
// staleAfter is treated as left behind by a crashed run and replaced.
func AcquireLock(path string, staleAfter time.Duration) (*Lock, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			if closeErr := f.Close(); closeErr != nil {
				logger.Warn("failed to close lock file", "path", path, "error", closeErr)
			}
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil || staleAfter <= 0 || time.Since(info.ModTime()) < staleAfter {
			return nil, ErrLocked
		}

		logger.Warn("reclaiming stale run lock", "path", path, "age", time.Since(info.ModTime()).Round(time.Second).String())
		reclaimed, err := reclaimStale(path, info)
		if err != nil {
			return nil, err
		}
		if !reclaimed {
			return nil, ErrLocked
		}
	}

	return nil, ErrLocked
}

// reclaimStale moves the lock file aside and deletes it, but only if it is
// still the file seen as stale. If another process replaced it in between,
// that lock is put back and false is returned.
func reclaimStale(path string, stale os.FileInfo) (bool, error) {
	aside := fmt.Sprintf("%s.stale.%d", path, os.Getpid())
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Already reclaimed by someone else; retry the create.
			return true, nil
		}
		return false, fmt.Errorf("failed to move stale lock: %w", err)
	}

	moved, err := os.Stat(aside)
	if err != nil || !os.SameFile(stale, moved) {
		if linkErr := os.Link(aside, path); linkErr != nil {
			logger.Warn("failed to restore run lock", "path", path, "error", linkErr)
		}
		if rmErr := os.Remove(aside); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warn("failed to remove moved lock", "path", aside, "error", rmErr)
		}
		return false, nil
	}

	if err := os.Remove(aside); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to remove stale lock: %w", err)
	}
	return true, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Owner returns the pid recorded in a lock file, or 0 if unreadable.
func Owner(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var pidStr string
	if _, err := fmt.Sscan(string(data), &pidStr); err != nil {
		return 0
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0
	}
	return pid
}
