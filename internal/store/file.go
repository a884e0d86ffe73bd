package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/j-veylop/polar-stats/internal/logger"
	"github.com/j-veylop/polar-stats/internal/models"
)

// FileStore keeps the state as a JSON document on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a JSON file store, creating the parent directory.
func NewFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Path returns the state file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state. A missing file yields the zero state.
func (s *FileStore) Load(context.Context) (models.AggregateState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("no state record, using defaults", "path", s.path)
		return models.NewAggregateState(), nil
	}
	if err != nil {
		return models.AggregateState{}, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	state, err := DecodeState(data)
	if err != nil {
		return models.AggregateState{}, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	return state, nil
}

// Save writes the state to a temp file in the same directory, syncs it and
// renames it over the previous record.
func (s *FileStore) Save(_ context.Context, state models.AggregateState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: fmt.Errorf("failed to marshal state: %w", err)}
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// DecodeState parses a persisted JSON state record.
func DecodeState(data []byte) (models.AggregateState, error) {
	var doc struct {
		Hourly  *models.HourHistogram  `json:"hourly"`
		Monthly *models.MonthHistogram `json:"monthly"`
		models.AggregateState
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.AggregateState{}, fmt.Errorf("corrupt state record: %w", err)
	}
	if doc.Hourly == nil || doc.Monthly == nil {
		return models.AggregateState{}, errors.New("corrupt state record: hourly and monthly are required")
	}

	state := doc.AggregateState
	state.Hourly = *doc.Hourly
	state.Monthly = *doc.Monthly
	return state, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if removeErr := os.Remove(tmpName); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			logger.Error("failed to remove temp file", "path", tmpName, "error", removeErr)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	syncDir(filepath.Dir(path))
	return nil
}

// syncDir flushes the rename to disk where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer func() { _ = d.Close() }()
	_ = d.Sync()
}
