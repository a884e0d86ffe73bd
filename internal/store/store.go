// Package store persists the aggregate state between runs.
package store

import (
	"context"
	"fmt"

	"github.com/j-veylop/polar-stats/internal/models"
)

// Store loads and saves the aggregate state.
//
// Load returns the zero state when nothing has been persisted yet. Save
// replaces the previous record atomically.
type Store interface {
	Load(ctx context.Context) (models.AggregateState, error)
	Save(ctx context.Context, state models.AggregateState) error
}

// PersistenceError reports a failed load or save.
type PersistenceError struct {
	Err  error
	Op   string
	Path string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s state %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Memory is an in-process Store, used by tests and dry runs.
type Memory struct {
	State models.AggregateState
	Saves int
}

// Load returns the held state.
func (m *Memory) Load(context.Context) (models.AggregateState, error) {
	return m.State, nil
}

// Save replaces the held state.
func (m *Memory) Save(_ context.Context, state models.AggregateState) error {
	m.State = state
	m.Saves++
	return nil
}
