package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/j-veylop/polar-stats/internal/models"
	"github.com/j-veylop/polar-stats/internal/store"
)

var _ store.Store = (*DB)(nil)

// HasState reports whether a state has ever been saved.
func (db *DB) HasState(ctx context.Context) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM state_meta").Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query state meta: %w", err)
	}
	return n > 0, nil
}

// Load reads the aggregate state. An empty database yields the zero state.
func (db *DB) Load(ctx context.Context) (models.AggregateState, error) {
	state := models.NewAggregateState()

	if err := db.loadHourly(ctx, &state); err != nil {
		return models.AggregateState{}, db.persistenceError("load", err)
	}
	if err := db.loadMonthly(ctx, &state); err != nil {
		return models.AggregateState{}, db.persistenceError("load", err)
	}

	var lastUpdate sql.NullString
	err := db.QueryRowContext(ctx, "SELECT last_update FROM state_meta WHERE id = 1").Scan(&lastUpdate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.AggregateState{}, db.persistenceError("load", fmt.Errorf("failed to query state meta: %w", err))
	}
	if lastUpdate.Valid && lastUpdate.String != "" {
		t, err := time.Parse(time.RFC3339, lastUpdate.String)
		if err != nil {
			return models.AggregateState{}, db.persistenceError("load", fmt.Errorf("corrupt last_update %q: %w", lastUpdate.String, err))
		}
		t = t.UTC()
		state.LastUpdate = &t
	}

	return state, nil
}

func (db *DB) loadHourly(ctx context.Context, state *models.AggregateState) error {
	rows, err := db.QueryContext(ctx, "SELECT hour, count FROM hourly_counts")
	if err != nil {
		return fmt.Errorf("failed to query hourly counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var hour int
		var count int64
		if err := rows.Scan(&hour, &count); err != nil {
			return fmt.Errorf("failed to scan hourly count: %w", err)
		}
		if err := state.Hourly.Set(hour, count); err != nil {
			return fmt.Errorf("corrupt hourly row: %w", err)
		}
	}
	return rows.Err()
}

func (db *DB) loadMonthly(ctx context.Context, state *models.AggregateState) error {
	rows, err := db.QueryContext(ctx, "SELECT month, count FROM monthly_counts")
	if err != nil {
		return fmt.Errorf("failed to query monthly counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var month int
		var count int64
		if err := rows.Scan(&month, &count); err != nil {
			return fmt.Errorf("failed to scan monthly count: %w", err)
		}
		if err := state.Monthly.Set(month, count); err != nil {
			return fmt.Errorf("corrupt monthly row: %w", err)
		}
	}
	return rows.Err()
}

// Save replaces the stored state in a single transaction.
func (db *DB) Save(ctx context.Context, state models.AggregateState) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return db.persistenceError("save", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveState(ctx, tx, state); err != nil {
		return db.persistenceError("save", err)
	}

	if err := tx.Commit(); err != nil {
		return db.persistenceError("save", fmt.Errorf("failed to commit state: %w", err))
	}
	return nil
}

func saveState(ctx context.Context, tx *sql.Tx, state models.AggregateState) error {
	hourStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hourly_counts (hour, count) VALUES (?, ?)
		ON CONFLICT(hour) DO UPDATE SET count = excluded.count
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare hourly upsert: %w", err)
	}
	defer func() { _ = hourStmt.Close() }()

	for hour := 0; hour < models.HoursPerDay; hour++ {
		if _, err := hourStmt.ExecContext(ctx, hour, state.Hourly.Get(hour)); err != nil {
			return fmt.Errorf("failed to save hour %d: %w", hour, err)
		}
	}

	monthStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monthly_counts (month, count) VALUES (?, ?)
		ON CONFLICT(month) DO UPDATE SET count = excluded.count
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare monthly upsert: %w", err)
	}
	defer func() { _ = monthStmt.Close() }()

	for month := 1; month <= models.MonthsPerYear; month++ {
		if _, err := monthStmt.ExecContext(ctx, month, state.Monthly.Get(month)); err != nil {
			return fmt.Errorf("failed to save month %d: %w", month, err)
		}
	}

	var lastUpdate sql.NullString
	if state.LastUpdate != nil {
		lastUpdate = sql.NullString{String: state.LastUpdate.UTC().Format(time.RFC3339), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO state_meta (id, last_update, saved_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_update = excluded.last_update, saved_at = excluded.saved_at
	`, lastUpdate, time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("failed to save state meta: %w", err)
	}

	return nil
}

func (db *DB) persistenceError(op string, err error) error {
	return &store.PersistenceError{Op: op, Path: db.path, Err: err}
}
