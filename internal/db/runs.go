package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/j-veylop/polar-stats/internal/logger"
	"github.com/j-veylop/polar-stats/internal/models"
)

const runTimeFormat = "2006-01-02 15:04:05"

// RecordRun stores the outcome of a run.
func (db *DB) RecordRun(ctx context.Context, run models.RunRecord) error {
	query := `
		INSERT INTO runs (
			id, started_at, finished_at, target_hour, pages, matches, status, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		run.ID,
		run.StartedAt.UTC().Format(runTimeFormat),
		run.FinishedAt.UTC().Format(runTimeFormat),
		run.TargetHour,
		run.Pages,
		run.Matches,
		string(run.Status),
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 24
	}

	query := `
		SELECT id, started_at, finished_at, target_hour, pages, matches, status, error
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	var runs []models.RunRecord
	for rows.Next() {
		var run models.RunRecord
		var started, finished, status string
		var errStr sql.NullString

		err := rows.Scan(
			&run.ID,
			&started,
			&finished,
			&run.TargetHour,
			&run.Pages,
			&run.Matches,
			&status,
			&errStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if t, ok := parseTimeString(started); ok {
			run.StartedAt = t
		}
		if t, ok := parseTimeString(finished); ok {
			run.FinishedAt = t
		}
		run.Status = models.RunStatus(status)
		run.Error = errStr.String
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// CountRuns returns the number of recorded runs with the given status, or
// all runs when status is empty.
func (db *DB) CountRuns(ctx context.Context, status models.RunStatus) (int, error) {
	var n int
	var err error
	if status == "" {
		err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n)
	} else {
		err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE status = ?", string(status)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}

// nullString returns a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
