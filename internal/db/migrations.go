package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/j-veylop/polar-stats/internal/logger"
	"github.com/j-veylop/polar-stats/internal/store"
)

// modernc.org/sqlite hands DATETIME columns back in several layouts.
var timeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05 +0000 UTC",
}

func parseTimeString(s string) (time.Time, bool) {
	for _, format := range timeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ImportLegacyState copies a JSON state record into an empty database.
// It reports whether anything was imported. A missing file is not an error.
func (db *DB) ImportLegacyState(ctx context.Context, jsonPath string) (bool, error) {
	if jsonPath == "" {
		return false, nil
	}

	has, err := db.HasState(ctx)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	data, err := os.ReadFile(jsonPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read legacy state: %w", err)
	}

	state, err := store.DecodeState(data)
	if err != nil {
		return false, fmt.Errorf("failed to import legacy state %s: %w", jsonPath, err)
	}

	if err := db.Save(ctx, state); err != nil {
		return false, err
	}

	logger.Info("imported legacy state", "path", jsonPath,
		"hourly_total", state.Hourly.Total(), "monthly_total", state.Monthly.Total())
	return true, nil
}
