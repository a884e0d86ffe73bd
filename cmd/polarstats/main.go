// Package main is the entry point for polarstats. It samples the search feed
// for the last completed hour and maintains the hourly and monthly tallies.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/j-veylop/polar-stats/internal/config"
	"github.com/j-veylop/polar-stats/internal/logger"
	"github.com/j-veylop/polar-stats/internal/models"
	"github.com/j-veylop/polar-stats/internal/services"
	"github.com/j-veylop/polar-stats/internal/store"
	"github.com/j-veylop/polar-stats/internal/ui/styles"
	"github.com/j-veylop/polar-stats/internal/version"
)

func main() {
	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "-v", "--version":
		fmt.Println(version.Info())
		os.Exit(0)
	case "-h", "--help", "help":
		printUsage()
		os.Exit(0)
	case "run", "watch", "show":
	default:
		fmt.Fprintln(os.Stderr, styles.ErrorStyle.Render(fmt.Sprintf("Error: unknown command %q", command)))
		printUsage()
		os.Exit(1)
	}

	if err := run(command); err != nil {
		fmt.Fprintln(os.Stderr, styles.ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// run contains the main application logic, separated for cleaner error handling.
func run(command string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Configure(cfg.LogLevel, cfg.LogFormat)

	mgr, err := services.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if closeErr := mgr.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "show":
		state, err := mgr.State(ctx)
		if err != nil {
			return err
		}
		writeState(os.Stdout, state)
		return nil

	case "watch":
		events := mgr.Subscribe()
		go func() {
			for ev := range events {
				fmt.Println(formatEvent(ev))
			}
		}()
		return mgr.Watch(ctx)

	default:
		res, err := mgr.RunOnce(ctx)
		if errors.Is(err, store.ErrLocked) {
			fmt.Println(styles.WarningStyle.Render("Another run is in progress, nothing to do."))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(formatEvent(services.RunEvent{At: time.Now(), Result: res}))
		return nil
	}
}

// formatEvent renders a single status line for a run.
func formatEvent(ev services.RunEvent) string {
	if ev.Err != nil {
		return styles.ErrorStyle.Render(fmt.Sprintf("✗ run failed: %v", ev.Err))
	}
	if ev.Result == nil {
		return ""
	}
	return styles.SuccessStyle.Render(fmt.Sprintf("✓ %s: %d matches across %d pages",
		ev.Result.Target, ev.Result.Matches, ev.Result.Pages))
}

// writeState prints the stored tallies as plain text.
func writeState(w io.Writer, state models.AggregateState) {
	lastUpdate := "never"
	if state.LastUpdate != nil {
		lastUpdate = state.LastUpdate.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(w, "Last update: %s\n\n", lastUpdate)

	fmt.Fprintln(w, styles.TitleStyle.Render("Hourly (UTC, latest hour)"))
	for hour := 0; hour < models.HoursPerDay; hour++ {
		fmt.Fprintf(w, "%s %d\n", styles.LabelStyle.Render(fmt.Sprintf("%02d", hour)), state.Hourly.Get(hour))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.TitleStyle.Render("Monthly (running total)"))
	for month := 1; month <= models.MonthsPerYear; month++ {
		label := time.Month(month).String()[:3]
		fmt.Fprintf(w, "%s %d\n", styles.LabelStyle.Render(label), state.Monthly.Get(month))
	}
}

// printUsage prints the command-line usage information.
func printUsage() {
	fmt.Println(`polarstats - hourly and monthly tallies of a search feed

Usage:
  polarstats [command]

Commands:
  run             Count the last completed hour and update the tallies (default)
  watch           Run now and then every hour until interrupted
  show            Print the stored tallies

Flags:
  -h, --help      Show this help message
  -v, --version   Show version information

Environment Variables:
  STATE_BACKEND     json or sqlite (default: json)
  STATE_PATH        JSON state file (default: ~/.polar-stats/data)
  DATABASE_PATH     SQLite database path (default: ~/.polar-stats/stats.db)
  LOCK_PATH         Run lock file (default: next to STATE_PATH)
  SEARCH_URL        Search endpoint; the page parameter is added per request
  SEARCH_MAX_PAGES  Page cap per run (default: 0, unbounded)
  SEARCH_MIN_PAGES  Pages always read; past them a page without matches ends
                    the run (default: 10, 0 reads until the feed is exhausted)
  SEARCH_PAGE_RATE  Page requests per second (default: 2, 0 disables pacing)
  REQUEST_TIMEOUT   Per-page request timeout (default: 30s)
  RUN_OFFSET        Watch mode delay past the hour (default: 1m)
  STATUS_ADDR       Watch mode status server address (default: disabled)
  NOTIFY            Watch mode desktop notification on failed runs (default: false)
  LOG_LEVEL         debug, info, warn or error (default: info)
  LOG_FORMAT        text or json (default: text)

Configuration:
  The application looks for .env files in the following locations:
  - Current directory
  - ~/.config/polar-stats/.env
  - ~/.polar-stats/.env`)
}
