// Package runner composes the page source, window filter, aggregator and
// state store into a single run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/j-veylop/polar-stats/internal/aggregate"
	"github.com/j-veylop/polar-stats/internal/feed"
	"github.com/j-veylop/polar-stats/internal/logger"
	"github.com/j-veylop/polar-stats/internal/metrics"
	"github.com/j-veylop/polar-stats/internal/models"
	"github.com/j-veylop/polar-stats/internal/store"
	"github.com/j-veylop/polar-stats/internal/window"
)

// Stage names the step of a run that failed.
type Stage string

const (
	StageLoad  Stage = "load"
	StageFetch Stage = "fetch"
	StageParse Stage = "parse"
	StageSave  Stage = "save"
)

// RunError reports a failed run. The prior state record is left untouched.
type RunError struct {
	Err   error
	Stage Stage
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed at %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Recorder receives the outcome of every run.
type Recorder interface {
	RecordRun(ctx context.Context, run models.RunRecord) error
}

// Config is the immutable run configuration.
type Config struct {
	// MaxPages caps pagination; zero means no cap.
	MaxPages int
	// MinPages is how many pages are always read. Past it, the first page
	// without a match in the target hour ends pagination. Zero disables the
	// rule.
	MinPages int
}

// Result is what a successful run produced.
type Result struct {
	State   models.AggregateState
	RunID   string
	Target  models.TargetHour
	Matches int64
	Pages   int
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder reports run outcomes to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithMetrics publishes run outcomes and state to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// Runner executes runs. Runs must not overlap; callers serialize them.
type Runner struct {
	source   feed.PageSource
	store    store.Store
	recorder Recorder
	metrics  *metrics.Metrics
	cfg      Config
	mu       sync.RWMutex
}

// New creates a runner.
func New(cfg Config, source feed.PageSource, st store.Store, opts ...Option) *Runner {
	r := &Runner{
		source: source,
		store:  st,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetSource replaces the page source used by subsequent runs.
func (r *Runner) SetSource(source feed.PageSource) {
	r.mu.Lock()
	r.source = source
	r.mu.Unlock()
}

func (r *Runner) currentSource() feed.PageSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// Run measures the hour preceding now and folds the count into the stored
// state. On any error nothing is saved.
func (r *Runner) Run(ctx context.Context, now time.Time) (*Result, error) {
	target := window.TargetHourAt(now)
	rec := models.RunRecord{
		ID:         uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		TargetHour: target.String(),
	}

	result, err := r.run(ctx, target, &rec)

	rec.FinishedAt = time.Now().UTC()
	if err != nil {
		rec.Status = models.RunStatusFailed
		rec.Error = err.Error()
		logger.Error("run failed", "run_id", rec.ID, "target_hour", rec.TargetHour,
			"pages", rec.Pages, "error", err)
	} else {
		rec.Status = models.RunStatusOK
		logger.Info("run complete", "run_id", rec.ID, "target_hour", rec.TargetHour,
			"pages", rec.Pages, "matches", rec.Matches)
	}
	r.report(ctx, rec)

	if err != nil {
		return nil, err
	}
	r.metrics.SetState(result.State)
	return result, nil
}

func (r *Runner) run(ctx context.Context, target models.TargetHour, rec *models.RunRecord) (*Result, error) {
	state, err := r.store.Load(ctx)
	if err != nil {
		return nil, &RunError{Stage: StageLoad, Err: err}
	}

	matches, pages, err := r.count(ctx, target)
	rec.Pages = pages
	rec.Matches = matches
	if err != nil {
		return nil, err
	}

	next := aggregate.Advance(state, target, matches)

	if err := r.store.Save(ctx, next); err != nil {
		return nil, &RunError{Stage: StageSave, Err: err}
	}

	return &Result{
		State:   next,
		RunID:   rec.ID,
		Target:  target,
		Matches: matches,
		Pages:   pages,
	}, nil
}

// count walks every page and sums the items inside the target hour.
func (r *Runner) count(ctx context.Context, target models.TargetHour) (int64, int, error) {
	pager := feed.NewPager(r.currentSource(), r.cfg.MaxPages)

	var matches int64
	for pager.Next(ctx) {
		n, err := window.CountMatches(pager.Items(), target)
		if err != nil {
			return matches, pager.Page(), &RunError{Stage: StageParse, Err: fmt.Errorf("page %d: %w", pager.Page(), err)}
		}
		matches += n
		if n == 0 && r.cfg.MinPages > 0 && pager.Page() > r.cfg.MinPages {
			logger.Debug("no matches past the minimum pages, stopping", "page", pager.Page())
			return matches, pager.Page(), nil
		}
	}

	if pager.Termination() == feed.Failed {
		return matches, pager.Page(), &RunError{Stage: StageFetch, Err: pager.Err()}
	}
	return matches, pager.Page(), nil
}

func (r *Runner) report(ctx context.Context, rec models.RunRecord) {
	r.metrics.ObserveRun(rec)
	if r.recorder == nil {
		return
	}
	// The run outcome must be recorded even if ctx was canceled mid-run.
	recordCtx := context.WithoutCancel(ctx)
	if err := r.recorder.RecordRun(recordCtx, rec); err != nil {
		logger.Warn("failed to record run", "run_id", rec.ID, "error", err)
	}
}

// IsFetchError reports whether err came from the page source.
func IsFetchError(err error) bool {
	var fe *feed.FetchError
	return errors.As(err, &fe)
}
