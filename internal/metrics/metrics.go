// Package metrics exposes run and histogram metrics for Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/j-veylop/polar-stats/internal/models"
)

// Metrics holds the collectors updated by each run.
type Metrics struct {
	Runs         *prometheus.CounterVec
	PagesFetched prometheus.Counter
	RunMatches   prometheus.Gauge
	RunDuration  prometheus.Histogram
	HourlyCount  *prometheus.GaugeVec
	MonthlyCount *prometheus.GaugeVec
	LastSuccess  prometheus.Gauge
	BuildInfo    *prometheus.GaugeVec
}

// New registers the collectors with reg. A nil registerer gets a private
// registry that is never exported.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Runs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "polarstats_runs_total",
			Help: "Total number of runs by outcome.",
		}, []string{"status"}),

		PagesFetched: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "polarstats_pages_fetched_total",
			Help: "Total number of search pages requested.",
		}),

		RunMatches: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "polarstats_run_matches",
			Help: "Items matched in the target hour by the last successful run.",
		}),

		RunDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "polarstats_run_duration_seconds",
			Help:    "Duration of runs.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		HourlyCount: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "polarstats_hourly_count",
			Help: "Latest match count per hour of day.",
		}, []string{"hour"}),

		MonthlyCount: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "polarstats_monthly_count",
			Help: "Running match total per month of year.",
		}, []string{"month"}),

		LastSuccess: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "polarstats_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),

		BuildInfo: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "polarstats_build_info",
			Help: "Always 1; labeled with the running build.",
		}, []string{"version", "commit", "built"}),
	}
}

// ObserveRun records the outcome of a run.
func (m *Metrics) ObserveRun(run models.RunRecord) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(string(run.Status)).Inc()
	m.PagesFetched.Add(float64(run.Pages))
	if !run.FinishedAt.IsZero() && !run.StartedAt.IsZero() {
		m.RunDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	}
	if run.Status == models.RunStatusOK {
		m.RunMatches.Set(float64(run.Matches))
		m.LastSuccess.Set(float64(run.FinishedAt.Unix()))
	}
}

// SetState publishes every histogram slot.
func (m *Metrics) SetState(state models.AggregateState) {
	if m == nil {
		return
	}
	for hour := 0; hour < models.HoursPerDay; hour++ {
		m.HourlyCount.WithLabelValues(strconv.Itoa(hour)).Set(float64(state.Hourly.Get(hour)))
	}
	for month := 1; month <= models.MonthsPerYear; month++ {
		m.MonthlyCount.WithLabelValues(strconv.Itoa(month)).Set(float64(state.Monthly.Get(month)))
	}
}

// SetBuildInfo publishes the running build.
func (m *Metrics) SetBuildInfo(version, commit, built string) {
	if m == nil {
		return
	}
	m.BuildInfo.WithLabelValues(version, commit, built).Set(1)
}
