package report

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks scenario outcomes for Prometheus. Each Metrics owns its
// registry so several runners in one process do not collide.
type Metrics struct {
	registry  *prometheus.Registry
	scenarios *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	lastRun   *prometheus.GaugeVec
	lastFail  *prometheus.GaugeVec
	aborts    *prometheus.CounterVec
}

// NewMetrics registers the uiprobe collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		scenarios: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uiprobe_scenarios_total",
			Help: "Total number of finished scenarios by outcome",
		}, []string{"suite", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uiprobe_scenario_duration_seconds",
			Help:    "Scenario duration including setup and teardown",
			Buckets: prometheus.DefBuckets,
		}, []string{"suite"}),
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uiprobe_last_run_timestamp_seconds",
			Help: "Unix time the last run of a suite finished",
		}, []string{"suite"}),
		lastFail: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uiprobe_last_run_failed",
			Help: "1 when the last run of a suite had a FAIL or ERROR",
		}, []string{"suite"}),
		aborts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uiprobe_run_aborts_total",
			Help: "Runs stopped early by an environment error or cancellation",
		}, []string{"suite"}),
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveResult records one finished scenario.
func (m *Metrics) ObserveResult(suite string, res Result) {
	m.scenarios.WithLabelValues(suite, string(res.Outcome)).Inc()
	if res.Outcome != Skip {
		m.duration.WithLabelValues(suite).Observe(res.Duration.Seconds())
	}
}

// ObserveReport records the end of a run. Every outcome gets a series, so a
// rate over FAIL works before the first failure.
func (m *Metrics) ObserveReport(r *Report) {
	for _, o := range Outcomes {
		m.scenarios.WithLabelValues(r.Suite(), string(o))
	}
	finished := r.Finished()
	if finished.IsZero() {
		finished = time.Now()
	}
	m.lastRun.WithLabelValues(r.Suite()).Set(float64(finished.Unix()))
	failed := 0.0
	if r.Failed() {
		failed = 1
	}
	m.lastFail.WithLabelValues(r.Suite()).Set(failed)
	if r.Aborted() != "" {
		m.aborts.WithLabelValues(r.Suite()).Inc()
	}
}

// WriteTextfile writes the current values in the node_exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
