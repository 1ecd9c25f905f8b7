// Package metrics records the outcome of a run as Prometheus metrics. A
// batch run has nothing to scrape, so the metrics are written to a
// node-exporter textfile collector file when the run ends.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "moodlelogs"

// Recorder collects the metrics of one run. A nil *Recorder discards
// everything.
type Recorder struct {
	reg      *prometheus.Registry
	rows     *prometheus.GaugeVec
	dropped  *prometheus.GaugeVec
	warnings *prometheus.GaugeVec
	rules    *prometheus.GaugeVec
	filters  *prometheus.GaugeVec
	duration prometheus.Gauge
	success  prometheus.Gauge
	lastRun  prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_rows",
			Help:      "Rows remaining after each pipeline stage.",
		}, []string{"stage"}),
		dropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dropped_rows",
			Help:      "Rows discarded while reading or aligning the inputs.",
		}, []string{"source", "reason"}),
		warnings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unmapped_records",
			Help:      "Records whose key had no entry in a reference table.",
		}, []string{"table"}),
		rules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rule_matches",
			Help:      "Records matched by each reclassification rule.",
		}, []string{"rule"}),
		filters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "filter_matches",
			Help:      "Records matched by each exclusion predicate.",
		}, []string{"predicate"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.reg.MustRegister(r.rows, r.dropped, r.warnings, r.rules, r.filters, r.duration, r.success, r.lastRun)
	return r
}

// Stage records the row count after a stage.
func (r *Recorder) Stage(name string, rows int) {
	if r == nil {
		return
	}
	r.rows.WithLabelValues(name).Set(float64(rows))
}

// Dropped records rows discarded from a source.
func (r *Recorder) Dropped(source, reason string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.dropped.WithLabelValues(source, reason).Add(float64(n))
}

// Unmapped records records left without a lookup value.
func (r *Recorder) Unmapped(table string, n int) {
	if r == nil {
		return
	}
	r.warnings.WithLabelValues(table).Add(float64(n))
}

// RuleMatches records per-rule match counts.
func (r *Recorder) RuleMatches(matches map[string]int) {
	if r == nil {
		return
	}
	for id, n := range matches {
		r.rules.WithLabelValues(id).Set(float64(n))
	}
}

// FilterMatches records per-predicate match counts.
func (r *Recorder) FilterMatches(matches map[string]int) {
	if r == nil {
		return
	}
	for id, n := range matches {
		r.filters.WithLabelValues(id).Set(float64(n))
	}
}

// Finish records the duration and outcome of the run.
func (r *Recorder) Finish(d time.Duration, err error, at time.Time) {
	if r == nil {
		return
	}
	r.duration.Set(d.Seconds())
	if err == nil {
		r.success.Set(1)
	} else {
		r.success.Set(0)
	}
	r.lastRun.Set(float64(at.Unix()))
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile writes the metrics in the text exposition format. The file
// is replaced atomically so a collector never reads a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
