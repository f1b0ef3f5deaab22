// Package metrics records per-run scan metrics to a Prometheus registry and,
// when telemetry is enabled, to OpenTelemetry instruments.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder holds the instruments for one scan run. Each run gets its own
// registry so nothing carries over between invocations.
//
// Metrics:
//   - commitguard_files_scanned_total - files whose content was scanned
//   - commitguard_findings_total{category,severity} - findings produced
//   - commitguard_runs_total{status} - verdicts by status
//   - commitguard_run_duration_seconds - wall time of a run
type Recorder struct {
	registry *prometheus.Registry

	FilesScanned prometheus.Counter
	Findings     *prometheus.CounterVec
	Runs         *prometheus.CounterVec
	RunDuration  prometheus.Histogram

	otelFindings metric.Int64Counter
	otelDuration metric.Float64Histogram
}

// New creates a Recorder. meter may be a no-op meter.
func New(meter metric.Meter) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{
		registry: reg,
		FilesScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "commitguard_files_scanned_total",
			Help: "Total number of staged files whose content was scanned",
		}),
		Findings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commitguard_findings_total",
			Help: "Total number of findings by category and severity",
		}, []string{"category", "severity"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "commitguard_runs_total",
			Help: "Total number of scan runs by verdict status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "commitguard_run_duration_seconds",
			Help:    "Duration of a scan run in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	if meter != nil {
		// Instrument creation errors leave the otel side as a no-op.
		r.otelFindings, _ = meter.Int64Counter(
			"commitguard.findings",
			metric.WithDescription("Findings produced by a scan run"),
			metric.WithUnit("{finding}"),
		)
		r.otelDuration, _ = meter.Float64Histogram(
			"commitguard.run.duration",
			metric.WithDescription("Duration of a scan run"),
			metric.WithUnit("s"),
		)
	}

	return r
}

// AddFilesScanned counts scanned files.
func (r *Recorder) AddFilesScanned(n int) {
	r.FilesScanned.Add(float64(n))
}

// RecordFinding counts one finding.
func (r *Recorder) RecordFinding(ctx context.Context, category, severity string) {
	r.Findings.WithLabelValues(category, severity).Inc()
	if r.otelFindings != nil {
		r.otelFindings.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", category),
			attribute.String("severity", severity),
		))
	}
}

// RecordRun counts the verdict and observes the run duration.
func (r *Recorder) RecordRun(ctx context.Context, status string, d time.Duration) {
	r.Runs.WithLabelValues(status).Inc()
	r.RunDuration.Observe(d.Seconds())
	if r.otelDuration != nil {
		r.otelDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	}
}

// Gatherer exposes the registry for tests and custom exporters.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// The write is atomic (temp file plus rename).
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
