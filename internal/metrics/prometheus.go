/*
Package metrics records run metrics on a private Prometheus registry. A scrape endpoint makes no
sense for a job that exits after one run, so the registry is pushed to a Pushgateway instead.
*/
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder implements the metrics interfaces of extract, orchestrator and publish.
type Recorder struct {
	registry   *prometheus.Registry
	variants   *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	fields     *prometheus.CounterVec
	coverage   *prometheus.GaugeVec
	sinks      *prometheus.CounterVec
	lastPrice  *prometheus.GaugeVec
	latency    *prometheus.HistogramVec
	lastResult prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		variants: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bullion_variant_results_total",
				Help: "Recognition variant outcomes",
			},
			[]string{"variant", "outcome"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bullion_attempts_total",
				Help: "Extraction attempts by source and result",
			},
			[]string{"source", "result"},
		),
		fields: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bullion_fields_total",
				Help: "Validated fields by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		coverage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bullion_snapshot_coverage_ratio",
				Help: "Coverage of the last validated snapshot per source",
			},
			[]string{"source"},
		),
		sinks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bullion_sink_writes_total",
				Help: "Snapshot writes by sink and result",
			},
			[]string{"sink", "result"},
		),
		lastPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bullion_last_price",
				Help: "Last accepted price per metal, grade and side",
			},
			[]string{"metal", "grade", "side"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bullion_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"operation"},
		),
		lastResult: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bullion_last_run_success",
				Help: "1 if the last run produced an accepted snapshot, 0 otherwise",
			},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveVariant(variant, outcome string) {
	r.variants.WithLabelValues(variant, outcome).Inc()
}

func (r *Recorder) RecordAttempt(source, result string) {
	r.attempts.WithLabelValues(source, result).Inc()
}

// RecordFields adds n fields with the given outcome (valid, absent, suspicious).
func (r *Recorder) RecordFields(source, outcome string, n int) {
	r.fields.WithLabelValues(source, outcome).Add(float64(n))
}

func (r *Recorder) RecordCoverage(source string, coverage float64) {
	r.coverage.WithLabelValues(source).Set(coverage)
}

func (r *Recorder) RecordSink(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.sinks.WithLabelValues(sink, result).Inc()
}

func (r *Recorder) RecordLastPrice(metal, grade, side string, price float64) {
	r.lastPrice.WithLabelValues(metal, grade, side).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordRun(success bool) {
	if success {
		r.lastResult.Set(1)
		return
	}
	r.lastResult.Set(0)
}

// Push sends every collected metric to the Pushgateway at url under job, replacing the job's
// previous group.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
