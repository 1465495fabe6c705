// Package metrics provides Prometheus metrics for highlight runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reelforge"

// Recorder holds the pipeline metrics on its own registry. A nil *Recorder
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	// RunsTotal counts runs by final status.
	RunsTotal *prometheus.CounterVec
	// StageDuration measures each pipeline stage.
	StageDuration *prometheus.HistogramVec
	// DetectorDuration measures each detector run.
	DetectorDuration *prometheus.HistogramVec
	// DetectorFailures counts detector timeouts and failures.
	DetectorFailures *prometheus.CounterVec
	// SegmentsTotal counts extracted segments by mode.
	SegmentsTotal *prometheus.CounterVec
	// SegmentRetries counts re-encode fallbacks.
	SegmentRetries prometheus.Counter
	// ConcatTotal counts joins by strategy.
	ConcatTotal *prometheus.CounterVec
	// ErrorsTotal counts failed runs by stage and kind.
	ErrorsTotal *prometheus.CounterVec
	// OutputSeconds observes highlight lengths.
	OutputSeconds prometheus.Histogram
	// FillRatio observes selected duration over target.
	FillRatio prometheus.Histogram
}

// New registers the pipeline metrics on a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of highlight runs",
			},
			[]string{"status"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 180, 600},
			},
			[]string{"stage"},
		),
		DetectorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "detector_duration_seconds",
				Help:      "Duration of detector runs in seconds",
				Buckets:   []float64{0.1, 1, 5, 15, 60, 180, 600},
			},
			[]string{"detector"},
		),
		DetectorFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detector_failures_total",
				Help:      "Total number of failed detector runs",
			},
			[]string{"detector", "kind"},
		),
		SegmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "segments_extracted_total",
				Help:      "Total number of extracted segments",
			},
			[]string{"mode"},
		),
		SegmentRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "segment_retries_total",
				Help:      "Total number of segments re-encoded after a failed extraction",
			},
		),
		ConcatTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "concat_total",
				Help:      "Total number of joins by strategy",
			},
			[]string{"strategy"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed runs",
			},
			[]string{"stage", "kind"},
		),
		OutputSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "output_seconds",
				Help:      "Length of produced highlight videos in seconds",
				Buckets:   []float64{5, 15, 30, 60, 120, 300},
			},
		),
		FillRatio: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_fill_ratio",
				Help:      "Selected duration divided by the target duration",
				Buckets:   []float64{0.25, 0.5, 0.75, 0.9, 0.95, 1, 1.05},
			},
		),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordRun records a finished run
func (r *Recorder) RecordRun(status string) {
	if r == nil {
		return
	}
	r.RunsTotal.WithLabelValues(status).Inc()
}

// RecordStage records how long a stage took
func (r *Recorder) RecordStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordDetector records a detector run; kind is empty on success
func (r *Recorder) RecordDetector(detector, kind string, d time.Duration) {
	if r == nil {
		return
	}
	r.DetectorDuration.WithLabelValues(detector).Observe(d.Seconds())
	if kind != "" {
		r.DetectorFailures.WithLabelValues(detector, kind).Inc()
	}
}

// RecordAssembly records the extraction modes, retries and join strategy
func (r *Recorder) RecordAssembly(modes []string, retries int, strategy string, outputSeconds float64) {
	if r == nil {
		return
	}
	for _, m := range modes {
		r.SegmentsTotal.WithLabelValues(m).Inc()
	}
	r.SegmentRetries.Add(float64(retries))
	r.ConcatTotal.WithLabelValues(strategy).Inc()
	r.OutputSeconds.Observe(outputSeconds)
}

// RecordPlan records how full the selection is
func (r *Recorder) RecordPlan(selected, target float64) {
	if r == nil || target <= 0 {
		return
	}
	r.FillRatio.Observe(selected / target)
}

// RecordError records a failed run
func (r *Recorder) RecordError(stage, kind string) {
	if r == nil {
		return
	}
	r.ErrorsTotal.WithLabelValues(stage, kind).Inc()
}

// WriteTextfile writes every metric in the text exposition format, for the
// node_exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
