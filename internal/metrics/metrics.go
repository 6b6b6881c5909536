// Package metrics exposes pipeline counters on a private Prometheus registry
// that can be dumped to a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Clip outcomes.
const (
	OutcomeTranscribed = "transcribed"
	OutcomeCached      = "cached"
	OutcomeSilent      = "silent"
	OutcomeFailed      = "failed"
)

// Metrics is safe to use through a nil pointer; every recorder is then a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	clips      *prometheus.CounterVec
	inference  prometheus.Histogram
	clipsDone  prometheus.Gauge
	pending    prometheus.Gauge
	confidence prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		// Labels: outcome (transcribed/cached/silent/failed)
		clips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "longscribe_clips_total",
				Help: "Clips handled by the transcription stage by outcome",
			},
			[]string{"outcome"},
		),
		inference: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "longscribe_inference_duration_seconds",
				Help:    "Speech engine time per clip in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
		clipsDone: factory.NewGauge(prometheus.GaugeOpts{
			Name: "longscribe_clips_done",
			Help: "Clips recorded as processed in the pipeline state",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "longscribe_clips_pending",
			Help: "Clips still waiting for transcription",
		}),
		confidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "longscribe_segment_confidence",
				Help:    "Confidence of merged transcript segments",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
	}
}

func (m *Metrics) RecordClip(outcome string) {
	if m == nil {
		return
	}
	m.clips.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordInference(d time.Duration) {
	if m == nil {
		return
	}
	m.inference.Observe(d.Seconds())
}

func (m *Metrics) SetProgress(done, pending int) {
	if m == nil {
		return
	}
	m.clipsDone.Set(float64(done))
	m.pending.Set(float64(pending))
}

func (m *Metrics) RecordConfidence(values ...float64) {
	if m == nil {
		return
	}
	for _, v := range values {
		m.confidence.Observe(v)
	}
}

func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
