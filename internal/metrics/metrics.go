// Package metrics exposes Prometheus instruments for capture sessions and
// classification requests. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "murmurcap"

// Metrics holds the registered instruments.
type Metrics struct {
	SessionsStarted  *prometheus.CounterVec
	Fallbacks        prometheus.Counter
	SetupFailures    *prometheus.CounterVec
	ChunksReceived   prometheus.Counter
	FinalizeDuration *prometheus.HistogramVec
	OutputSamples    prometheus.Histogram
	ClassifyRequests *prometheus.CounterVec
	ClassifyDuration prometheus.Histogram
}

// New registers all instruments on reg. Pass prometheus.NewRegistry() in
// tests to keep registrations isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Recording sessions started, by capture strategy",
		}, []string{"strategy"}),
		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_fallbacks_total",
			Help:      "Sessions that fell back from the stream backend to the recorder",
		}),
		SetupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_setup_failures_total",
			Help:      "Backend setup failures, by capture strategy",
		}, []string{"strategy"}),
		ChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "PCM blocks received from the stream backend",
		}),
		FinalizeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "finalize_duration_seconds",
			Help:      "Time spent turning a capture into a canonical WAV",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"strategy"}),
		OutputSamples: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "output_samples",
			Help:      "Samples in each canonical WAV produced",
			Buckets:   prometheus.ExponentialBuckets(1000, 2, 10),
		}),
		ClassifyRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classify_requests_total",
			Help:      "Classification requests, by outcome",
		}, []string{"outcome"}),
		ClassifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Classification round-trip time",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
	}
}

// SessionStarted counts a session that began recording with strategy.
func (m *Metrics) SessionStarted(strategy string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(strategy).Inc()
}

// Fallback counts a switch from the stream backend to the recorder.
func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}

// SetupFailed counts a backend that failed to start.
func (m *Metrics) SetupFailed(strategy string) {
	if m == nil {
		return
	}
	m.SetupFailures.WithLabelValues(strategy).Inc()
}

// ChunksCaptured adds n received PCM blocks.
func (m *Metrics) ChunksCaptured(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunksReceived.Add(float64(n))
}

// Finalized records a completed capture.
func (m *Metrics) Finalized(strategy string, d time.Duration, samples int) {
	if m == nil {
		return
	}
	m.FinalizeDuration.WithLabelValues(strategy).Observe(d.Seconds())
	m.OutputSamples.Observe(float64(samples))
}

// Classified records a classification request and its outcome.
func (m *Metrics) Classified(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ClassifyRequests.WithLabelValues(outcome).Inc()
	m.ClassifyDuration.Observe(d.Seconds())
}
