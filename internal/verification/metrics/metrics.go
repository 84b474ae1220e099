package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document verification pipeline.
type Metrics struct {
	// Whole-document pipeline latency by final status
	VerifyLatency *prometheus.HistogramVec

	// Per-variant OCR latency
	ExtractLatency prometheus.Histogram

	// Rotations tried before the pipeline stopped
	RotationsTried prometheus.Histogram

	// Outcomes: matched, mismatched, not_found, invalid_image, engine_unavailable
	Outcomes *prometheus.CounterVec

	// Variants skipped because extraction failed transiently
	SkippedVariants prometheus.Counter
}

// New creates a new Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		VerifyLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evoto_verification_duration_seconds",
			Help:    "Duration of document verification by outcome",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"status"}),

		ExtractLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "evoto_verification_extract_duration_seconds",
			Help:    "Duration of OCR over a single rotation variant",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		}),

		RotationsTried: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "evoto_verification_rotations_tried",
			Help:    "Number of rotation variants tried per document",
			Buckets: []float64{1, 2, 3, 4},
		}),

		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "evoto_verification_outcomes_total",
			Help: "Total document verification outcomes",
		}, []string{"outcome"}),

		SkippedVariants: promauto.NewCounter(prometheus.CounterOpts{
			Name: "evoto_verification_skipped_variants_total",
			Help: "Rotation variants skipped after a transient extraction failure",
		}),
	}
}

func (m *Metrics) ObserveVerify(status string, rotations int, d time.Duration) {
	if m != nil {
		m.VerifyLatency.WithLabelValues(status).Observe(d.Seconds())
		m.RotationsTried.Observe(float64(rotations))
		m.Outcomes.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveExtract(d time.Duration) {
	if m != nil {
		m.ExtractLatency.Observe(d.Seconds())
	}
}

// IncrementOutcome records a terminal outcome that produced no Result.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementSkipped() {
	if m != nil {
		m.SkippedVariants.Inc()
	}
}
