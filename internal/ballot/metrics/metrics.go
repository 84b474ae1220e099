package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ballot ledger.
type Metrics struct {
	// Commits by outcome: committed, already_voted, error
	Commits *prometheus.CounterVec

	// Ballot records written
	UnitsRecorded prometheus.Counter

	// Store transaction latency
	CommitLatency prometheus.Histogram

	// Confirmation mails that could not be handed to the sender
	NotifyFailures prometheus.Counter
}

// New creates a new Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		Commits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "evoto_ballot_commits_total",
			Help: "Vote commits by outcome",
		}, []string{"outcome"}),

		UnitsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "evoto_ballot_units_recorded_total",
			Help: "Ballot records written",
		}),

		CommitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "evoto_ballot_commit_duration_seconds",
			Help:    "Duration of the conditional ballot transaction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "evoto_ballot_confirmation_failures_total",
			Help: "Confirmation messages that failed to enqueue after a commit",
		}),
	}
}

func (m *Metrics) ObserveCommit(outcome string, units int, d time.Duration) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(outcome).Inc()
	m.CommitLatency.Observe(d.Seconds())
	if outcome == "committed" {
		m.UnitsRecorded.Add(float64(units))
	}
}

func (m *Metrics) IncrementNotifyFailure() {
	if m != nil {
		m.NotifyFailures.Inc()
	}
}
