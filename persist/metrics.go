package persist

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fabrimaciel/gda"
)

// Outcomes recorded by the action counter.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeConflict = "conflict"
)

// Metrics counts executed actions by type and outcome and observes their
// duration. A nil *Metrics records nothing.
type Metrics struct {
	actions  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics returns the executer metrics, registered on reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gda",
			Name:      "actions_total",
			Help:      "Persistence actions executed, by type and outcome.",
		}, []string{"type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gda",
			Name:      "action_duration_seconds",
			Help:      "Time spent executing persistence actions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m)
	}
	return m
}

// Actions returns the counter of type t and outcome.
func (m *Metrics) Actions(t gda.ActionType, outcome string) prometheus.Counter {
	return m.actions.WithLabelValues(t.String(), outcome)
}

func (m *Metrics) observe(t gda.ActionType, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(t.String(), outcome).Inc()
	m.duration.WithLabelValues(t.String()).Observe(time.Since(start).Seconds())
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.actions.Describe(ch)
	m.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.actions.Collect(ch)
	m.duration.Collect(ch)
}

var _ prometheus.Collector = (*Metrics)(nil)
