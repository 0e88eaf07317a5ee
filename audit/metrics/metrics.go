package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds batch counters on a private registry so that each stage run writes only its own series.
type Metrics struct {
	Registry *prometheus.Registry

	UnitsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	Violations   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		UnitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handoff_audit_units_total",
				Help: "Reviewable units processed, by stage and outcome",
			},
			[]string{"stage", "status"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "handoff_audit_external_call_duration_seconds",
				Help:    "Latency of retrieval and judge calls in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		Violations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "handoff_audit_violations_total",
				Help: "Units judged as violating at least one policy",
			},
		),
	}
	m.Registry.MustRegister(m.UnitsTotal, m.CallDuration, m.Violations)
	return m
}

func (m *Metrics) ObserveUnit(stage, outcome string) {
	m.UnitsTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObserveCall(stage string, elapsed time.Duration) {
	m.CallDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveViolation() {
	m.Violations.Inc()
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
