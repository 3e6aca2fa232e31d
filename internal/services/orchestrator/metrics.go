package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the orchestrator's Prometheus collectors.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authmsg",
			Subsystem: "orchestrator",
			Name:      "transitions_total",
			Help:      "Workflow state transitions by target state and failure reason.",
		}, []string{"state", "reason"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "authmsg",
			Subsystem: "orchestrator",
			Name:      "stage_duration_seconds",
			Help:      "Time spent per workflow stage.",
			Buckets:   []float64{.005, .025, .1, .5, 1, 5, 30, 120, 300},
		}, []string{"stage", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.StageDuration)
	}
	return m
}

func (m *Metrics) transition(s Status) {
	m.Transitions.WithLabelValues(string(s.State), string(s.Reason)).Inc()
}

func (m *Metrics) observe(stage string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.StageDuration.WithLabelValues(stage, outcome).Observe(time.Since(start).Seconds())
}
