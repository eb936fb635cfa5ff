package workflow

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

// Metrics counts workflow runs and step outcomes. A nil *Metrics records
// nothing.
type Metrics struct {
	steps *prometheus.CounterVec
	runs  *prometheus.CounterVec
}

// NewMetrics creates the workflow collectors and registers them with reg
// when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_steps_total",
			Help: "Workflow steps by procedure, step and outcome.",
		}, []string{"procedure", "step", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_runs_total",
			Help: "Workflow runs by procedure and overall success.",
		}, []string{"procedure", "success"}),
	}
	if reg != nil {
		reg.MustRegister(m.steps, m.runs)
	}
	return m
}

func (m *Metrics) observeStep(procedure, step string, outcome domain.StepOutcome) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(procedure, step, string(outcome)).Inc()
}

func (m *Metrics) observeRun(procedure string, success bool) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(procedure, strconv.FormatBool(success)).Inc()
}
