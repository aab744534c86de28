package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the "result" label.
const (
	ResultOngoing = "ongoing"
	ResultEnded   = "ended"
	ResultFailed  = "failed"
)

// Metrics holds the collectors updated by the runner and the worker.
type Metrics struct {
	stepsResolved   *prometheus.CounterVec
	resolveFailures prometheus.Counter
	stepsRun        *prometheus.CounterVec
	generateSeconds *prometheus.HistogramVec
	workEvents      *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stepsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tendril",
			Name:      "steps_resolved_total",
			Help:      "Steps that completed the Resolve phase.",
		}, []string{"closer"}),
		resolveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tendril",
			Name:      "resolve_failures_total",
			Help:      "Resolve phases that returned an error.",
		}),
		stepsRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tendril",
			Name:      "steps_run_total",
			Help:      "Steps that completed the Run phase, by result.",
		}, []string{"result"}),
		generateSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tendril",
			Name:      "provider_generate_seconds",
			Help:      "Latency of provider Generate calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
		workEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tendril",
			Name:      "work_events_total",
			Help:      "Work events handled by workers, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.stepsResolved, m.resolveFailures, m.stepsRun, m.generateSeconds, m.workEvents)
	return m
}

func (m *Metrics) ObserveResolve(closer bool) {
	if m == nil {
		return
	}
	label := "false"
	if closer {
		label = "true"
	}
	m.stepsResolved.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveResolveFailure() {
	if m == nil {
		return
	}
	m.resolveFailures.Inc()
}

func (m *Metrics) ObserveRun(result string) {
	if m == nil {
		return
	}
	m.stepsRun.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveGenerate(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.generateSeconds.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) ObserveWork(kind string) {
	if m == nil {
		return
	}
	m.workEvents.WithLabelValues(kind).Inc()
}
