package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricPrefix = "popgen_"

// Metrics are the service's prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestsCreated    prometheus.Counter
	transitions        *prometheus.CounterVec
	recordsProduced    prometheus.Counter
	outcomes           *prometheus.CounterVec
	artifactsPublished *prometheus.CounterVec
	artifactsSwept     *prometheus.CounterVec
	activeRequests     prometheus.Gauge
	sweepErrors        prometheus.Counter
}

func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		requestsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: MetricPrefix + "requests_created_total",
			Help: "Number of generation requests created",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "request_transitions_total",
			Help: "Number of state transitions requested by callers, by target state and result",
		}, []string{"state", "result"}),
		recordsProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: MetricPrefix + "records_produced_total",
			Help: "Number of records collected across all requests",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "request_outcomes_total",
			Help: "Number of collections ended, by outcome",
		}, []string{"outcome"}),
		artifactsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "artifacts_published_total",
			Help: "Number of artifacts published, by kind",
		}, []string{"kind"}),
		artifactsSwept: factory.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "artifacts_swept_total",
			Help: "Number of files removed by the expiry sweeper, by type",
		}, []string{"type"}),
		activeRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: MetricPrefix + "requests_registered",
			Help: "Number of requests currently registered",
		}),
		sweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: MetricPrefix + "sweep_errors_total",
			Help: "Number of files the expiry sweeper failed to remove",
		}),
	}
}

func (m *Metrics) RecordCreated() {
	if m == nil {
		return
	}
	m.requestsCreated.Inc()
}

// RecordTransition counts a caller-requested transition to state. err is the transition's result.
func (m *Metrics) RecordTransition(state string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.transitions.WithLabelValues(state, result).Inc()
}

func (m *Metrics) RecordProduced() {
	if m == nil {
		return
	}
	m.recordsProduced.Inc()
}

// RecordOutcome counts a collection ending as Completed, Stopped or Failed.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPublished(kind string) {
	if m == nil {
		return
	}
	m.artifactsPublished.WithLabelValues(kind).Inc()
}

// RecordSwept counts a file removed by the sweeper; fileType is "artifact" or "temporary".
func (m *Metrics) RecordSwept(fileType string) {
	if m == nil {
		return
	}
	m.artifactsSwept.WithLabelValues(fileType).Inc()
}

func (m *Metrics) RecordSweepError() {
	if m == nil {
		return
	}
	m.sweepErrors.Inc()
}

func (m *Metrics) SetRegistered(n int) {
	if m == nil {
		return
	}
	m.activeRequests.Set(float64(n))
}
