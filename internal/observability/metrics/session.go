package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
)

const namespace = "invoicedesk"

// SessionMetrics records the operator session state machine.
type SessionMetrics struct {
	service string

	probesTotal      *prometheus.CounterVec
	pollOutcomes     *prometheus.CounterVec
	pollProbes       *prometheus.HistogramVec
	pollDuration     *prometheus.HistogramVec
	correctionsTotal *prometheus.CounterVec
	submissionsTotal *prometheus.CounterVec
	busy             prometheus.Gauge
	breakerOpen      *prometheus.GaugeVec
}

func NewSessionMetrics(service string, registerer prometheus.Registerer) *SessionMetrics {
	probesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "probes_total",
			Help:      "Status probes by observed remote status.",
		},
		[]string{"service", "status"},
	)
	pollOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "outcomes_total",
			Help:      "Finished polling tasks by outcome.",
		},
		[]string{"service", "outcome"},
	)
	pollProbes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "probes_per_task",
			Help:      "Probes performed per polling task.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 30},
		},
		[]string{"service", "outcome"},
	)
	pollDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Time from first probe to a terminal outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 30, 45},
		},
		[]string{"service", "outcome"},
	)
	correctionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "corrections_total",
			Help:      "Field corrections by outcome.",
		},
		[]string{"service", "outcome"},
	)
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "submissions_total",
			Help:      "Bookkeeping submissions by outcome.",
		},
		[]string{"service", "outcome"},
	)
	busy := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "busy",
			Help:      "1 while an operation is in flight.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker for an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(probesTotal, pollOutcomes, pollProbes, pollDuration, correctionsTotal, submissionsTotal, busy, breakerOpen)

	return &SessionMetrics{
		service:          service,
		probesTotal:      probesTotal,
		pollOutcomes:     pollOutcomes,
		pollProbes:       pollProbes,
		pollDuration:     pollDuration,
		correctionsTotal: correctionsTotal,
		submissionsTotal: submissionsTotal,
		busy:             busy,
		breakerOpen:      breakerOpen,
	}
}

func (m *SessionMetrics) ObserveProbe(status domain.DocumentStatus) {
	label := string(status)
	if label == "" {
		label = "unknown"
	}
	m.probesTotal.WithLabelValues(m.service, label).Inc()
}

func (m *SessionMetrics) ObservePollOutcome(outcome string, probes int, elapsedSeconds float64) {
	m.pollOutcomes.WithLabelValues(m.service, outcome).Inc()
	if outcome == "abandoned" {
		return
	}
	m.pollProbes.WithLabelValues(m.service, outcome).Observe(float64(probes))
	if elapsedSeconds >= 0 {
		m.pollDuration.WithLabelValues(m.service, outcome).Observe(elapsedSeconds)
	}
}

func (m *SessionMetrics) ObserveCorrection(outcome string) {
	m.correctionsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *SessionMetrics) ObserveSubmission(outcome string) {
	m.submissionsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *SessionMetrics) SetBusy(busy bool) {
	if busy {
		m.busy.Set(1)
		return
	}
	m.busy.Set(0)
}

// SetBreakerState matches resilience.Config.OnStateChange.
func (m *SessionMetrics) SetBreakerState(operation, state string) {
	value := 0.0
	if state != "closed" {
		value = 1
	}
	m.breakerOpen.WithLabelValues(m.service, operation).Set(value)
}

var _ ports.SessionObserver = (*SessionMetrics)(nil)
