package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ChatMetrics exposes counters/histograms for conversation flows.
type ChatMetrics struct {
	transitionsTotal   *prometheus.CounterVec
	rejectionsTotal    *prometheus.CounterVec
	collaboratorTiming *prometheus.HistogramVec
	bookingsTotal      *prometheus.CounterVec
	logDropsTotal      prometheus.Counter
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "chat",
			Name:      "stage_transitions_total",
			Help:      "Total stage transitions by origin and destination stage",
		}, []string{"from", "to"}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "chat",
			Name:      "input_rejections_total",
			Help:      "Inputs that did not advance the conversation",
		}, []string{"stage", "reason"}),
		collaboratorTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "chat",
			Name:      "collaborator_latency_seconds",
			Help:      "Latency of calls to reply, extraction, upload and appointment services",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collaborator", "outcome"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "chat",
			Name:      "bookings_total",
			Help:      "Appointment submissions by outcome",
		}, []string{"outcome"}),
		logDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "chat",
			Name:      "conversation_log_dropped_total",
			Help:      "Conversation log entries dropped because the buffer was full",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.rejectionsTotal, m.collaboratorTiming, m.bookingsTotal, m.logDropsTotal)
	return m
}

func (m *ChatMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *ChatMetrics) ObserveRejection(stage, reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(stage, reason).Inc()
}

func (m *ChatMetrics) ObserveCollaborator(name, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.collaboratorTiming.WithLabelValues(name, outcome).Observe(elapsed.Seconds())
}

func (m *ChatMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *ChatMetrics) ObserveLogDrop() {
	if m == nil {
		return
	}
	m.logDropsTotal.Inc()
}
