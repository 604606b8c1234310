package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "supportdesk"

// SchedulingMetrics exposes counters/histograms for booking flows.
type SchedulingMetrics struct {
	bookingsTotal       *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
	sessionsConsumed    *prometheus.CounterVec
	ambiguousRules      *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "appointment_transitions_total",
			Help:      "Appointments entering each status",
		}, []string{"status"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "availability_latency_seconds",
			Help:      "Latency of slot availability lookups",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		sessionsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "sessions_consumed_total",
			Help:      "Session consumption attempts by result",
		}, []string{"result"}),
		ambiguousRules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "ambiguous_day_rules_total",
			Help:      "Dates matched by more than one specific-day rule in a scope",
		}, []string{"scope"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.availabilityLatency, m.sessionsConsumed, m.ambiguousRules)
	return m
}

func (m *SchedulingMetrics) ObserveAppointment(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *SchedulingMetrics) ObserveAvailability(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.availabilityLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveSessionConsumed(result string) {
	if m == nil {
		return
	}
	m.sessionsConsumed.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveAmbiguousRule(scope string) {
	if m == nil {
		return
	}
	m.ambiguousRules.WithLabelValues(scope).Inc()
}

// ReminderMetrics tracks reminder dispatch outcomes.
type ReminderMetrics struct {
	dispatched *prometheus.CounterVec
	lag        prometheus.Histogram
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "dispatched_total",
			Help:      "Reminder dispatch attempts by kind and resulting status",
		}, []string{"kind", "status"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "dispatch_lag_seconds",
			Help:      "Delay between a reminder's scheduled time and its dispatch",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.dispatched, m.lag)
	return m
}

func (m *ReminderMetrics) ObserveDispatch(kind, status string, lagSeconds float64) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(kind, status).Inc()
	if lagSeconds >= 0 {
		m.lag.Observe(lagSeconds)
	}
}

// ChatMetrics covers the customer widget and the assistant behind it.
type ChatMetrics struct {
	messagesTotal    *prometheus.CounterVec
	assistantLatency *prometheus.HistogramVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Chat messages by role and transport",
		}, []string{"role", "transport"}),
		assistantLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "assistant_latency_seconds",
			Help:      "Latency of assistant calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.assistantLatency)
	return m
}

func (m *ChatMetrics) ObserveMessage(role, transport string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(role, transport).Inc()
}

func (m *ChatMetrics) ObserveAssistant(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.assistantLatency.WithLabelValues(operation, status).Observe(seconds)
}
