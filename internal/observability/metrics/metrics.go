package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clinic"

// Metrics exposes counters/histograms for the booking flows. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	turnsTotal     *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	remindersTotal *prometheus.CounterVec
	calendarTotal  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "inbound_events_total",
			Help:      "Inbound gateway events by intake result",
		}, []string{"result"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound message sends",
		}, []string{"status"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Agent turns by outcome",
		}, []string{"outcome"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and status",
		}, []string{"tool", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "llm_latency_seconds",
			Help:      "Latency of model completions",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 45},
		}, []string{"status"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Reminder sends by kind and status",
		}, []string{"kind", "status"}),
		calendarTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "calls_total",
			Help:      "Calendar API calls by operation and status",
		}, []string{"op", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.turnsTotal, m.toolCallsTotal, m.llmLatency, m.remindersTotal, m.calendarTotal)
	return m
}

func (m *Metrics) ObserveInbound(result string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveToolCall(tool string, err error) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, status(err)).Inc()
}

func (m *Metrics) ObserveLLM(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(status(err)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveReminder(kind string, err error) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(kind, status(err)).Inc()
}

func (m *Metrics) ObserveCalendar(op string, err error) {
	if m == nil {
		return
	}
	m.calendarTotal.WithLabelValues(op, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
