package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveInbound("published")
	m.ObserveInbound("published")
	m.ObserveInbound("duplicate")
	m.ObserveTurn("reply")
	m.ObserveToolCall("create_appointment", nil)
	m.ObserveToolCall("create_appointment", errors.New("boom"))
	m.ObserveReminder("24h", nil)
	m.ObserveCalendar("freebusy", errors.New("down"))
	m.ObserveOutbound("sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.inboundTotal.WithLabelValues("published")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inboundTotal.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("reply")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("create_appointment", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("create_appointment", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remindersTotal.WithLabelValues("24h", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calendarTotal.WithLabelValues("freebusy", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboundTotal.WithLabelValues("sent")))
}

func TestMetricsLatencyHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveLLM(1500*time.Millisecond, nil)
	m.ObserveLLM(time.Second, errors.New("timeout"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.llmLatency))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveInbound("published")
	m.ObserveOutbound("sent")
	m.ObserveTurn("reply")
	m.ObserveToolCall("escalate", nil)
	m.ObserveLLM(time.Second, nil)
	m.ObserveReminder("2h", nil)
	m.ObserveCalendar("create", nil)
}
