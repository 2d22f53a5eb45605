package websocket

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/cqstream/metric"
)

// Metrics holds Prometheus metrics for the listener. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	messagesReceived    prometheus.Counter
	messagesDispatched  *prometheus.CounterVec
	decodeErrors        prometheus.Counter
	messagesDropped     prometheus.Counter
	reconnectAttempts   prometheus.Counter
	connectionsTotal    prometheus.Counter
	connectionAvailable prometheus.Gauge
	dispatchInFlight    prometheus.Gauge
	dispatchDuration    *prometheus.HistogramVec
	errorsTotal         *prometheus.CounterVec
}

const metricsSubsystem = "listener"

// newMetrics creates and registers listener metrics under serviceName
func newMetrics(registry *metric.MetricsRegistry, serviceName string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_received_total",
			Help:      "Complete messages reassembled from the event stream",
		}),
		messagesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_dispatched_total",
			Help:      "Dispatched messages by outcome",
		}, []string{"status"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: metricsSubsystem,
			Name:      "decode_errors_total",
			Help:      "Messages that could not be decoded into a post",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped because the dispatch queue was full or the message too large",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: metricsSubsystem,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection attempts after a lost connection",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: metricsSubsystem,
			Name:      "connections_total",
			Help:      "Successful connections to the event endpoint",
		}),
		connectionAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: metricsSubsystem,
			Name:      "connection_available",
			Help:      "1 while the event connection is healthy",
		}),
		dispatchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: metricsSubsystem,
			Name:      "dispatch_in_flight",
			Help:      "Dispatch tasks currently running",
		}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: metricsSubsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from dispatch start to completion",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"status"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: metricsSubsystem,
			Name:      "errors_total",
			Help:      "Errors by type",
		}, []string{"type"}),
	}

	err := registry.RegisterAll(serviceName, map[string]prometheus.Collector{
		"messages_received":    m.messagesReceived,
		"messages_dispatched":  m.messagesDispatched,
		"decode_errors":        m.decodeErrors,
		"messages_dropped":     m.messagesDropped,
		"reconnect_attempts":   m.reconnectAttempts,
		"connections_total":    m.connectionsTotal,
		"connection_available": m.connectionAvailable,
		"dispatch_in_flight":   m.dispatchInFlight,
		"dispatch_duration":    m.dispatchDuration,
		"errors_total":         m.errorsTotal,
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) received() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

func (m *Metrics) dispatched(status string, d time.Duration) {
	if m != nil {
		m.messagesDispatched.WithLabelValues(status).Inc()
		m.dispatchDuration.WithLabelValues(status).Observe(d.Seconds())
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.messagesDropped.Inc()
	}
}

func (m *Metrics) reconnectAttempt() {
	if m != nil {
		m.reconnectAttempts.Inc()
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connectionsTotal.Inc()
		m.connectionAvailable.Set(1)
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.connectionAvailable.Set(0)
	}
}

func (m *Metrics) inFlight(delta float64) {
	if m != nil {
		m.dispatchInFlight.Add(delta)
	}
}

func (m *Metrics) countError(errorType string) {
	if m != nil {
		m.errorsTotal.WithLabelValues(errorType).Inc()
	}
}
