package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics observes the realtime hub and the ingest consumer.
type Metrics struct {
	registry *prometheus.Registry

	connections prometheus.Gauge
	pushed      *prometheus.CounterVec
	commands    *prometheus.CounterVec
	ingested    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Active websocket connections",
		}),
		pushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_events_pushed_total",
			Help: "Events pushed to clients, by event type",
		}, []string{"event"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_commands_received_total",
			Help: "Commands received from clients, by command",
		}, []string{"command"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_ingest_messages_total",
			Help: "Kafka messages consumed, by result",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.connections, m.pushed, m.commands, m.ingested,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectionOpened() { m.connections.Inc() }

func (m *Metrics) ConnectionClosed() { m.connections.Dec() }

func (m *Metrics) EventPushed(eventType string) {
	m.pushed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) CommandReceived(command string) {
	m.commands.WithLabelValues(command).Inc()
}

// MessageIngested counts one consumed message; result is "created", "invalid" or "failed".
func (m *Metrics) MessageIngested(result string) {
	m.ingested.WithLabelValues(result).Inc()
}
