package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tabletop"

// Autosave outcomes.
const (
	AutosaveSkipped = "skipped"
	AutosaveSaved   = "saved"
	AutosaveFailed  = "failed"
)

// Metrics holds the server's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	EventsTotal      *prometheus.CounterVec
	EventDuration    *prometheus.HistogramVec
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	HandlerErrors    *prometheus.CounterVec
	DecodeErrors     prometheus.Counter
	SendErrors       prometheus.Counter
	AutosavesTotal   *prometheus.CounterVec
	ConnectedClients prometheus.Gauge
	RegisteredUsers  prometheus.Gauge
	BoardPieces      prometheus.Gauge
	EventQueueDepth  prometheus.Gauge
}

// New creates the collectors on a fresh registry that also carries the Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegisterer(registry, registry)
}

// NewWithRegisterer creates the collectors on reg. registry may be nil when Handler is not used.
func NewWithRegisterer(reg prometheus.Registerer, registry *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: registry,

		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of events processed by the session loop",
		}, []string{"event"}),

		EventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent processing one event",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),

		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages by type",
		}, []string{"type"}),

		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages by type and delivery",
		}, []string{"type", "delivery"}),

		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handler failures by inbound message type",
		}, []string{"type"}),

		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames dropped because they could not be decoded",
		}),

		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Outbound messages that could not be queued on a connection",
		}),

		AutosavesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosaves_total",
			Help:      "Autosave attempts by outcome",
		}, []string{"outcome"}),

		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Open WebSocket connections",
		}),

		RegisteredUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_users",
			Help:      "Identities currently registered",
		}),

		BoardPieces: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "board_pieces",
			Help:      "Pieces on the board",
		}),

		EventQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_depth",
			Help:      "Events waiting for the session loop",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveEvent(event string, seconds float64) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(event).Inc()
	m.EventDuration.WithLabelValues(event).Observe(seconds)
}

func (m *Metrics) MessageReceived(messageType string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(messageType).Inc()
}

func (m *Metrics) MessageSent(messageType, delivery string, n int) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(messageType, delivery).Add(float64(n))
}

func (m *Metrics) HandlerError(messageType string) {
	if m == nil {
		return
	}
	m.HandlerErrors.WithLabelValues(messageType).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) SendError() {
	if m == nil {
		return
	}
	m.SendErrors.Inc()
}

func (m *Metrics) Autosave(outcome string) {
	if m == nil {
		return
	}
	m.AutosavesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetConnectedClients(n int) {
	if m == nil {
		return
	}
	m.ConnectedClients.Set(float64(n))
}

func (m *Metrics) SetRegisteredUsers(n int) {
	if m == nil {
		return
	}
	m.RegisteredUsers.Set(float64(n))
}

func (m *Metrics) SetBoardPieces(n int) {
	if m == nil {
		return
	}
	m.BoardPieces.Set(float64(n))
}

func (m *Metrics) SetEventQueueDepth(n int) {
	if m == nil {
		return
	}
	m.EventQueueDepth.Set(float64(n))
}
