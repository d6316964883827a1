// Package metrics defines the prometheus collectors exported by the server.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcomes for routed messages.
const (
	DeliveryLive    = "live"
	DeliveryOffline = "offline"
	DeliveryDropped = "dropped"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	UsersOnline       prometheus.Gauge
	Joins             *prometheus.CounterVec
	MessagesRouted    *prometheus.CounterVec
	PersistFailures   prometheus.Counter
	PersistLatency    prometheus.Histogram
	BroadcastDrops    prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg, or the default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spike_connections_active",
			Help: "Open WebSocket connections, joined or not.",
		}),
		UsersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spike_users_online",
			Help: "Usernames currently bound in the presence registry.",
		}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spike_joins_total",
			Help: "Join requests by result.",
		}, []string{"result"}),
		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spike_messages_routed_total",
			Help: "Routed private messages by live delivery outcome.",
		}, []string{"delivery"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spike_persist_failures_total",
			Help: "Messages that could not be written to the store.",
		}),
		PersistLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spike_persist_latency_seconds",
			Help:    "Message write latency.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		BroadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spike_broadcast_drops_total",
			Help: "Presence updates that could not be queued for a session.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spike_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spike_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.UsersOnline,
		m.Joins,
		m.MessagesRouted,
		m.PersistFailures,
		m.PersistLatency,
		m.BroadcastDrops,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// JoinResult records a join outcome.
func (m *Metrics) JoinResult(result string) {
	if m == nil {
		return
	}
	m.Joins.WithLabelValues(result).Inc()
}

// Routed records the delivery outcome of a routed message.
func (m *Metrics) Routed(delivery string) {
	if m == nil {
		return
	}
	m.MessagesRouted.WithLabelValues(delivery).Inc()
}

// PersistFailed counts a failed message write.
func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// ObservePersist records how long a message write took.
func (m *Metrics) ObservePersist(seconds float64) {
	if m == nil {
		return
	}
	m.PersistLatency.Observe(seconds)
}

// BroadcastDropped counts a presence update that was not queued.
func (m *Metrics) BroadcastDropped() {
	if m == nil {
		return
	}
	m.BroadcastDrops.Inc()
}

// SetOnline sets the online user gauge.
func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.UsersOnline.Set(float64(n))
}

// ConnectionOpened increments the connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

// ConnectionClosed decrements the connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

// ObserveHTTP records one served HTTP request. path should be the route
// pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, path string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}
