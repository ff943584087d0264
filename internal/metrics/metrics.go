// Package metrics exposes Prometheus instrumentation for the hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/hivewire/internal/hub"
)

var (
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hivewire_events_published_total",
			Help: "Total number of events published by channel",
		},
		[]string{"channel"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hivewire_events_dropped_total",
			Help: "Total number of events dropped for slow subscribers by channel",
		},
		[]string{"channel"},
	)

	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hivewire_connections_active",
			Help: "Number of currently registered client connections",
		},
	)

	ClientTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hivewire_client_timeouts_total",
			Help: "Total number of connections evicted by the heartbeat monitor",
		},
	)

	BufferSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hivewire_buffer_events",
			Help: "Number of events currently held in the replay buffer",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(ClientTimeouts)
	prometheus.MustRegister(BufferSize)
}

// Observer returns a hub observer that keeps the collectors current.
func Observer(h *hub.Hub) hub.Observer {
	return hub.ObserverFunc(func(n hub.Notification) {
		switch n.Kind {
		case hub.KindEventPublished:
			EventsPublished.WithLabelValues(n.Channel.String()).Inc()
			BufferSize.Set(float64(h.BufferLen()))
		case hub.KindEventDropped:
			EventsDropped.WithLabelValues(n.Channel.String()).Inc()
		case hub.KindClientConnected:
			ConnectionsActive.Inc()
		case hub.KindClientClosed:
			ConnectionsActive.Dec()
		case hub.KindClientTimeout:
			ConnectionsActive.Dec()
			ClientTimeouts.Inc()
		case hub.KindBufferCleared:
			BufferSize.Set(0)
		}
	})
}

// Handler returns the Prometheus HTTP handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
