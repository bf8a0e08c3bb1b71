// Package metrics provides Prometheus instrumentation for the relay. It
// exposes gauges for connection and room counts and counters for event
// throughput.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// RoomsTotal tracks the current number of live rooms, labeled by namespace
	// ("lobby" or "game").
	RoomsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_rooms_total",
		Help: "Current number of live rooms per namespace",
	}, []string{"namespace"})

	// EventsTotal counts inbound client events, labeled by event name.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_total",
		Help: "Total number of inbound client events processed",
	}, []string{"event"})

	// BroadcastsTotal counts room broadcasts, labeled by event name and
	// outcome ("delivered" or "dropped" for empty rooms).
	BroadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_broadcasts_total",
		Help: "Total number of room broadcasts",
	}, []string{"event", "outcome"})

	// MessagesRejectedTotal counts chat messages dropped by validation or
	// rate limiting, labeled by reason.
	MessagesRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_rejected_total",
		Help: "Total number of chat messages rejected",
	}, []string{"reason"})

	// GameEventsTotal counts externally-triggered game events relayed into
	// rooms, labeled by kind ("vote_completed", "game_started").
	GameEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_game_events_total",
		Help: "Total number of externally-triggered game events relayed",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		RoomsTotal,
		EventsTotal,
		BroadcastsTotal,
		MessagesRejectedTotal,
		GameEventsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
