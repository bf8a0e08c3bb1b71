package ws

import (
	"encoding/json"
	"log"

	"github.com/society/relay/internal/metrics"
	"github.com/society/relay/internal/protocol"
)

// EventHandler is the callback signature for handling a decoded client event.
// The data parameter is the raw payload of the envelope; each handler is
// responsible for validating its own shape and must silently no-op on
// malformed input. ackID is non-zero when the client expects an ack reply.
type EventHandler func(conn *Connection, data json.RawMessage, ackID int64)

// Dispatcher routes incoming WebSocket frames to registered handlers based on
// the event name. Dispatch is purely by name: unknown events are ignored so
// that newer clients can speak to older relays without breaking the
// connection.
type Dispatcher struct {
	handlers map[string]EventHandler
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]EventHandler),
	}
}

// Register associates an EventHandler with an event name. If a handler was
// already registered for the given event, it is silently replaced.
func (d *Dispatcher) Register(event string, handler EventHandler) {
	d.handlers[event] = handler
}

// Dispatch is the onMessage callback implementation. It splits the raw bytes
// into an envelope and routes the payload to the registered handler. Frames
// that are not valid envelopes, and events with no registered handler, are
// dropped without a client-visible error — a misbehaving sender never
// affects its own connection, let alone others.
func (d *Dispatcher) Dispatch(conn *Connection, data []byte) {
	env, err := protocol.ParseClientEvent(data)
	if err != nil {
		log.Printf("ws: dispatch parse error conn=%s: %v", conn.ID, err)
		return
	}

	handler, ok := d.handlers[env.Event]
	if !ok {
		log.Printf("ws: ignoring unknown event=%q conn=%s", env.Event, conn.ID)
		return
	}

	metrics.EventsTotal.WithLabelValues(env.Event).Inc()
	handler(conn, env.Data, env.AckID)
}
