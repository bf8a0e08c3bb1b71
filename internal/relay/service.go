// Package relay implements the application layer of the lobby/game event
// relay: connection registration with presence side effects, room-scoped
// chat, lobby vote/action fan-out, and the ingress side of the game bridge.
// It sits between the websocket transport (which hands it raw payloads) and
// the room manager (which delivers its broadcasts).
package relay

import (
	"context"
	"log"
	"time"

	"github.com/society/relay/internal/identity"
	"github.com/society/relay/internal/metrics"
	"github.com/society/relay/internal/protocol"
	"github.com/society/relay/internal/ratelimit"
	"github.com/society/relay/internal/room"
	"github.com/society/relay/internal/session"
)

// Config holds relay behavior switches.
type Config struct {
	// EchoSelf controls whether the sender of a chat message, vote, or game
	// action receives its own broadcast. The web clients render their own
	// messages from the echoed broadcast, so this defaults to true.
	EchoSelf bool
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{EchoSelf: true}
}

// Sender delivers an encoded frame to a single connection.
type Sender interface {
	Send(connID string, data []byte) error
}

// Service owns the relay's shared state: the connection registry and the
// room membership maps. All mutation goes through its methods.
type Service struct {
	cfg      Config
	sender   Sender
	registry *identity.Registry
	rooms    *room.Manager
	sessions *session.Store     // optional Redis mirror, may be nil
	limiter  *ratelimit.Limiter // optional, may be nil
}

// NewService creates a relay service. sessions and limiter may be nil, in
// which case the Redis mirror and rate limiting are disabled.
func NewService(cfg Config, sender Sender, sessions *session.Store, limiter *ratelimit.Limiter) *Service {
	return &Service{
		cfg:      cfg,
		sender:   sender,
		registry: identity.NewRegistry(),
		rooms:    room.NewManager(sender),
		sessions: sessions,
		limiter:  limiter,
	}
}

// Registry exposes the connection registry (read-side) for the transport
// layer and tests.
func (s *Service) Registry() *identity.Registry { return s.registry }

// Rooms exposes the room manager for the game bridge and tests.
func (s *Service) Rooms() *room.Manager { return s.rooms }

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

// HandleConnect registers a new connection: it resolves the identity from the
// handshake data, sends the current-members snapshot to the new connection,
// and announces the arrival to everyone else. Never fails — even an empty
// handshake yields a usable identity.
func (s *Service) HandleConnect(connID string, handshake map[string]string) identity.Identity {
	id := s.registry.Register(connID, identity.Resolve(connID, handshake))

	// Snapshot of who is already here, to the new connection only.
	s.sendEvent(connID, protocol.EventChatUsers, s.registry.Snapshot())

	// Announce the arrival to all other registered connections.
	s.broadcastGlobal(protocol.EventChatUserJoined, id, connID)

	if s.sessions != nil {
		ctx, cancel := sessionCtx()
		if err := s.sessions.Create(ctx, connID, id.Name, id.Avatar); err != nil {
			log.Printf("relay: session create failed conn=%s: %v", connID, err)
		}
		cancel()
	}

	metrics.ConnectionsTotal.Inc()
	log.Printf("relay: connected conn=%s id=%s name=%q", connID, id.ID, id.Name)
	return id
}

// HandleDisconnect runs full cleanup for a closed connection: it removes the
// connection from every room across all namespaces (emitting exactly one
// leave-presence event per room it was actually in) and, if the connection
// had been registered, announces the departure. Idempotent.
func (s *Service) HandleDisconnect(connID string) {
	id, registered := s.registry.Unregister(connID)

	for _, roomID := range s.orderedCleanup(connID) {
		s.broadcast(roomID.ns, roomID.room, protocol.EventLobbyPresence, protocol.PresencePayload{
			ID:   id.ID,
			Name: id.Name,
			Type: protocol.PresenceLeave,
		})
	}
	s.updateRoomGauges()

	// Only announce departures for connections that were actually
	// registered — no phantom leave events.
	if registered {
		s.broadcastGlobal(protocol.EventChatUserLeft, id, connID)
		metrics.ConnectionsTotal.Dec()
	}

	if s.sessions != nil {
		ctx, cancel := sessionCtx()
		if err := s.sessions.Delete(ctx, connID); err != nil {
			log.Printf("relay: session delete failed conn=%s: %v", connID, err)
		}
		cancel()
	}

	log.Printf("relay: disconnected conn=%s registered=%v", connID, registered)
}

type nsRoom struct {
	ns   room.Namespace
	room string
}

// orderedCleanup removes the connection from all rooms and returns what was
// left in stable namespace order.
func (s *Service) orderedCleanup(connID string) []nsRoom {
	left := s.rooms.DisconnectCleanup(connID)
	out := make([]nsRoom, 0, len(left))
	for _, ns := range room.Namespaces {
		if roomID, ok := left[ns]; ok {
			out = append(out, nsRoom{ns: ns, room: roomID})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Delivery helpers
// ---------------------------------------------------------------------------

// sendEvent encodes and delivers a single-recipient frame. Failures are
// logged and dropped; the read path cleans up dead connections.
func (s *Service) sendEvent(connID, event string, payload interface{}) {
	data, err := protocol.NewServerEvent(event, payload)
	if err != nil {
		log.Printf("relay: failed to build %s frame: %v", event, err)
		return
	}
	if err := s.sender.Send(connID, data); err != nil {
		log.Printf("relay: send %s to conn=%s failed: %v", event, connID, err)
	}
}

// sendError delivers a client-visible error string.
func (s *Service) sendError(connID, message string) {
	data, err := protocol.NewErrorEvent(message)
	if err != nil {
		return
	}
	_ = s.sender.Send(connID, data)
}

// sendAck replies to a frame that carried an ack id. No-op when the client
// did not ask for an ack.
func (s *Service) sendAck(connID string, ackID int64, status string) {
	if ackID == 0 {
		return
	}
	data, err := protocol.NewAck(ackID, status)
	if err != nil {
		return
	}
	_ = s.sender.Send(connID, data)
}

// broadcast encodes once and fans out to a room. An empty room drops the
// frame silently.
func (s *Service) broadcast(ns room.Namespace, roomID, event string, payload interface{}, exclude ...string) {
	data, err := protocol.NewServerEvent(event, payload)
	if err != nil {
		log.Printf("relay: failed to build %s frame: %v", event, err)
		return
	}
	n := s.rooms.Broadcast(ns, roomID, data, exclude...)

	outcome := "delivered"
	if n == 0 {
		outcome = "dropped"
	}
	metrics.BroadcastsTotal.WithLabelValues(event, outcome).Inc()
}

// Broadcast fans an event out to a room. Exposed for the game bridge, which
// relays externally-triggered events into game and lobby rooms.
func (s *Service) Broadcast(ns room.Namespace, roomID, event string, payload interface{}, exclude ...string) {
	s.broadcast(ns, roomID, event, payload, exclude...)
}

// broadcastGlobal fans a frame out to every registered connection except the
// excluded one. Used for the connect/disconnect roster events, which are not
// room-scoped.
func (s *Service) broadcastGlobal(event string, payload interface{}, exclude string) {
	data, err := protocol.NewServerEvent(event, payload)
	if err != nil {
		log.Printf("relay: failed to build %s frame: %v", event, err)
		return
	}
	for _, id := range s.registry.ConnIDs() {
		if id == exclude {
			continue
		}
		_ = s.sender.Send(id, data)
	}
}

// updateRoomGauges refreshes the per-namespace room count gauges.
func (s *Service) updateRoomGauges() {
	for _, ns := range room.Namespaces {
		metrics.RoomsTotal.WithLabelValues(string(ns)).Set(float64(s.rooms.RoomCount(ns)))
	}
}

// senderExclusion returns the exclusion list for broadcasts subject to the
// self-echo policy.
func (s *Service) senderExclusion(connID string) []string {
	if s.cfg.EchoSelf {
		return nil
	}
	return []string{connID}
}

// sessionCtx returns the short deadline context used for Redis mirror writes.
func sessionCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}
