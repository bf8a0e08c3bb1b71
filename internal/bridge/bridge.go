// Package bridge couples the relay to game-state transitions that originate
// outside the socket layer. The game-logic backend publishes vote results and
// game-start notices onto per-room NATS subjects; every relay instance
// subscribes with a wildcard and fans the events out to its locally connected
// room members. Pure relay: payloads pass through verbatim, empty rooms drop
// the event, and nothing is queued or retried.
package bridge

import (
	"encoding/json"
	"log"

	"github.com/society/relay/internal/messaging"
	"github.com/society/relay/internal/metrics"
	"github.com/society/relay/internal/protocol"
	"github.com/society/relay/internal/relay"
	"github.com/society/relay/internal/room"
)

// Bridge fans externally-triggered game events into relay rooms.
type Bridge struct {
	svc  *relay.Service
	nats *messaging.NATSClient
}

// New creates a Bridge. nats may be nil for in-process use (tests, or
// single-instance deployments triggering via direct calls).
func New(svc *relay.Service, nats *messaging.NATSClient) *Bridge {
	return &Bridge{svc: svc, nats: nats}
}

// Start subscribes to the game-event subjects. Returns an error if either
// subscription fails; without NATS it is a no-op.
func (b *Bridge) Start() error {
	if b.nats == nil {
		return nil
	}
	if err := b.nats.SubscribeVoteCompleted(func(gameID string, data []byte) {
		b.RelayVoteCompleted(gameID, data)
	}); err != nil {
		return err
	}
	if err := b.nats.SubscribeGameStarted(func(lobbyID string, data []byte) {
		var gameID string
		if err := json.Unmarshal(data, &gameID); err != nil || gameID == "" {
			log.Printf("bridge: dropping malformed game-started payload for lobby=%s", lobbyID)
			return
		}
		b.RelayGameStarted(lobbyID, gameID)
	}); err != nil {
		return err
	}
	log.Printf("bridge: subscribed to game event subjects")
	return nil
}

// RelayVoteCompleted broadcasts a vote outcome to all members of the game
// room. The payload was produced and validated by the game-logic backend and
// passes through untouched; it only has to be valid JSON.
func (b *Bridge) RelayVoteCompleted(gameID string, payload []byte) {
	if gameID == "" {
		return
	}
	if !json.Valid(payload) {
		log.Printf("bridge: dropping invalid vote payload game=%s", gameID)
		return
	}

	b.svc.Broadcast(room.NamespaceGame, gameID, protocol.EventVoteCompleted, json.RawMessage(payload))
	metrics.GameEventsTotal.WithLabelValues("vote_completed").Inc()
	log.Printf("bridge: vote completed relayed game=%s", gameID)
}

// RelayGameStarted broadcasts a game-started notification to the lobby room
// so members can transition to the new game room, plus a system chat message
// for clients that only render the chat stream.
func (b *Bridge) RelayGameStarted(lobbyID, gameID string) {
	if lobbyID == "" || gameID == "" {
		return
	}

	b.svc.Broadcast(room.NamespaceLobby, lobbyID, protocol.EventGameStarted, gameID)
	b.svc.SendSystemMessage(lobbyID, "The game is starting")
	metrics.GameEventsTotal.WithLabelValues("game_started").Inc()
	log.Printf("bridge: game started relayed lobby=%s game=%s", lobbyID, gameID)
}
