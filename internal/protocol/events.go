// Package protocol defines the wire-level event catalog for the relay. Every
// frame is a JSON envelope carrying an event name, an opaque payload, and an
// optional acknowledgement id. Payload shapes are owned by the individual
// handlers; this package only knows how to split and assemble envelopes.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event name constants
// ---------------------------------------------------------------------------

// Client -> Server events.
const (
	EventLobbyJoin   = "lobby:join"
	EventLobbyLeave  = "lobby:leave"
	EventLobbyVote   = "lobby:vote"
	EventGameAction  = "game:action"
	EventJoinLobby   = "joinLobby"
	EventLeaveLobby  = "leaveLobby"
	EventSendMessage = "sendMessage"
	EventJoinGame    = "joinGame"
)

// Server -> Client events.
const (
	EventLobbyPresence   = "lobby:presence"
	EventLobbyVoteUpdate = "lobby:voteUpdate"
	EventGameUpdate      = "game:update"
	EventReceiveMessage  = "receiveMessage"
	EventGameStarted     = "gameStarted"
	EventVoteCompleted   = "voteCompleted"
	EventChatUsers       = "chat:users"
	EventChatUserJoined  = "chat:user_joined"
	EventChatUserLeft    = "chat:user_left"
	EventError           = "error"
	EventAck             = "ack"
)

// Presence kinds carried in the lobby:presence payload.
const (
	PresenceJoin  = "join"
	PresenceLeave = "leave"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope is the frame structure shared by both directions. Data is kept raw
// so each handler can decode its own payload shape; AckID is non-zero when the
// client expects an ack reply for this frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID int64           `json:"ack,omitempty"`
}

// ParseClientEvent splits a raw frame into its event name, raw payload, and
// ack id. It fails only when the frame is not valid JSON or names no event;
// payload decoding is deferred to the handler.
func ParseClientEvent(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: failed to parse frame: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("protocol: missing or empty \"event\" field")
	}
	return &env, nil
}

// NewServerEvent assembles an outbound frame for the given event name and
// payload. The payload may be any JSON-marshalable value, including nil.
func NewServerEvent(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal %q payload: %w", event, err)
	}
	out, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal %q frame: %w", event, err)
	}
	return out, nil
}

// NewAck assembles the reply to a client frame that carried an ack id. The
// status is a human-readable string, mirroring the socket.io ack callback the
// clients were written against.
func NewAck(ackID int64, status string) ([]byte, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal ack: %w", err)
	}
	out, err := json.Marshal(Envelope{Event: EventAck, Data: data, AckID: ackID})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal ack frame: %w", err)
	}
	return out, nil
}

// NewErrorEvent assembles an error frame carrying a plain message string.
func NewErrorEvent(message string) ([]byte, error) {
	return NewServerEvent(EventError, message)
}
