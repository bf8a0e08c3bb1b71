package relay

import (
	"encoding/json"
	"log"
	"time"

	"github.com/society/relay/internal/chat"
	"github.com/society/relay/internal/metrics"
	"github.com/society/relay/internal/protocol"
	"github.com/society/relay/internal/ratelimit"
	"github.com/society/relay/internal/room"
)

// Ack status strings, kept verbatim from the backend the web clients were
// written against.
const (
	ackJoinedLobby = "Joined lobby chat successfully"
	ackLeftLobby   = "Left lobby chat successfully"
	ackJoinedGame  = "Joined game room successfully"
)

// OnJoinLobby handles the ack-style joinLobby event. The payload is a bare
// JSON string carrying the lobby id. Joining replaces any prior lobby-room
// membership (leave presence fires in the old room) and announces the join
// to the other members of the target room.
func (s *Service) OnJoinLobby(connID string, data json.RawMessage, ackID int64) {
	lobbyID, ok := decodeRoomID(data)
	if !ok || lobbyID == "" {
		return
	}

	id, _ := s.registry.Get(connID)

	prev, joined := s.rooms.Join(room.NamespaceLobby, connID, lobbyID)
	if prev != "" {
		s.broadcast(room.NamespaceLobby, prev, protocol.EventLobbyPresence, protocol.PresencePayload{
			ID:   id.ID,
			Name: id.Name,
			Type: protocol.PresenceLeave,
		})
	}

	if joined {
		// Presence goes to the other members only; the joiner gets the ack.
		s.broadcast(room.NamespaceLobby, lobbyID, protocol.EventLobbyPresence, protocol.PresencePayload{
			ID:   id.ID,
			Name: id.Name,
			Type: protocol.PresenceJoin,
		}, connID)
		s.updateRoomGauges()
		s.mirrorLobby(connID, lobbyID)
	}

	s.sendAck(connID, ackID, ackJoinedLobby)
	log.Printf("relay: chat join conn=%s lobby=%s", connID, lobbyID)
}

// OnLeaveLobby handles the ack-style leaveLobby event. The payload is
// ignored (clients send ""); the connection leaves whatever lobby room it
// currently occupies. The ack fires only when a room was actually left.
func (s *Service) OnLeaveLobby(connID string, _ json.RawMessage, ackID int64) {
	lobbyID := s.rooms.RoomOf(room.NamespaceLobby, connID)
	if lobbyID == "" {
		return
	}

	s.rooms.Leave(room.NamespaceLobby, connID, lobbyID)

	id, _ := s.registry.Get(connID)
	s.broadcast(room.NamespaceLobby, lobbyID, protocol.EventLobbyPresence, protocol.PresencePayload{
		ID:   id.ID,
		Name: id.Name,
		Type: protocol.PresenceLeave,
	})
	s.updateRoomGauges()
	s.mirrorLobby(connID, "")

	s.sendAck(connID, ackID, ackLeftLobby)
	log.Printf("relay: chat leave conn=%s lobby=%s", connID, lobbyID)
}

// OnSendMessage handles sendMessage {message}: validates the text, stamps it
// with the sender's resolved identity and a server timestamp, and broadcasts
// it to the sender's current lobby room. Validation and membership failures
// produce a client-visible error event; the message is dropped either way.
func (s *Service) OnSendMessage(connID string, data json.RawMessage, _ int64) {
	var p protocol.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	text, err := chat.Validate(p.Message)
	if err != nil {
		metrics.MessagesRejectedTotal.WithLabelValues("invalid").Inc()
		s.sendError(connID, err.Error())
		return
	}

	lobbyID := s.rooms.RoomOf(room.NamespaceLobby, connID)
	if lobbyID == "" {
		metrics.MessagesRejectedTotal.WithLabelValues("no_lobby").Inc()
		s.sendError(connID, "You are not in a lobby")
		return
	}

	if !s.allowRate(connID, ratelimit.RuleMessage) {
		metrics.MessagesRejectedTotal.WithLabelValues("rate_limited").Inc()
		s.sendError(connID, "Too many messages, slow down")
		return
	}

	id, _ := s.registry.Get(connID)
	s.broadcast(room.NamespaceLobby, lobbyID, protocol.EventReceiveMessage, chat.Message{
		PlayerID:   id.ID,
		PlayerName: id.Name,
		AvatarID:   id.Avatar,
		Message:    text,
		Timestamp:  time.Now().UTC(),
	}, s.senderExclusion(connID)...)
}

// OnJoinGame handles the ack-style joinGame event. The payload is a bare
// JSON string carrying the game id. Game-room membership is independent of
// any lobby-room membership the connection holds.
func (s *Service) OnJoinGame(connID string, data json.RawMessage, ackID int64) {
	gameID, ok := decodeRoomID(data)
	if !ok || gameID == "" {
		return
	}

	_, joined := s.rooms.Join(room.NamespaceGame, connID, gameID)
	if joined {
		s.updateRoomGauges()
		s.mirrorGame(connID, gameID)
	}

	s.sendAck(connID, ackID, ackJoinedGame)
	log.Printf("relay: game join conn=%s game=%s", connID, gameID)
}

// SendSystemMessage broadcasts a relay-originated chat message to a lobby
// room ("Player X joined", "The game is starting", ...).
func (s *Service) SendSystemMessage(lobbyID, text string) {
	s.broadcast(room.NamespaceLobby, lobbyID, protocol.EventReceiveMessage, chat.Message{
		PlayerName: chat.SystemSender,
		Message:    text,
		Timestamp:  time.Now().UTC(),
	})
}

// decodeRoomID decodes the bare-string payload used by the ack-style events.
func decodeRoomID(data json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", false
	}
	return id, true
}
