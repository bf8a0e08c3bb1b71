package relay

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/society/relay/internal/metrics"
	"github.com/society/relay/internal/protocol"
	"github.com/society/relay/internal/ratelimit"
	"github.com/society/relay/internal/room"
)

// Handlers for the lobby:* and game:action events. These are the
// fire-and-forget half of the protocol: no acks, malformed payloads no-op,
// and the broadcast goes to whatever room the payload names.

// OnLobbyJoin handles lobby:join {lobbyId, name?}: joins the sender to the
// lobby room and broadcasts join presence to the room. If the sender was in
// a different lobby room, leave presence fires there first.
func (s *Service) OnLobbyJoin(connID string, data json.RawMessage, _ int64) {
	var p protocol.LobbyJoinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.LobbyID == "" {
		return
	}

	id, _ := s.registry.Get(connID)
	if p.Name != "" {
		id.Name = p.Name
		s.registry.Register(connID, id)
	}

	prev, joined := s.rooms.Join(room.NamespaceLobby, connID, p.LobbyID)
	if prev != "" {
		s.broadcast(room.NamespaceLobby, prev, protocol.EventLobbyPresence, protocol.PresencePayload{
			ID:   id.ID,
			Name: id.Name,
			Type: protocol.PresenceLeave,
		})
	}
	if !joined {
		return
	}

	s.broadcast(room.NamespaceLobby, p.LobbyID, protocol.EventLobbyPresence, protocol.PresencePayload{
		ID:   id.ID,
		Name: id.Name,
		Type: protocol.PresenceJoin,
	})
	s.updateRoomGauges()
	s.mirrorLobby(connID, p.LobbyID)

	log.Printf("relay: lobby join conn=%s lobby=%s", connID, p.LobbyID)
}

// OnLobbyLeave handles lobby:leave {lobbyId}: leaves the room and broadcasts
// leave presence to the remaining members.
func (s *Service) OnLobbyLeave(connID string, data json.RawMessage, _ int64) {
	var p protocol.LobbyLeavePayload
	if err := json.Unmarshal(data, &p); err != nil || p.LobbyID == "" {
		return
	}

	if !s.rooms.Leave(room.NamespaceLobby, connID, p.LobbyID) {
		return
	}

	id, _ := s.registry.Get(connID)
	s.broadcast(room.NamespaceLobby, p.LobbyID, protocol.EventLobbyPresence, protocol.PresencePayload{
		ID:   id.ID,
		Name: id.Name,
		Type: protocol.PresenceLeave,
	})
	s.updateRoomGauges()
	s.mirrorLobby(connID, "")

	log.Printf("relay: lobby leave conn=%s lobby=%s", connID, p.LobbyID)
}

// OnLobbyVote handles lobby:vote {lobbyId, choice}: broadcasts a vote update
// to the named lobby room, tagged with the sender and a server timestamp.
func (s *Service) OnLobbyVote(connID string, data json.RawMessage, _ int64) {
	var p protocol.LobbyVotePayload
	if err := json.Unmarshal(data, &p); err != nil || p.LobbyID == "" || p.Choice == "" {
		return
	}

	if !s.allowRate(connID, ratelimit.RuleVote) {
		metrics.MessagesRejectedTotal.WithLabelValues("rate_limited").Inc()
		return
	}

	id, _ := s.registry.Get(connID)
	s.broadcast(room.NamespaceLobby, p.LobbyID, protocol.EventLobbyVoteUpdate, protocol.VoteUpdatePayload{
		UserID: id.ID,
		Choice: p.Choice,
		Ts:     time.Now().UnixMilli(),
	}, s.senderExclusion(connID)...)
}

// OnGameAction handles game:action {lobbyId, action}: forwards the opaque
// action to the lobby room verbatim.
func (s *Service) OnGameAction(connID string, data json.RawMessage, _ int64) {
	var p protocol.GameActionPayload
	if err := json.Unmarshal(data, &p); err != nil || p.LobbyID == "" {
		return
	}

	if !s.allowRate(connID, ratelimit.RuleVote) {
		metrics.MessagesRejectedTotal.WithLabelValues("rate_limited").Inc()
		return
	}

	id, _ := s.registry.Get(connID)
	s.broadcast(room.NamespaceLobby, p.LobbyID, protocol.EventGameUpdate, protocol.GameUpdatePayload{
		Action: p.Action,
		By:     id.ID,
		Ts:     time.Now().UnixMilli(),
	}, s.senderExclusion(connID)...)
}

// allowRate consults the limiter, failing open when rate limiting is
// disabled or Redis is unreachable.
func (s *Service) allowRate(connID string, rule ratelimit.Rule) bool {
	if s.limiter == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, _ := s.limiter.Allow(ctx, connID, rule)
	return ok
}

// mirrorLobby records the lobby membership in the Redis session mirror.
func (s *Service) mirrorLobby(connID, lobbyID string) {
	if s.sessions == nil {
		return
	}
	ctx, cancel := sessionCtx()
	defer cancel()
	if err := s.sessions.SetLobby(ctx, connID, lobbyID); err != nil {
		log.Printf("relay: session lobby update failed conn=%s: %v", connID, err)
	}
}

// mirrorGame records the game membership in the Redis session mirror.
func (s *Service) mirrorGame(connID, gameID string) {
	if s.sessions == nil {
		return
	}
	ctx, cancel := sessionCtx()
	defer cancel()
	if err := s.sessions.SetGame(ctx, connID, gameID); err != nil {
		log.Printf("relay: session game update failed conn=%s: %v", connID, err)
	}
}
