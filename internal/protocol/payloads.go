package protocol

import "encoding/json"

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

// LobbyJoinPayload accompanies lobby:join.
type LobbyJoinPayload struct {
	LobbyID string `json:"lobbyId"`
	Name    string `json:"name,omitempty"`
}

// LobbyLeavePayload accompanies lobby:leave.
type LobbyLeavePayload struct {
	LobbyID string `json:"lobbyId"`
}

// LobbyVotePayload accompanies lobby:vote.
type LobbyVotePayload struct {
	LobbyID string `json:"lobbyId"`
	Choice  string `json:"choice"`
}

// GameActionPayload accompanies game:action. The action itself is opaque to
// the relay and forwarded verbatim.
type GameActionPayload struct {
	LobbyID string          `json:"lobbyId"`
	Action  json.RawMessage `json:"action"`
}

// SendMessagePayload accompanies sendMessage.
type SendMessagePayload struct {
	Message string `json:"message"`
}

// joinLobby, leaveLobby, and joinGame carry a bare JSON string as their
// payload (the room id, or "" for leaveLobby), so they have no struct here.

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

// PresencePayload is the lobby:presence payload. Type is PresenceJoin or
// PresenceLeave.
type PresencePayload struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

// VoteUpdatePayload is the lobby:voteUpdate payload.
type VoteUpdatePayload struct {
	UserID string `json:"userId"`
	Choice string `json:"choice"`
	Ts     int64  `json:"ts"`
}

// GameUpdatePayload is the game:update payload.
type GameUpdatePayload struct {
	Action json.RawMessage `json:"action"`
	By     string          `json:"by"`
	Ts     int64           `json:"ts"`
}

// VoteResult is the voteCompleted payload. It is produced and validated
// entirely by the game-logic backend; the relay fans it out verbatim.
type VoteResult struct {
	RoundNumber    int             `json:"roundNumber"`
	Accepted       bool            `json:"accepted"`
	RoundCompleted bool            `json:"roundCompleted"`
	Counts         map[int]int64   `json:"counts"`
	NextDilemma    json.RawMessage `json:"nextDilemma"`
	OutcomeSummary string          `json:"outcomeSummary,omitempty"`
}
