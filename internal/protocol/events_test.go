package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid lobby:join frame
// ---------------------------------------------------------------------------

func TestParseClientEvent_LobbyJoin(t *testing.T) {
	input := []byte(`{"event":"lobby:join","data":{"lobbyId":"lobby-1","name":"Ana"}}`)

	env, err := ParseClientEvent(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Event != EventLobbyJoin {
		t.Fatalf("expected event %q, got %q", EventLobbyJoin, env.Event)
	}
	if env.AckID != 0 {
		t.Errorf("expected no ack id, got %d", env.AckID)
	}

	var p LobbyJoinPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if p.LobbyID != "lobby-1" {
		t.Errorf("expected lobbyId %q, got %q", "lobby-1", p.LobbyID)
	}
	if p.Name != "Ana" {
		t.Errorf("expected name %q, got %q", "Ana", p.Name)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an ack-style frame with a bare-string payload
// ---------------------------------------------------------------------------

func TestParseClientEvent_AckStyle(t *testing.T) {
	input := []byte(`{"event":"joinLobby","data":"lobby-42","ack":7}`)

	env, err := ParseClientEvent(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Event != EventJoinLobby {
		t.Fatalf("expected event %q, got %q", EventJoinLobby, env.Event)
	}
	if env.AckID != 7 {
		t.Errorf("expected ack id 7, got %d", env.AckID)
	}

	var id string
	if err := json.Unmarshal(env.Data, &id); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if id != "lobby-42" {
		t.Errorf("expected payload %q, got %q", "lobby-42", id)
	}
}

// ---------------------------------------------------------------------------
// Test: Invalid frames are rejected
// ---------------------------------------------------------------------------

func TestParseClientEvent_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"not json", `{broken`},
		{"missing event", `{"data":{"lobbyId":"x"}}`},
		{"empty event", `{"event":"","data":{}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseClientEvent([]byte(tc.input)); err == nil {
				t.Fatal("expected an error, got nil")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Test: Building a server frame
// ---------------------------------------------------------------------------

func TestNewServerEvent(t *testing.T) {
	data, err := NewServerEvent(EventLobbyPresence, PresencePayload{
		ID:   "u1",
		Name: "Ana",
		Type: PresenceJoin,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["event"] != EventLobbyPresence {
		t.Errorf("expected event %q, got %v", EventLobbyPresence, result["event"])
	}

	payload, ok := result["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data to be an object, got %T", result["data"])
	}
	if payload["id"] != "u1" || payload["name"] != "Ana" || payload["type"] != PresenceJoin {
		t.Errorf("unexpected payload: %v", payload)
	}
	if _, present := result["ack"]; present {
		t.Error("server event should not carry an ack id")
	}
}

// ---------------------------------------------------------------------------
// Test: Ack frames echo the client's ack id
// ---------------------------------------------------------------------------

func TestNewAck(t *testing.T) {
	data, err := NewAck(9, "Joined lobby chat successfully")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("failed to unmarshal ack frame: %v", err)
	}
	if env.Event != EventAck {
		t.Errorf("expected event %q, got %q", EventAck, env.Event)
	}
	if env.AckID != 9 {
		t.Errorf("expected ack id 9, got %d", env.AckID)
	}

	var status string
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status != "Joined lobby chat successfully" {
		t.Errorf("unexpected status: %q", status)
	}
}

// ---------------------------------------------------------------------------
// Test: Error frames carry a plain message string
// ---------------------------------------------------------------------------

func TestNewErrorEvent(t *testing.T) {
	data, err := NewErrorEvent("You are not in a lobby")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("failed to unmarshal error frame: %v", err)
	}
	if env.Event != EventError {
		t.Errorf("expected event %q, got %q", EventError, env.Event)
	}

	var msg string
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg != "You are not in a lobby" {
		t.Errorf("unexpected message: %q", msg)
	}
}

// ---------------------------------------------------------------------------
// Test: Vote result payload round-trips the backend field names
// ---------------------------------------------------------------------------

func TestVoteResult_Decode(t *testing.T) {
	input := []byte(`{
		"roundNumber": 3,
		"accepted": true,
		"roundCompleted": false,
		"counts": {"1": 4, "2": 2},
		"outcomeSummary": "Proposal accepted"
	}`)

	var r VoteResult
	if err := json.Unmarshal(input, &r); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if r.RoundNumber != 3 {
		t.Errorf("expected roundNumber 3, got %d", r.RoundNumber)
	}
	if !r.Accepted {
		t.Error("expected accepted=true")
	}
	if r.RoundCompleted {
		t.Error("expected roundCompleted=false")
	}
	if r.Counts[1] != 4 || r.Counts[2] != 2 {
		t.Errorf("unexpected counts: %v", r.Counts)
	}
	if r.OutcomeSummary != "Proposal accepted" {
		t.Errorf("unexpected outcomeSummary: %q", r.OutcomeSummary)
	}
}
