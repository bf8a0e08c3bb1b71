package relay

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/society/relay/internal/chat"
	"github.com/society/relay/internal/protocol"
	"github.com/society/relay/internal/room"
)

func decodeString(t *testing.T, data json.RawMessage) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("failed to decode string payload: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Test: joinLobby acks the joiner, presence goes to the others only
// ---------------------------------------------------------------------------

func TestOnJoinLobby_AckAndPresence(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a", "name": "Ana"})
	svc.HandleConnect("conn-b", map[string]string{"id": "u-b", "name": "Ben"})
	svc.OnJoinLobby("conn-a", mustMarshal(t, "lobby-1"), 1)
	sender.reset()

	svc.OnJoinLobby("conn-b", mustMarshal(t, "lobby-1"), 2)

	// The joiner gets the ack, not its own join presence.
	env := sender.last("conn-b", protocol.EventAck)
	if env == nil {
		t.Fatal("expected an ack")
	}
	if env.AckID != 2 {
		t.Errorf("expected ack id 2, got %d", env.AckID)
	}
	if got := decodeString(t, env.Data); got != "Joined lobby chat successfully" {
		t.Errorf("unexpected ack status: %q", got)
	}
	if sender.countOf("conn-b", protocol.EventLobbyPresence) != 0 {
		t.Error("joiner should not receive its own join presence")
	}

	// The existing member sees the join.
	env = sender.last("conn-a", protocol.EventLobbyPresence)
	if env == nil {
		t.Fatal("expected join presence for the existing member")
	}
	var p protocol.PresencePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("failed to decode presence: %v", err)
	}
	if p.Type != protocol.PresenceJoin || p.ID != "u-b" {
		t.Errorf("unexpected presence %+v", p)
	}
}

// ---------------------------------------------------------------------------
// Test: Re-joining the same lobby still acks but emits no presence
// ---------------------------------------------------------------------------

func TestOnJoinLobby_Rejoin(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a"})
	svc.HandleConnect("conn-b", map[string]string{"id": "u-b"})
	svc.OnJoinLobby("conn-a", mustMarshal(t, "lobby-1"), 0)
	svc.OnJoinLobby("conn-b", mustMarshal(t, "lobby-1"), 0)
	sender.reset()

	svc.OnJoinLobby("conn-a", mustMarshal(t, "lobby-1"), 5)

	if sender.countOf("conn-b", protocol.EventLobbyPresence) != 0 {
		t.Error("rejoin should not re-announce presence")
	}
	env := sender.last("conn-a", protocol.EventAck)
	if env == nil || env.AckID != 5 {
		t.Error("rejoin should still be acked")
	}
}

// ---------------------------------------------------------------------------
// Test: leaveLobby ignores the payload and leaves the current room
// ---------------------------------------------------------------------------

func TestOnLeaveLobby(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a", "name": "Ana"})
	svc.HandleConnect("conn-b", map[string]string{"id": "u-b", "name": "Ben"})
	svc.OnJoinLobby("conn-a", mustMarshal(t, "lobby-1"), 0)
	svc.OnJoinLobby("conn-b", mustMarshal(t, "lobby-1"), 0)
	sender.reset()

	svc.OnLeaveLobby("conn-a", mustMarshal(t, ""), 3)

	env := sender.last("conn-a", protocol.EventAck)
	if env == nil {
		t.Fatal("expected an ack")
	}
	if got := decodeString(t, env.Data); got != "Left lobby chat successfully" {
		t.Errorf("unexpected ack status: %q", got)
	}

	// The remaining member sees the leave.
	env = sender.last("conn-b", protocol.EventLobbyPresence)
	if env == nil {
		t.Fatal("expected leave presence")
	}
	var p protocol.PresencePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("failed to decode presence: %v", err)
	}
	if p.Type != protocol.PresenceLeave || p.ID != "u-a" {
		t.Errorf("unexpected presence %+v", p)
	}

	if got := svc.Rooms().RoomOf(room.NamespaceLobby, "conn-a"); got != "" {
		t.Errorf("expected no lobby membership, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Test: leaveLobby when not in a lobby does nothing, not even the ack
// ---------------------------------------------------------------------------

func TestOnLeaveLobby_NotMember(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a"})
	sender.reset()

	svc.OnLeaveLobby("conn-a", mustMarshal(t, ""), 4)

	if got := len(sender.events("conn-a")); got != 0 {
		t.Errorf("expected no frames, got %v", sender.events("conn-a"))
	}
}

// ---------------------------------------------------------------------------
// Test: sendMessage broadcasts a stamped message, sender echoed by default
// ---------------------------------------------------------------------------

func TestOnSendMessage_Broadcast(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a", "name": "Ana", "avatarClass": "fox"})
	svc.HandleConnect("conn-b", map[string]string{"id": "u-b", "name": "Ben"})
	svc.OnJoinLobby("conn-a", mustMarshal(t, "lobby-1"), 0)
	svc.OnJoinLobby("conn-b", mustMarshal(t, "lobby-1"), 0)
	sender.reset()

	svc.OnSendMessage("conn-a", mustMarshal(t, protocol.SendMessagePayload{Message: "  hello lobby  "}), 0)

	for _, connID := range []string{"conn-a", "conn-b"} {
		env := sender.last(connID, protocol.EventReceiveMessage)
		if env == nil {
			t.Fatalf("%s: expected receiveMessage", connID)
		}
		var msg chat.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			t.Fatalf("failed to decode message: %v", err)
		}
		if msg.PlayerID != "u-a" || msg.PlayerName != "Ana" || msg.AvatarID != "fox" {
			t.Errorf("%s: unexpected sender fields %+v", connID, msg)
		}
		if msg.Message != "hello lobby" {
			t.Errorf("%s: expected trimmed text, got %q", connID, msg.Message)
		}
		if msg.Timestamp.IsZero() {
			t.Errorf("%s: expected a server timestamp", connID)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: Echo-self disabled excludes the sender from its own message
// ---------------------------------------------------------------------------

func TestOnSendMessage_NoEcho(t *testing.T) {
	sender := newFakeSender()
	svc := NewService(Config{EchoSelf: false}, sender, nil, nil)
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a"})
	svc.HandleConnect("conn-b", map[string]string{"id": "u-b"})
	svc.OnJoinLobby("conn-a", mustMarshal(t, "lobby-1"), 0)
	svc.OnJoinLobby("conn-b", mustMarshal(t, "lobby-1"), 0)
	sender.reset()

	svc.OnSendMessage("conn-a", mustMarshal(t, protocol.SendMessagePayload{Message: "hi"}), 0)

	if sender.countOf("conn-a", protocol.EventReceiveMessage) != 0 {
		t.Error("sender should not be echoed when disabled")
	}
	if sender.countOf("conn-b", protocol.EventReceiveMessage) != 1 {
		t.Error("other members should still receive the message")
	}
}

// ---------------------------------------------------------------------------
// Test: sendMessage rejections produce a client-visible error, no broadcast
// ---------------------------------------------------------------------------

func TestOnSendMessage_Rejections(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a"})
	svc.HandleConnect("conn-b", map[string]string{"id": "u-b"})
	svc.OnJoinLobby("conn-b", mustMarshal(t, "lobby-1"), 0)

	t.Run("not in a lobby", func(t *testing.T) {
		sender.reset()
		svc.OnSendMessage("conn-a", mustMarshal(t, protocol.SendMessagePayload{Message: "hi"}), 0)

		env := sender.last("conn-a", protocol.EventError)
		if env == nil {
			t.Fatal("expected an error event")
		}
		if got := decodeString(t, env.Data); got != "You are not in a lobby" {
			t.Errorf("unexpected error message: %q", got)
		}
		if sender.countOf("conn-b", protocol.EventReceiveMessage) != 0 {
			t.Error("nothing should have been broadcast")
		}
	})

	t.Run("too long", func(t *testing.T) {
		sender.reset()
		svc.OnJoinLobby("conn-a", mustMarshal(t, "lobby-1"), 0)
		sender.reset()

		long := strings.Repeat("a", chat.MaxMessageChars+1)
		svc.OnSendMessage("conn-a", mustMarshal(t, protocol.SendMessagePayload{Message: long}), 0)

		if sender.last("conn-a", protocol.EventError) == nil {
			t.Fatal("expected an error event")
		}
		if sender.countOf("conn-b", protocol.EventReceiveMessage) != 0 {
			t.Error("nothing should have been broadcast")
		}
	})

	t.Run("empty", func(t *testing.T) {
		sender.reset()
		svc.OnSendMessage("conn-a", mustMarshal(t, protocol.SendMessagePayload{Message: "   "}), 0)
		if sender.last("conn-a", protocol.EventError) == nil {
			t.Fatal("expected an error event")
		}
	})
}

// ---------------------------------------------------------------------------
// Test: joinGame membership is independent of the lobby membership
// ---------------------------------------------------------------------------

func TestOnJoinGame(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a"})
	svc.OnJoinLobby("conn-a", mustMarshal(t, "lobby-1"), 0)
	sender.reset()

	svc.OnJoinGame("conn-a", mustMarshal(t, "game-42"), 6)

	env := sender.last("conn-a", protocol.EventAck)
	if env == nil {
		t.Fatal("expected an ack")
	}
	if got := decodeString(t, env.Data); got != "Joined game room successfully" {
		t.Errorf("unexpected ack status: %q", got)
	}

	if got := svc.Rooms().RoomOf(room.NamespaceGame, "conn-a"); got != "game-42" {
		t.Errorf("expected game membership, got %q", got)
	}
	if got := svc.Rooms().RoomOf(room.NamespaceLobby, "conn-a"); got != "lobby-1" {
		t.Errorf("lobby membership should be untouched, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Test: System messages carry the System sender and no player id
// ---------------------------------------------------------------------------

func TestSendSystemMessage(t *testing.T) {
	svc, sender := newTestService()
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a"})
	svc.OnJoinLobby("conn-a", mustMarshal(t, "lobby-1"), 0)
	sender.reset()

	svc.SendSystemMessage("lobby-1", "The game is starting")

	env := sender.last("conn-a", protocol.EventReceiveMessage)
	if env == nil {
		t.Fatal("expected receiveMessage")
	}
	var msg chat.Message
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.PlayerName != chat.SystemSender {
		t.Errorf("expected sender %q, got %q", chat.SystemSender, msg.PlayerName)
	}
	if msg.PlayerID != "" {
		t.Errorf("system messages carry no player id, got %q", msg.PlayerID)
	}
	if msg.Message != "The game is starting" {
		t.Errorf("unexpected text: %q", msg.Message)
	}
}
