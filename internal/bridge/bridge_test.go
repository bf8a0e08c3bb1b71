package bridge

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/society/relay/internal/protocol"
	"github.com/society/relay/internal/relay"
)

// recordingSender captures frames per connection, decoded into envelopes.
type recordingSender struct {
	mu     sync.Mutex
	frames map[string][]protocol.Envelope
}

func newRecordingSender() *recordingSender {
	return &recordingSender{frames: make(map[string][]protocol.Envelope)}
}

func (s *recordingSender) Send(connID string, data []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	s.mu.Lock()
	s.frames[connID] = append(s.frames[connID], env)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) lastOf(connID, event string) *protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames[connID]) - 1; i >= 0; i-- {
		if s.frames[connID][i].Event == event {
			env := s.frames[connID][i]
			return &env
		}
	}
	return nil
}

func (s *recordingSender) countOf(connID, event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, env := range s.frames[connID] {
		if env.Event == event {
			n++
		}
	}
	return n
}

func setup(t *testing.T) (*Bridge, *relay.Service, *recordingSender) {
	t.Helper()
	sender := newRecordingSender()
	svc := relay.NewService(relay.DefaultConfig(), sender, nil, nil)
	return New(svc, nil), svc, sender
}

func joinGame(t *testing.T, svc *relay.Service, connID, gameID string) {
	t.Helper()
	data, err := json.Marshal(gameID)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	svc.OnJoinGame(connID, data, 0)
}

// ---------------------------------------------------------------------------
// Test: Vote results reach exactly the game room's members, verbatim
// ---------------------------------------------------------------------------

func TestRelayVoteCompleted(t *testing.T) {
	b, svc, sender := setup(t)

	svc.HandleConnect("conn-a", map[string]string{"id": "u-a"})
	svc.HandleConnect("conn-b", map[string]string{"id": "u-b"})
	svc.HandleConnect("conn-c", map[string]string{"id": "u-c"})
	joinGame(t, svc, "conn-a", "game-42")
	joinGame(t, svc, "conn-b", "game-42")
	joinGame(t, svc, "conn-c", "game-99")

	payload := []byte(`{"roundNumber":2,"accepted":true,"roundCompleted":true,"counts":{"1":3}}`)
	b.RelayVoteCompleted("game-42", payload)

	for _, connID := range []string{"conn-a", "conn-b"} {
		env := sender.lastOf(connID, protocol.EventVoteCompleted)
		if env == nil {
			t.Fatalf("%s: expected voteCompleted", connID)
		}
		var r protocol.VoteResult
		if err := json.Unmarshal(env.Data, &r); err != nil {
			t.Fatalf("failed to decode vote result: %v", err)
		}
		if r.RoundNumber != 2 || !r.Accepted || !r.RoundCompleted {
			t.Errorf("%s: unexpected result %+v", connID, r)
		}
		if r.Counts[1] != 3 {
			t.Errorf("%s: unexpected counts %v", connID, r.Counts)
		}
	}

	if sender.countOf("conn-c", protocol.EventVoteCompleted) != 0 {
		t.Error("members of other game rooms must not receive the result")
	}
}

// ---------------------------------------------------------------------------
// Test: Malformed vote payloads and empty game ids are dropped
// ---------------------------------------------------------------------------

func TestRelayVoteCompleted_Dropped(t *testing.T) {
	b, svc, sender := setup(t)
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a"})
	joinGame(t, svc, "conn-a", "game-42")

	b.RelayVoteCompleted("game-42", []byte(`{not json`))
	b.RelayVoteCompleted("", []byte(`{"roundNumber":1}`))

	if sender.countOf("conn-a", protocol.EventVoteCompleted) != 0 {
		t.Error("expected no voteCompleted deliveries")
	}
}

// ---------------------------------------------------------------------------
// Test: Game start reaches the lobby room plus a system chat message
// ---------------------------------------------------------------------------

func TestRelayGameStarted(t *testing.T) {
	b, svc, sender := setup(t)

	svc.HandleConnect("conn-a", map[string]string{"id": "u-a"})
	svc.HandleConnect("conn-b", map[string]string{"id": "u-b"})
	for _, connID := range []string{"conn-a", "conn-b"} {
		data, _ := json.Marshal("lobby-1")
		svc.OnJoinLobby(connID, data, 0)
	}

	b.RelayGameStarted("lobby-1", "game-42")

	for _, connID := range []string{"conn-a", "conn-b"} {
		env := sender.lastOf(connID, protocol.EventGameStarted)
		if env == nil {
			t.Fatalf("%s: expected gameStarted", connID)
		}
		var gameID string
		if err := json.Unmarshal(env.Data, &gameID); err != nil {
			t.Fatalf("failed to decode game id: %v", err)
		}
		if gameID != "game-42" {
			t.Errorf("%s: expected game id game-42, got %q", connID, gameID)
		}

		if sender.countOf(connID, protocol.EventReceiveMessage) != 1 {
			t.Errorf("%s: expected the system chat message", connID)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: Game start for an empty lobby is a silent drop
// ---------------------------------------------------------------------------

func TestRelayGameStarted_EmptyLobby(t *testing.T) {
	b, svc, sender := setup(t)
	svc.HandleConnect("conn-a", map[string]string{"id": "u-a"})

	b.RelayGameStarted("lobby-nobody", "game-42")
	b.RelayGameStarted("", "game-42")
	b.RelayGameStarted("lobby-1", "")

	if sender.countOf("conn-a", protocol.EventGameStarted) != 0 {
		t.Error("expected no gameStarted deliveries")
	}

	// Start without NATS is a no-op, not an error.
	if err := b.Start(); err != nil {
		t.Errorf("Start without NATS should succeed: %v", err)
	}
}
