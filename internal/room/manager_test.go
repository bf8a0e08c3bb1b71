package room

import (
	"sync"
	"testing"
)

// recordingSender captures delivered frames per connection.
type recordingSender struct {
	mu    sync.Mutex
	sends map[string][][]byte
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sends: make(map[string][][]byte)}
}

func (s *recordingSender) Send(connID string, data []byte) error {
	s.mu.Lock()
	s.sends[connID] = append(s.sends[connID], data)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) count(connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends[connID])
}

// ---------------------------------------------------------------------------
// Test: Join / Leave basics
// ---------------------------------------------------------------------------

func TestManager_JoinLeave(t *testing.T) {
	m := NewManager(newRecordingSender())

	prev, joined := m.Join(NamespaceLobby, "conn-1", "lobby-1")
	if prev != "" || !joined {
		t.Fatalf("expected fresh join, got prev=%q joined=%v", prev, joined)
	}
	if got := m.RoomOf(NamespaceLobby, "conn-1"); got != "lobby-1" {
		t.Errorf("expected RoomOf lobby-1, got %q", got)
	}

	if !m.Leave(NamespaceLobby, "conn-1", "lobby-1") {
		t.Fatal("expected leave to succeed")
	}
	if got := m.RoomOf(NamespaceLobby, "conn-1"); got != "" {
		t.Errorf("expected no room after leave, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Test: Joining the room you are already in is a no-op
// ---------------------------------------------------------------------------

func TestManager_JoinIdempotent(t *testing.T) {
	m := NewManager(newRecordingSender())

	m.Join(NamespaceLobby, "conn-1", "lobby-1")
	prev, joined := m.Join(NamespaceLobby, "conn-1", "lobby-1")
	if joined {
		t.Error("expected repeated join to report joined=false")
	}
	if prev != "" {
		t.Errorf("expected no previous room, got %q", prev)
	}
	if members := m.Members(NamespaceLobby, "lobby-1"); len(members) != 1 {
		t.Errorf("expected 1 member, got %d", len(members))
	}
}

// ---------------------------------------------------------------------------
// Test: Joining a different room replaces the old membership
// ---------------------------------------------------------------------------

func TestManager_JoinReplaces(t *testing.T) {
	m := NewManager(newRecordingSender())

	m.Join(NamespaceLobby, "conn-1", "lobby-1")
	prev, joined := m.Join(NamespaceLobby, "conn-1", "lobby-2")
	if !joined {
		t.Fatal("expected join to succeed")
	}
	if prev != "lobby-1" {
		t.Errorf("expected previous room lobby-1, got %q", prev)
	}
	if got := m.RoomOf(NamespaceLobby, "conn-1"); got != "lobby-2" {
		t.Errorf("expected current room lobby-2, got %q", got)
	}
	// lobby-1 had a single member, so it should be gone entirely.
	if n := m.RoomCount(NamespaceLobby); n != 1 {
		t.Errorf("expected 1 live room, got %d", n)
	}
}

// ---------------------------------------------------------------------------
// Test: Namespaces are independent
// ---------------------------------------------------------------------------

func TestManager_NamespacesIndependent(t *testing.T) {
	m := NewManager(newRecordingSender())

	m.Join(NamespaceLobby, "conn-1", "lobby-1")
	m.Join(NamespaceGame, "conn-1", "game-42")

	if got := m.RoomOf(NamespaceLobby, "conn-1"); got != "lobby-1" {
		t.Errorf("expected lobby membership intact, got %q", got)
	}
	if got := m.RoomOf(NamespaceGame, "conn-1"); got != "game-42" {
		t.Errorf("expected game membership, got %q", got)
	}

	// Leaving the game room leaves the lobby membership alone.
	m.Leave(NamespaceGame, "conn-1", "game-42")
	if got := m.RoomOf(NamespaceLobby, "conn-1"); got != "lobby-1" {
		t.Errorf("lobby membership lost on game leave: %q", got)
	}
}

// ---------------------------------------------------------------------------
// Test: Leave of a room you are not in is a no-op
// ---------------------------------------------------------------------------

func TestManager_LeaveNotMember(t *testing.T) {
	m := NewManager(newRecordingSender())
	m.Join(NamespaceLobby, "conn-1", "lobby-1")

	if m.Leave(NamespaceLobby, "conn-1", "lobby-2") {
		t.Error("expected leave of wrong room to fail")
	}
	if m.Leave(NamespaceLobby, "conn-2", "lobby-1") {
		t.Error("expected leave by non-member to fail")
	}
	if got := m.RoomOf(NamespaceLobby, "conn-1"); got != "lobby-1" {
		t.Errorf("membership should be untouched, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Test: Broadcast reaches members only, honoring exclusions
// ---------------------------------------------------------------------------

func TestManager_Broadcast(t *testing.T) {
	sender := newRecordingSender()
	m := NewManager(sender)

	m.Join(NamespaceLobby, "conn-1", "lobby-1")
	m.Join(NamespaceLobby, "conn-2", "lobby-1")
	m.Join(NamespaceLobby, "conn-3", "lobby-2")

	n := m.Broadcast(NamespaceLobby, "lobby-1", []byte(`{"event":"x"}`))
	if n != 2 {
		t.Fatalf("expected delivery to 2 members, got %d", n)
	}
	if sender.count("conn-1") != 1 || sender.count("conn-2") != 1 {
		t.Error("expected both lobby-1 members to receive the frame")
	}
	if sender.count("conn-3") != 0 {
		t.Error("lobby-2 member should not receive lobby-1 broadcasts")
	}

	n = m.Broadcast(NamespaceLobby, "lobby-1", []byte(`{"event":"y"}`), "conn-1")
	if n != 1 {
		t.Fatalf("expected delivery to 1 member with exclusion, got %d", n)
	}
	if sender.count("conn-1") != 1 {
		t.Error("excluded member should not receive the frame")
	}
}

// ---------------------------------------------------------------------------
// Test: Broadcast to an empty or unknown room is a silent drop
// ---------------------------------------------------------------------------

func TestManager_BroadcastEmptyRoom(t *testing.T) {
	sender := newRecordingSender()
	m := NewManager(sender)

	if n := m.Broadcast(NamespaceLobby, "nobody-here", []byte(`{}`)); n != 0 {
		t.Errorf("expected 0 deliveries, got %d", n)
	}
	if n := m.Broadcast(NamespaceGame, "", []byte(`{}`)); n != 0 {
		t.Errorf("expected 0 deliveries for empty room id, got %d", n)
	}
	if len(sender.sends) != 0 {
		t.Error("no frames should have been sent")
	}
}

// ---------------------------------------------------------------------------
// Test: Disconnect cleanup removes the connection everywhere, exactly once
// ---------------------------------------------------------------------------

func TestManager_DisconnectCleanup(t *testing.T) {
	m := NewManager(newRecordingSender())

	m.Join(NamespaceLobby, "conn-1", "lobby-1")
	m.Join(NamespaceGame, "conn-1", "game-42")
	m.Join(NamespaceLobby, "conn-2", "lobby-1")

	left := m.DisconnectCleanup("conn-1")
	if len(left) != 2 {
		t.Fatalf("expected 2 rooms left, got %d", len(left))
	}
	if left[NamespaceLobby] != "lobby-1" {
		t.Errorf("expected lobby-1, got %q", left[NamespaceLobby])
	}
	if left[NamespaceGame] != "game-42" {
		t.Errorf("expected game-42, got %q", left[NamespaceGame])
	}

	if got := m.RoomOf(NamespaceLobby, "conn-1"); got != "" {
		t.Errorf("expected no lobby membership after cleanup, got %q", got)
	}
	// The other member's room survives; the emptied game room is gone.
	if members := m.Members(NamespaceLobby, "lobby-1"); len(members) != 1 {
		t.Errorf("expected lobby-1 to retain 1 member, got %d", len(members))
	}
	if n := m.RoomCount(NamespaceGame); n != 0 {
		t.Errorf("expected emptied game room to be collected, got %d rooms", n)
	}

	// Cleanup is idempotent.
	if left := m.DisconnectCleanup("conn-1"); len(left) != 0 {
		t.Errorf("expected second cleanup to find nothing, got %v", left)
	}
}
