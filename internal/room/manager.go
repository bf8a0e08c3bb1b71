// Package room maintains room membership for the relay and fans broadcasts
// out to members. Rooms are grouped into independent namespaces (lobby rooms
// and game rooms) so that one connection can sit in a lobby room and a game
// room at the same time without cross-contamination.
package room

import "sync"

// Namespace identifies an independent room-membership domain. Within one
// namespace a connection belongs to at most one room at a time.
type Namespace string

const (
	NamespaceLobby Namespace = "lobby"
	NamespaceGame  Namespace = "game"
)

// Namespaces lists all known namespaces, in cleanup order.
var Namespaces = []Namespace{NamespaceLobby, NamespaceGame}

// Sender delivers an already-encoded frame to a single connection. Delivery
// errors are the transport's problem: a failed connection is cleaned up by
// the read path, not by the broadcaster.
type Sender interface {
	Send(connID string, data []byte) error
}

// Manager is the thread-safe room-membership registry. It owns exclusive
// mutation rights over the membership maps; no raw map access is exposed.
type Manager struct {
	mu     sync.RWMutex
	sender Sender
	rooms  map[Namespace]map[string]map[string]struct{} // ns -> room -> member set
	member map[Namespace]map[string]string              // ns -> conn -> room
}

// NewManager creates a Manager that delivers broadcasts through the given
// sender.
func NewManager(sender Sender) *Manager {
	m := &Manager{
		sender: sender,
		rooms:  make(map[Namespace]map[string]map[string]struct{}),
		member: make(map[Namespace]map[string]string),
	}
	for _, ns := range Namespaces {
		m.rooms[ns] = make(map[string]map[string]struct{})
		m.member[ns] = make(map[string]string)
	}
	return m
}

// Join adds the connection to a room. If the connection already belonged to a
// different room in the same namespace it is removed from that room first;
// the previous room id is returned so the caller can emit leave presence
// there. joined is false when the call was a no-op (empty ids, or already a
// member of the target room).
func (m *Manager) Join(ns Namespace, connID, roomID string) (prevRoom string, joined bool) {
	if connID == "" || roomID == "" {
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.member[ns][connID] == roomID {
		return "", false
	}

	if prev := m.member[ns][connID]; prev != "" {
		m.removeLocked(ns, connID, prev)
		prevRoom = prev
	}

	members, ok := m.rooms[ns][roomID]
	if !ok {
		members = make(map[string]struct{})
		m.rooms[ns][roomID] = members
	}
	members[connID] = struct{}{}
	m.member[ns][connID] = roomID

	return prevRoom, true
}

// Leave removes the connection from a room, if it is a member. No-op
// otherwise, including for empty ids.
func (m *Manager) Leave(ns Namespace, connID, roomID string) bool {
	if connID == "" || roomID == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.member[ns][connID] != roomID {
		return false
	}
	m.removeLocked(ns, connID, roomID)
	return true
}

// removeLocked drops a membership and garbage-collects the room when its
// last member leaves. Caller holds the write lock.
func (m *Manager) removeLocked(ns Namespace, connID, roomID string) {
	if members, ok := m.rooms[ns][roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.rooms[ns], roomID)
		}
	}
	delete(m.member[ns], connID)
}

// RoomOf returns the room the connection currently belongs to in the given
// namespace, or "" if none.
func (m *Manager) RoomOf(ns Namespace, connID string) string {
	m.mu.RLock()
	r := m.member[ns][connID]
	m.mu.RUnlock()
	return r
}

// Members returns a snapshot of the room's member connection ids. Order is
// unspecified.
func (m *Manager) Members(ns Namespace, roomID string) []string {
	m.mu.RLock()
	members := m.rooms[ns][roomID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	m.mu.RUnlock()
	return out
}

// RoomCount returns the number of live rooms in the namespace.
func (m *Manager) RoomCount(ns Namespace) int {
	m.mu.RLock()
	n := len(m.rooms[ns])
	m.mu.RUnlock()
	return n
}

// Broadcast delivers a frame to every current member of the room except the
// optionally excluded connections. An empty room silently drops the frame.
// Per-member delivery errors are ignored; delivery order across members is
// unspecified.
func (m *Manager) Broadcast(ns Namespace, roomID string, data []byte, exclude ...string) int {
	if roomID == "" {
		return 0
	}

	m.mu.RLock()
	members := m.rooms[ns][roomID]
	targets := make([]string, 0, len(members))
	for id := range members {
		if contains(exclude, id) {
			continue
		}
		targets = append(targets, id)
	}
	m.mu.RUnlock()

	for _, id := range targets {
		_ = m.sender.Send(id, data)
	}
	return len(targets)
}

// DisconnectCleanup removes the connection from every room across all
// namespaces. It returns the rooms the connection was actually in, keyed by
// namespace, so the caller can emit exactly one leave-presence event per
// room left.
func (m *Manager) DisconnectCleanup(connID string) map[Namespace]string {
	left := make(map[Namespace]string)

	m.mu.Lock()
	for _, ns := range Namespaces {
		if roomID := m.member[ns][connID]; roomID != "" {
			m.removeLocked(ns, connID, roomID)
			left[ns] = roomID
		}
	}
	m.mu.Unlock()

	return left
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
