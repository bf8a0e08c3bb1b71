package identity

import "sync"

// Registry is the thread-safe map of live connection ids to their resolved
// identities. It owns exclusive mutation rights over the identity state;
// presence side effects (snapshots, joined/left broadcasts) are driven by the
// relay layer from the booleans returned here.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Identity
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Identity)}
}

// Register stores the identity for a connection and returns it. Re-registering
// the same connection id replaces the previous entry.
func (r *Registry) Register(connID string, id Identity) Identity {
	r.mu.Lock()
	r.byID[connID] = id
	r.mu.Unlock()
	return id
}

// Unregister removes the entry for a connection. It returns the identity and
// true if the connection had been registered, so callers can avoid
// broadcasting phantom departures. Idempotent.
func (r *Registry) Unregister(connID string) (Identity, bool) {
	r.mu.Lock()
	id, ok := r.byID[connID]
	if ok {
		delete(r.byID, connID)
	}
	r.mu.Unlock()
	return id, ok
}

// Get returns the identity for a connection, if registered.
func (r *Registry) Get(connID string) (Identity, bool) {
	r.mu.RLock()
	id, ok := r.byID[connID]
	r.mu.RUnlock()
	return id, ok
}

// Snapshot returns the identities of all registered connections. Order is
// unspecified.
func (r *Registry) Snapshot() []Identity {
	r.mu.RLock()
	out := make([]Identity, 0, len(r.byID))
	for _, id := range r.byID {
		out = append(out, id)
	}
	r.mu.RUnlock()
	return out
}

// ConnIDs returns the connection ids of all registered connections. Order is
// unspecified.
func (r *Registry) ConnIDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.byID))
	for connID := range r.byID {
		out = append(out, connID)
	}
	r.mu.RUnlock()
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.byID)
	r.mu.RUnlock()
	return n
}
