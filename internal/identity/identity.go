// Package identity derives and tracks per-connection identity metadata. The
// handshake data arriving with a connection is an arbitrary string map (query
// parameters differ between client generations), so resolution is a
// prioritized key lookup rather than a fixed schema.
package identity

// Identity is the resolved metadata for a live connection. Token is the
// opaque auth token presented at connect time; the relay never validates it
// and never serializes it to other clients.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatarClass,omitempty"`
	Token  string `json:"-"`
}

// Fallback chains for identity resolution, in precedence order. The first
// non-empty value wins.
var (
	idKeys     = []string{"id", "userId", "uid", "playerId", "socketId"}
	nameKeys   = []string{"name", "username", "displayName", "playerName"}
	avatarKeys = []string{"avatarClass", "avatar", "icon"}
)

// Resolve builds an Identity from handshake data. It is total: with empty or
// malformed input the transport-assigned connection id stands in for both id
// and name, and the avatar is simply absent.
func Resolve(connID string, handshake map[string]string) Identity {
	id := firstNonEmpty(handshake, idKeys)
	if id == "" {
		id = connID
	}

	name := firstNonEmpty(handshake, nameKeys)
	if name == "" {
		name = id
	}

	return Identity{
		ID:     id,
		Name:   name,
		Avatar: firstNonEmpty(handshake, avatarKeys),
		Token:  handshake["token"],
	}
}

func firstNonEmpty(m map[string]string, keys []string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
