// Package chat holds the chat-message shape and content rules for the lobby
// chat relay. Messages are ephemeral: validated, broadcast, and discarded.
package chat

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageChars is the maximum message length in characters. Anything
// longer is rejected with a client-visible error.
const MaxMessageChars = 500

// Message is the receiveMessage payload broadcast to a lobby room. A system
// message carries an empty PlayerID and the name "System".
type Message struct {
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	AvatarID   string    `json:"avatarId,omitempty"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// SystemSender is the display name used for relay-originated messages.
const SystemSender = "System"

// Validate trims the text and checks it against the content rules. It returns
// the trimmed text on success. Error strings are client-visible and kept
// verbatim from the backend the web clients were written against.
func Validate(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("Message cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageChars {
		return "", fmt.Errorf("Message too long (max %d characters)", MaxMessageChars)
	}
	if !utf8.ValidString(trimmed) {
		return "", fmt.Errorf("Message contains invalid characters")
	}
	return trimmed, nil
}
