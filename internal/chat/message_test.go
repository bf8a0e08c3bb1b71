package chat

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Test: Validation accepts and trims normal messages
// ---------------------------------------------------------------------------

func TestValidate_OK(t *testing.T) {
	got, err := Validate("  hello lobby  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello lobby" {
		t.Errorf("expected trimmed text, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Test: Length boundary sits at 500 characters, counted in runes
// ---------------------------------------------------------------------------

func TestValidate_LengthBoundary(t *testing.T) {
	ok := strings.Repeat("a", MaxMessageChars)
	if _, err := Validate(ok); err != nil {
		t.Errorf("message of exactly %d chars should pass: %v", MaxMessageChars, err)
	}

	tooLong := strings.Repeat("a", MaxMessageChars+1)
	if _, err := Validate(tooLong); err == nil {
		t.Errorf("message of %d chars should be rejected", MaxMessageChars+1)
	}

	// Multibyte runes count as one character each.
	multibyte := strings.Repeat("ü", MaxMessageChars)
	if _, err := Validate(multibyte); err != nil {
		t.Errorf("%d multibyte runes should pass: %v", MaxMessageChars, err)
	}
}

// ---------------------------------------------------------------------------
// Test: Empty and whitespace-only messages are rejected
// ---------------------------------------------------------------------------

func TestValidate_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t  "} {
		if _, err := Validate(input); err == nil {
			t.Errorf("input %q should be rejected", input)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: Invalid UTF-8 is rejected
// ---------------------------------------------------------------------------

func TestValidate_InvalidUTF8(t *testing.T) {
	if _, err := Validate("hi\xff\xfe"); err == nil {
		t.Error("invalid UTF-8 should be rejected")
	}
}

// ---------------------------------------------------------------------------
// Test: Wire shape uses the backend's field names
// ---------------------------------------------------------------------------

func TestMessage_WireShape(t *testing.T) {
	msg := Message{
		PlayerID:   "u1",
		PlayerName: "Ana",
		AvatarID:   "fox",
		Message:    "hello",
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"playerId", "playerName", "avatarId", "message", "timestamp"} {
		if _, ok := result[key]; !ok {
			t.Errorf("expected key %q in wire form, got %v", key, result)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: System messages omit the avatar field
// ---------------------------------------------------------------------------

func TestMessage_SystemOmitsAvatar(t *testing.T) {
	msg := Message{PlayerName: SystemSender, Message: "The game is starting", Timestamp: time.Now().UTC()}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), "avatarId") {
		t.Errorf("empty avatar should be omitted: %s", data)
	}
}
