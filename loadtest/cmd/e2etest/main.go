// Package main implements a standalone end-to-end integration test for the
// Society relay. It validates the full client journey against a running
// relay: health checks, connect handshake and roster events, lobby chat with
// presence, vote fan-out, game room membership, and error replies.
//
// Usage:
//
//	go run ./cmd/e2etest/ [-url ws://localhost:9092/ws] [-api http://localhost:9092] [-timeout 60s]
//
// Exit code 0 if all required scenarios pass, 1 if any fail.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/society/relay/loadtest/client"
)

// ---------------------------------------------------------------------------
// Result tracking
// ---------------------------------------------------------------------------

// resultKind categorises a scenario outcome.
type resultKind int

const (
	resultPass resultKind = iota
	resultFail
	resultInfo // optional / non-fatal
)

// scenarioResult holds the outcome of a single test scenario.
type scenarioResult struct {
	name   string
	kind   resultKind
	detail string
}

func (r scenarioResult) tag() string {
	switch r.kind {
	case resultPass:
		return "PASS"
	case resultFail:
		return "FAIL"
	default:
		return "INFO"
	}
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	wsURL := flag.String("url", "ws://localhost:9092/ws", "Relay WebSocket URL")
	apiBase := flag.String("api", "http://localhost:9092", "HTTP base URL")
	timeout := flag.Duration("timeout", 60*time.Second, "Global test timeout")
	flag.Parse()

	fmt.Println("=== Relay E2E Integration Test ===")
	fmt.Printf("Server: %s\n\n", *wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var results []scenarioResult

	results = append(results, scenario1HealthCheck(ctx, *apiBase))
	results = append(results, scenario2ConnectRoster(ctx, *wsURL))
	results = append(results, scenario3LobbyChat(ctx, *wsURL))
	results = append(results, scenario4RoomSwitch(ctx, *wsURL))
	results = append(results, scenario5VoteFanOut(ctx, *wsURL))
	results = append(results, scenario6GameRoom(ctx, *wsURL))
	results = append(results, scenario7ErrorReplies(ctx, *wsURL))

	// -----------------------------------------------------------------------
	// Summary
	// -----------------------------------------------------------------------
	fmt.Println()
	passed := 0
	failed := 0
	info := 0
	for _, r := range results {
		fmt.Printf("[%s] %s", r.tag(), r.name)
		if r.detail != "" {
			fmt.Printf(" (%s)", r.detail)
		}
		fmt.Println()

		switch r.kind {
		case resultPass:
			passed++
		case resultFail:
			failed++
		case resultInfo:
			info++
		}
	}

	requiredTotal := passed + failed
	fmt.Printf("\n=== Results: %d/%d passed", passed, requiredTotal)
	if info > 0 {
		fmt.Printf(", %d info", info)
	}
	fmt.Println(" ===")

	if failed > 0 {
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Scenario 1: Health Check
// ---------------------------------------------------------------------------

func scenario1HealthCheck(ctx context.Context, apiBase string) scenarioResult {
	name := "Scenario 1: Health Check"

	if err := httpGetExpectOK(ctx, apiBase+"/health"); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("/health: %v", err)}
	}

	metricsBody, err := httpGetBody(ctx, apiBase+"/metrics")
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("/metrics: %v", err)}
	}
	if !strings.Contains(string(metricsBody), "relay_connections_total") {
		return scenarioResult{name, resultFail, "/metrics: missing relay_connections_total"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 2: Connect handshake and roster events
// ---------------------------------------------------------------------------

func scenario2ConnectRoster(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 2: Connect and Roster"

	a, err := client.New(ctx, wsURL, "e2e-a", "Alice")
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("connect a: %v", err)}
	}
	defer a.Close()
	if err := a.WaitReady(ctx); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("roster snapshot a: %v", err)}
	}

	// The first client should be told when the second arrives.
	joinedCh := make(chan string, 1)
	a.On(client.EventChatUserJoined, func(data json.RawMessage) {
		var u struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(data, &u) == nil {
			select {
			case joinedCh <- u.ID:
			default:
			}
		}
	})

	b, err := client.New(ctx, wsURL, "e2e-b", "Bob")
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("connect b: %v", err)}
	}
	defer b.Close()
	if err := b.WaitReady(ctx); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("roster snapshot b: %v", err)}
	}

	select {
	case id := <-joinedCh:
		if id != "e2e-b" {
			return scenarioResult{name, resultFail, fmt.Sprintf("expected join announce for e2e-b, got %q", id)}
		}
	case <-time.After(5 * time.Second):
		return scenarioResult{name, resultFail, "no chat:user_joined within 5s"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 3: Lobby chat with presence and acks
// ---------------------------------------------------------------------------

func scenario3LobbyChat(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 3: Lobby Chat"

	a, b, res := connectPair(ctx, wsURL, name, "chat")
	if res != nil {
		return *res
	}
	defer a.Close()
	defer b.Close()

	presenceCh := make(chan string, 4)
	a.On(client.EventLobbyPresence, func(data json.RawMessage) {
		var p struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &p) == nil {
			presenceCh <- p.Type + ":" + p.ID
		}
	})

	status, err := a.EmitWithAck(ctx, client.EventJoinLobby, "e2e-lobby-chat")
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("joinLobby a: %v", err)}
	}
	if status != "Joined lobby chat successfully" {
		return scenarioResult{name, resultFail, fmt.Sprintf("unexpected ack: %q", status)}
	}
	if _, err := b.EmitWithAck(ctx, client.EventJoinLobby, "e2e-lobby-chat"); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("joinLobby b: %v", err)}
	}

	// A sees B's join presence.
	select {
	case p := <-presenceCh:
		if !strings.HasPrefix(p, "join:") {
			return scenarioResult{name, resultFail, fmt.Sprintf("expected join presence, got %q", p)}
		}
	case <-time.After(5 * time.Second):
		return scenarioResult{name, resultFail, "no join presence within 5s"}
	}

	// B sends a message; both sides receive it (self-echo on for A's copy of
	// its own sends, and room fan-out for B's message to A).
	msgCh := make(chan string, 2)
	a.On(client.EventReceiveMessage, func(data json.RawMessage) {
		var m struct {
			PlayerID string `json:"playerId"`
			Message  string `json:"message"`
		}
		if json.Unmarshal(data, &m) == nil {
			msgCh <- m.PlayerID + ":" + m.Message
		}
	})

	if err := b.Emit(client.EventSendMessage, map[string]string{"message": "hello from b"}); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("sendMessage: %v", err)}
	}

	select {
	case got := <-msgCh:
		if got != "e2e-chat-b:hello from b" {
			return scenarioResult{name, resultFail, fmt.Sprintf("unexpected message %q", got)}
		}
	case <-time.After(5 * time.Second):
		return scenarioResult{name, resultFail, "message not relayed within 5s"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 4: Presence on room switch
// ---------------------------------------------------------------------------

func scenario4RoomSwitch(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 4: Room Switch Presence"

	a, b, res := connectPair(ctx, wsURL, name, "switch")
	if res != nil {
		return *res
	}
	defer a.Close()
	defer b.Close()

	if _, err := a.EmitWithAck(ctx, client.EventJoinLobby, "e2e-switch-1"); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("joinLobby a: %v", err)}
	}
	if _, err := b.EmitWithAck(ctx, client.EventJoinLobby, "e2e-switch-1"); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("joinLobby b: %v", err)}
	}

	leaveCh := make(chan string, 2)
	b.On(client.EventLobbyPresence, func(data json.RawMessage) {
		var p struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &p) == nil && p.Type == "leave" {
			leaveCh <- p.ID
		}
	})

	// A moves to a different lobby; B should see a leave in the old room.
	if _, err := a.EmitWithAck(ctx, client.EventJoinLobby, "e2e-switch-2"); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("joinLobby switch: %v", err)}
	}

	select {
	case id := <-leaveCh:
		if id != "e2e-switch-a" {
			return scenarioResult{name, resultFail, fmt.Sprintf("expected leave for e2e-switch-a, got %q", id)}
		}
	case <-time.After(5 * time.Second):
		return scenarioResult{name, resultFail, "no leave presence within 5s"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 5: Vote fan-out
// ---------------------------------------------------------------------------

func scenario5VoteFanOut(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 5: Vote Fan-Out"

	a, b, res := connectPair(ctx, wsURL, name, "vote")
	if res != nil {
		return *res
	}
	defer a.Close()
	defer b.Close()

	for _, c := range []*client.Client{a, b} {
		if _, err := c.EmitWithAck(ctx, client.EventJoinLobby, "e2e-vote"); err != nil {
			return scenarioResult{name, resultFail, fmt.Sprintf("joinLobby: %v", err)}
		}
	}

	voteCh := make(chan string, 2)
	b.On(client.EventLobbyVoteUpdate, func(data json.RawMessage) {
		var v struct {
			UserID string `json:"userId"`
			Choice string `json:"choice"`
		}
		if json.Unmarshal(data, &v) == nil {
			voteCh <- v.UserID + ":" + v.Choice
		}
	})

	if err := a.Emit(client.EventLobbyVote, map[string]string{"lobbyId": "e2e-vote", "choice": "2"}); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("lobby:vote: %v", err)}
	}

	select {
	case got := <-voteCh:
		if got != "e2e-vote-a:2" {
			return scenarioResult{name, resultFail, fmt.Sprintf("unexpected vote update %q", got)}
		}
	case <-time.After(5 * time.Second):
		return scenarioResult{name, resultFail, "no vote update within 5s"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 6: Game room membership
// ---------------------------------------------------------------------------

func scenario6GameRoom(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 6: Game Room"

	a, err := client.New(ctx, wsURL, "e2e-game-a", "GameA")
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("connect: %v", err)}
	}
	defer a.Close()
	if err := a.WaitReady(ctx); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("roster snapshot: %v", err)}
	}

	status, err := a.EmitWithAck(ctx, client.EventJoinGame, "e2e-game-42")
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("joinGame: %v", err)}
	}
	if status != "Joined game room successfully" {
		return scenarioResult{name, resultFail, fmt.Sprintf("unexpected ack: %q", status)}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 7: Error replies
// ---------------------------------------------------------------------------

func scenario7ErrorReplies(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 7: Error Replies"

	a, err := client.New(ctx, wsURL, "e2e-err-a", "ErrA")
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("connect: %v", err)}
	}
	defer a.Close()
	if err := a.WaitReady(ctx); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("roster snapshot: %v", err)}
	}

	errCh := make(chan string, 1)
	a.On(client.EventError, func(data json.RawMessage) {
		var msg string
		if json.Unmarshal(data, &msg) == nil {
			select {
			case errCh <- msg:
			default:
			}
		}
	})

	// Sending a chat message without a lobby must produce an error event.
	if err := a.Emit(client.EventSendMessage, map[string]string{"message": "orphan"}); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("sendMessage: %v", err)}
	}

	select {
	case msg := <-errCh:
		if msg != "You are not in a lobby" {
			return scenarioResult{name, resultFail, fmt.Sprintf("unexpected error %q", msg)}
		}
	case <-time.After(5 * time.Second):
		return scenarioResult{name, resultFail, "no error event within 5s"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// connectPair connects two ready clients with ids "e2e-<tag>-a" and
// "e2e-<tag>-b". On failure it returns a non-nil result to report.
func connectPair(ctx context.Context, wsURL, name, tag string) (*client.Client, *client.Client, *scenarioResult) {
	a, err := client.New(ctx, wsURL, "e2e-"+tag+"-a", tag+"-A")
	if err != nil {
		res := scenarioResult{name, resultFail, fmt.Sprintf("connect a: %v", err)}
		return nil, nil, &res
	}
	b, err := client.New(ctx, wsURL, "e2e-"+tag+"-b", tag+"-B")
	if err != nil {
		a.Close()
		res := scenarioResult{name, resultFail, fmt.Sprintf("connect b: %v", err)}
		return nil, nil, &res
	}
	for _, c := range []*client.Client{a, b} {
		if err := c.WaitReady(ctx); err != nil {
			a.Close()
			b.Close()
			res := scenarioResult{name, resultFail, fmt.Sprintf("roster snapshot: %v", err)}
			return nil, nil, &res
		}
	}
	return a, b, nil
}

func httpGetExpectOK(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func httpGetBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
