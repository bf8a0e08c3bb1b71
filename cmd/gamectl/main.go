// Command gamectl publishes externally-triggered game events onto NATS, the
// same way the game-logic backend does. It exists for operators and local
// development: fire a vote result or game-start notice at a running relay
// without the full backend.
//
// Usage:
//
//	gamectl vote-completed <gameID> <result-json>
//	gamectl game-started <lobbyID> <gameID>
//
// The NATS server is taken from NATS_URL (default nats://localhost:4222).
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/society/relay/internal/messaging"
	"github.com/society/relay/internal/protocol"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.Name = "gamectl"
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsClient.Close()

	switch os.Args[1] {
	case "vote-completed":
		if len(os.Args) != 4 {
			usage()
		}
		gameID, payload := os.Args[2], []byte(os.Args[3])

		// Decode through the wire struct so schema mistakes surface here
		// instead of on every connected client.
		var result protocol.VoteResult
		if err := json.Unmarshal(payload, &result); err != nil {
			log.Fatalf("invalid vote result payload: %v", err)
		}
		data, err := json.Marshal(result)
		if err != nil {
			log.Fatalf("failed to encode vote result: %v", err)
		}

		if err := natsClient.PublishVoteCompleted(gameID, data); err != nil {
			log.Fatalf("publish failed: %v", err)
		}
		log.Printf("vote-completed published game=%s round=%d", gameID, result.RoundNumber)

	case "game-started":
		if len(os.Args) != 4 {
			usage()
		}
		lobbyID, gameID := os.Args[2], os.Args[3]

		data, err := json.Marshal(gameID)
		if err != nil {
			log.Fatalf("failed to encode game id: %v", err)
		}
		if err := natsClient.PublishGameStarted(lobbyID, data); err != nil {
			log.Fatalf("publish failed: %v", err)
		}
		log.Printf("game-started published lobby=%s game=%s", lobbyID, gameID)

	default:
		usage()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  gamectl vote-completed <gameID> <result-json>
  gamectl game-started <lobbyID> <gameID>
`)
	os.Exit(2)
}
