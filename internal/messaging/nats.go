// Package messaging provides a NATS client wrapper for the relay's game-event
// ingress. The game-logic backend publishes vote and lifecycle events onto
// per-room subjects; every relay instance subscribes with a wildcard and fans
// the events out to its locally connected members.
package messaging

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns. The final token is the room id the event targets.
const (
	SubjectVoteCompleted = "game.vote_completed" // + .<game_id>
	SubjectGameStarted   = "game.started"        // + .<lobby_id>
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "relay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats: disconnected: %v", err)
			} else {
				log.Printf("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("nats: connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("nats: connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishVoteCompleted publishes an encoded vote result to the game's subject.
func (c *NATSClient) PublishVoteCompleted(gameID string, data []byte) error {
	return c.conn.Publish(SubjectVoteCompleted+"."+gameID, data)
}

// PublishGameStarted publishes an encoded game-started notice to the lobby's
// subject.
func (c *NATSClient) PublishGameStarted(lobbyID string, data []byte) error {
	return c.conn.Publish(SubjectGameStarted+"."+lobbyID, data)
}

// SubscribeVoteCompleted subscribes to vote-completed events for all games.
// The handler receives the game id extracted from the subject and the raw
// payload.
func (c *NATSClient) SubscribeVoteCompleted(handler func(gameID string, data []byte)) error {
	return c.subscribeWildcard(SubjectVoteCompleted, handler)
}

// SubscribeGameStarted subscribes to game-started events for all lobbies.
// The handler receives the lobby id extracted from the subject and the raw
// payload.
func (c *NATSClient) SubscribeGameStarted(handler func(lobbyID string, data []byte)) error {
	return c.subscribeWildcard(SubjectGameStarted, handler)
}

// subscribeWildcard subscribes to prefix.> and hands the final subject token
// to the handler as the room id. Messages on malformed subjects are dropped.
func (c *NATSClient) subscribeWildcard(prefix string, handler func(id string, data []byte)) error {
	subject := prefix + ".>"
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		id := strings.TrimPrefix(msg.Subject, prefix+".")
		if id == "" || id == msg.Subject {
			return
		}
		handler(id, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("nats: drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("nats: connection drain: %v", err)
	}

	log.Printf("nats: client closed")
}
