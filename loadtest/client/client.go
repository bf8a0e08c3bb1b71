// Package client provides a reusable WebSocket load test client for the
// Society relay. It connects using gobwas/ws (the same library the server
// uses), speaks the event-envelope protocol including ack correlation, and
// tracks per-connection performance metrics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ---------------------------------------------------------------------------
// Protocol event names (local equivalents of internal/protocol constants)
// ---------------------------------------------------------------------------

// Client -> Server events.
const (
	EventLobbyJoin   = "lobby:join"
	EventLobbyLeave  = "lobby:leave"
	EventLobbyVote   = "lobby:vote"
	EventGameAction  = "game:action"
	EventJoinLobby   = "joinLobby"
	EventLeaveLobby  = "leaveLobby"
	EventSendMessage = "sendMessage"
	EventJoinGame    = "joinGame"
)

// Server -> Client events.
const (
	EventLobbyPresence   = "lobby:presence"
	EventLobbyVoteUpdate = "lobby:voteUpdate"
	EventGameUpdate      = "game:update"
	EventReceiveMessage  = "receiveMessage"
	EventGameStarted     = "gameStarted"
	EventVoteCompleted   = "voteCompleted"
	EventChatUsers       = "chat:users"
	EventChatUserJoined  = "chat:user_joined"
	EventChatUserLeft    = "chat:user_left"
	EventError           = "error"
	EventAck             = "ack"
)

// envelope mirrors the relay's wire frame.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID int64           `json:"ack,omitempty"`
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	FirstMsgLatency  time.Duration
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client represents a single simulated user connection to the relay. It
// manages the WebSocket lifecycle, dispatches incoming events to registered
// handlers, and correlates ack replies with the frames that requested them.
type Client struct {
	conn     net.Conn
	writeMu  sync.Mutex
	mu       sync.Mutex
	metrics  Metrics
	handlers map[string]func(json.RawMessage)

	nextAck int64
	acks    map[int64]chan string

	ready     chan struct{} // closed when the roster snapshot arrives
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	firstMsg  time.Time
}

// New creates a load test client connected to the relay. The identity is
// passed as handshake query parameters, the way the web clients do it. A
// background goroutine begins reading events immediately.
func New(ctx context.Context, baseURL, userID, name string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("id", userID)
	q.Set("name", name)
	u.RawQuery = q.Encode()

	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		handlers: make(map[string]func(json.RawMessage)),
		acks:     make(map[int64]chan string),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.metrics.ConnectLatency = time.Since(start)

	go c.readLoop()

	return c, nil
}

// Emit sends a fire-and-forget event. It is goroutine-safe.
func (c *Client) Emit(event string, payload interface{}) error {
	return c.send(envelope{Event: event}, payload, 0)
}

// EmitWithAck sends an event carrying an ack id and blocks until the relay's
// ack reply arrives or the context is cancelled. It returns the ack status
// string.
func (c *Client) EmitWithAck(ctx context.Context, event string, payload interface{}) (string, error) {
	ackID := atomic.AddInt64(&c.nextAck, 1)
	ch := make(chan string, 1)

	c.mu.Lock()
	c.acks[ackID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.acks, ackID)
		c.mu.Unlock()
	}()

	if err := c.send(envelope{Event: event}, payload, ackID); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", fmt.Errorf("connection closed before ack")
	case status := <-ch:
		return status, nil
	}
}

func (c *Client) send(env envelope, payload interface{}, ackID int64) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	env.Data = data
	env.AckID = ackID

	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	c.metrics.MessagesSent++
	c.mu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpText, frame)
}

// On registers a handler for a server event. The handler receives the raw
// payload of the envelope. Handlers run on the read loop goroutine, so they
// should not block. Registering a second handler for the same event replaces
// the first.
func (c *Client) On(event string, handler func(json.RawMessage)) {
	c.mu.Lock()
	c.handlers[event] = handler
	c.mu.Unlock()
}

// WaitReady blocks until the relay has sent the roster snapshot, which is the
// first frame every new connection receives, or the context is cancelled.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("connection closed before roster snapshot")
	case <-c.ready:
		return nil
	}
}

// Close closes the connection and stops the read loop. Safe to call multiple
// times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// readLoop continuously reads frames from the relay and dispatches them to
// registered handlers. It runs until the connection is closed or an
// unrecoverable error occurs.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				// Intentional close; not an error.
				return
			default:
			}
			c.mu.Lock()
			c.metrics.Errors++
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		if c.firstMsg.IsZero() {
			c.firstMsg = time.Now()
			c.metrics.FirstMsgLatency = c.metrics.ConnectLatency
		}
		c.metrics.MessagesReceived++
		c.mu.Unlock()

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Event {
		case EventChatUsers:
			c.readyOnce.Do(func() { close(c.ready) })
		case EventAck:
			var status string
			_ = json.Unmarshal(env.Data, &status)
			c.mu.Lock()
			ch := c.acks[env.AckID]
			c.mu.Unlock()
			if ch != nil {
				select {
				case ch <- status:
				default:
				}
			}
		}

		c.mu.Lock()
		handler := c.handlers[env.Event]
		c.mu.Unlock()
		if handler != nil {
			handler(env.Data)
		}
	}
}
