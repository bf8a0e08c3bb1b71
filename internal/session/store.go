// Package session mirrors per-connection relay state into Redis. The relay
// itself is stateless across restarts; the mirror exists so operators and
// sibling services can see who is online and which rooms they occupy, with
// TTL-based expiry as the safety net for crashed instances.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for all connection hashes.
	KeyPrefix = "relay:conn:"

	// TTL is the time-to-live for connection keys. Any live connection
	// refreshes it on activity; stale keys expire on their own.
	TTL = 1 * time.Hour
)

// Session is the mirrored state of one connection.
type Session struct {
	ID         string `redis:"id"`
	Name       string `redis:"name"`
	Avatar     string `redis:"avatar"`
	LobbyID    string `redis:"lobby_id"` // empty if not in a lobby room
	GameID     string `redis:"game_id"`  // empty if not in a game room
	Server     string `redis:"server"`   // which relay instance owns the connection
	CreatedAt  int64  `redis:"created_at"`
	LastActive int64  `redis:"last_active"`
}

// Store writes connection state to Redis.
type Store struct {
	client     *redis.Client
	serverName string
}

// NewStore connects to Redis and returns a ready store. serverName identifies
// this relay instance in the mirrored records.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Create stores a fresh connection record with the resolved identity.
func (s *Store) Create(ctx context.Context, connID, name, avatar string) error {
	key := KeyPrefix + connID
	now := time.Now().Unix()

	record := map[string]interface{}{
		"id":          connID,
		"name":        name,
		"avatar":      avatar,
		"lobby_id":    "",
		"game_id":     "",
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, record)
	pipe.Expire(ctx, key, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a connection record. Returns nil if not found.
func (s *Store) Get(ctx context.Context, connID string) (*Session, error) {
	key := KeyPrefix + connID
	var sess Session
	if err := s.client.HGetAll(ctx, key).Scan(&sess); err != nil {
		return nil, err
	}
	if sess.ID == "" {
		return nil, nil
	}
	return &sess, nil
}

// SetLobby records the lobby room the connection currently occupies. An empty
// lobbyID clears it.
func (s *Store) SetLobby(ctx context.Context, connID, lobbyID string) error {
	return s.touch(ctx, connID, "lobby_id", lobbyID)
}

// SetGame records the game room the connection currently occupies. An empty
// gameID clears it.
func (s *Store) SetGame(ctx context.Context, connID, gameID string) error {
	return s.touch(ctx, connID, "game_id", gameID)
}

// touch updates one field, bumps last_active, and refreshes the TTL.
func (s *Store) touch(ctx context.Context, connID, field, value string) error {
	key := KeyPrefix + connID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, field, value, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes a connection record.
func (s *Store) Delete(ctx context.Context, connID string) error {
	return s.client.Del(ctx, KeyPrefix+connID).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages
// (rate limiting shares the connection pool).
func (s *Store) Client() *redis.Client {
	return s.client
}
