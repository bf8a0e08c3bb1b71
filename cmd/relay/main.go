package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/society/relay/internal/bridge"
	"github.com/society/relay/internal/messaging"
	"github.com/society/relay/internal/metrics"
	"github.com/society/relay/internal/protocol"
	"github.com/society/relay/internal/ratelimit"
	"github.com/society/relay/internal/relay"
	"github.com/society/relay/internal/session"
	"github.com/society/relay/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	relayConfig := relay.DefaultConfig()
	if v := os.Getenv("CHAT_ECHO_SELF"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			relayConfig.EchoSelf = b
		}
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "relay-1"
	}

	sessionStore, err := session.NewStore(redisAddr, serverName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	limiter := ratelimit.NewLimiter(sessionStore.Client())

	log.Printf("Society relay starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  server_name:     %s", serverName)
	log.Printf("  echo_self:       %v", relayConfig.EchoSelf)

	dispatcher := ws.NewDispatcher()
	server := ws.NewServer(config, dispatcher.Dispatch)
	server.Handle("/metrics", metrics.Handler())

	svc := relay.NewService(relayConfig, server, sessionStore, limiter)

	// Inbound event routing. Each handler validates its own payload and
	// silently no-ops on malformed input.
	register := func(event string, h func(connID string, data json.RawMessage, ackID int64)) {
		dispatcher.Register(event, func(conn *ws.Connection, data json.RawMessage, ackID int64) {
			h(conn.ID, data, ackID)
		})
	}
	register(protocol.EventLobbyJoin, svc.OnLobbyJoin)
	register(protocol.EventLobbyLeave, svc.OnLobbyLeave)
	register(protocol.EventLobbyVote, svc.OnLobbyVote)
	register(protocol.EventGameAction, svc.OnGameAction)
	register(protocol.EventJoinLobby, svc.OnJoinLobby)
	register(protocol.EventLeaveLobby, svc.OnLeaveLobby)
	register(protocol.EventSendMessage, svc.OnSendMessage)
	register(protocol.EventJoinGame, svc.OnJoinGame)

	// Connection lifecycle: identity registration and full room cleanup.
	server.SetOnConnect(func(conn *ws.Connection) {
		svc.HandleConnect(conn.ID, conn.Handshake)
	})
	server.SetOnDisconnect(svc.HandleDisconnect)

	// Per-IP connect throttling (fail-open on Redis errors).
	server.SetConnectGate(func(remoteIP string) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ok, _ := limiter.Allow(ctx, remoteIP, ratelimit.RuleConnect)
		return ok
	})

	// Game bridge: externally-triggered events arriving over NATS.
	gameBridge := bridge.New(svc, natsClient)
	if err := gameBridge.Start(); err != nil {
		log.Fatalf("failed to start game bridge: %v", err)
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		natsClient.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := sessionStore.Close(); err != nil {
			log.Printf("session store close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
