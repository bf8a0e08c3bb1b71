package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/society/relay/loadtest/client"
	"github.com/society/relay/loadtest/stats"
)

// lobbyUser bundles a connected client with its identity and assigned room.
type lobbyUser struct {
	c      *client.Client
	userID string
	lobby  string
}

// runLobby implements the lobby lifecycle load test. Users are spread across
// a configurable number of lobby rooms; each user joins its room (measuring
// the ack round trip), then chats and votes for the test duration. Message
// latency is measured from sendMessage to the relay's echo of the same
// message back to the sender, so the relay must be running with self-echo
// enabled (the default).
func runLobby(args []string) {
	fs := flag.NewFlagSet("lobby", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:9092/ws", "Relay WebSocket URL")
	rooms := fs.Int("rooms", 20, "Number of lobby rooms")
	perRoom := fs.Int("users-per-room", 5, "Users per lobby room")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for connection creation")
	duration := fs.Duration("duration", 30*time.Second, "How long the chat/vote phase runs")
	msgInterval := fs.Duration("msg-interval", 2*time.Second, "Interval between chat messages per user")
	voteInterval := fs.Duration("vote-interval", 5*time.Second, "Interval between votes per user")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	metricsURL := fs.String("metrics-url", "http://localhost:9092/metrics", "Prometheus metrics endpoint URL")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	total := *rooms * *perRoom
	fmt.Printf("Lobby test: %d rooms x %d users (%d clients) to %s (ramp=%s, duration=%s)\n",
		*rooms, *perRoom, total, *url, *rampUp, *duration)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	var mu sync.Mutex
	users := make([]*lobbyUser, 0, total)

	// -----------------------------------------------------------------------
	// Phase 1 — Connect all users
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 1: Connect ---")

	interval := *rampUp / time.Duration(total)
	if interval <= 0 {
		interval = time.Millisecond
	}

	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup
	rampTicker := time.NewTicker(interval)

	launched := 0
connectLoop:
	for launched < total {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during connect phase.")
			break connectLoop
		case <-rampTicker.C:
			idx := launched
			launched++
			wg.Add(1)
			sem <- struct{}{}

			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				defer cancel()

				userID := fmt.Sprintf("lt-%d", idx)
				c, err := client.New(connCtx, *url, userID, userID)
				if err != nil {
					collector.AddError()
					return
				}
				if err := c.WaitReady(connCtx); err != nil {
					collector.AddError()
					c.Close()
					return
				}
				collector.AddConnect(c.GetMetrics().ConnectLatency)

				mu.Lock()
				users = append(users, &lobbyUser{
					c:      c,
					userID: userID,
					lobby:  fmt.Sprintf("load-lobby-%d", idx%*rooms),
				})
				mu.Unlock()
			}()
		}
	}
	rampTicker.Stop()
	wg.Wait()

	fmt.Printf("Connected %d/%d clients (%d errors)\n",
		collector.ConnectionCount(), total, collector.ErrorCount())

	// -----------------------------------------------------------------------
	// Phase 2 — Join lobby rooms
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 2: Join rooms ---")

	var joined atomic.Int64
	mu.Lock()
	joinTargets := make([]*lobbyUser, len(users))
	copy(joinTargets, users)
	mu.Unlock()

	for _, u := range joinTargets {
		u := u
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			start := time.Now()
			if _, err := u.c.EmitWithAck(joinCtx, client.EventJoinLobby, u.lobby); err != nil {
				collector.AddError()
				return
			}
			collector.AddAckLatency(time.Since(start))

			// Announce presence the way the lobby UI does.
			_ = u.c.Emit(client.EventLobbyJoin, map[string]string{
				"lobbyId": u.lobby,
				"name":    u.userID,
			})
			joined.Add(1)
		}()
	}
	wg.Wait()
	fmt.Printf("Joined %d/%d clients to %d rooms\n", joined.Load(), total, *rooms)

	// -----------------------------------------------------------------------
	// Phase 3 — Chat and vote
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 3: Chat and vote ---")

	var msgSent, msgRecv atomic.Int64

	phaseCtx, phaseCancel := context.WithTimeout(ctx, *duration)
	defer phaseCancel()

	for _, u := range joinTargets {
		u := u

		// Echo-based latency: messages carry the send time, and the relay
		// echoes them back to the sender.
		u.c.On(client.EventReceiveMessage, func(data json.RawMessage) {
			var msg struct {
				PlayerID string `json:"playerId"`
				Message  string `json:"message"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				return
			}
			msgRecv.Add(1)
			if msg.PlayerID != u.userID {
				return
			}
			if ts, ok := parseEchoTimestamp(msg.Message); ok {
				collector.AddMsgLatency(time.Since(ts))
			}
		})

		wg.Add(1)
		go func() {
			defer wg.Done()

			msgTicker := time.NewTicker(jitter(*msgInterval))
			voteTicker := time.NewTicker(jitter(*voteInterval))
			defer msgTicker.Stop()
			defer voteTicker.Stop()

			for {
				select {
				case <-phaseCtx.Done():
					return
				case <-msgTicker.C:
					text := fmt.Sprintf("lt:%d hello from %s", time.Now().UnixNano(), u.userID)
					if err := u.c.Emit(client.EventSendMessage, map[string]string{"message": text}); err != nil {
						collector.AddError()
						return
					}
					msgSent.Add(1)
				case <-voteTicker.C:
					choice := strconv.Itoa(1 + rand.Intn(3))
					_ = u.c.Emit(client.EventLobbyVote, map[string]string{
						"lobbyId": u.lobby,
						"choice":  choice,
					})
				}
			}
		}()
	}

	// Progress reporting during the chat phase.
	statusTicker := time.NewTicker(5 * time.Second)
statusLoop:
	for {
		select {
		case <-phaseCtx.Done():
			break statusLoop
		case <-statusTicker.C:
			fmt.Printf("  [chat] sent: %d  received: %d  errors: %d\n",
				msgSent.Load(), msgRecv.Load(), collector.ErrorCount())
		}
	}
	statusTicker.Stop()
	wg.Wait()

	fmt.Printf("Chat phase complete: %d sent, %d received\n", msgSent.Load(), msgRecv.Load())

	// -----------------------------------------------------------------------
	// Phase 4 — Leave and cleanup
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 4: Cleanup ---")

	for _, u := range joinTargets {
		leaveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, _ = u.c.EmitWithAck(leaveCtx, client.EventLeaveLobby, "")
		cancel()
		u.c.Close()
	}
	fmt.Println("All connections closed.")

	scraper.Stop()
	collector.Report()
}

// parseEchoTimestamp extracts the nanosecond send time from a load test
// message ("lt:<nanos> ...").
func parseEchoTimestamp(text string) (time.Time, bool) {
	if !strings.HasPrefix(text, "lt:") {
		return time.Time{}, false
	}
	rest := text[len("lt:"):]
	if idx := strings.IndexByte(rest, ' '); idx != -1 {
		rest = rest[:idx]
	}
	nanos, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

// jitter spreads ticker intervals so the clients do not fire in lockstep.
func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
