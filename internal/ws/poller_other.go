//go:build !linux

package ws

import (
	"net"
	"sync"
	"syscall"
)

// Poller provides a goroutine-per-connection fallback for non-Linux
// platforms. On Linux this is replaced by the real epoll implementation. The
// fallback allows development on macOS/Windows without the epoll
// optimization.
type Poller struct {
	mu      sync.RWMutex
	conns   map[net.Conn]struct{}
	readyCh chan net.Conn // receives connections with pending data
	done    chan struct{}
}

// NewPoller creates a fallback poller that uses goroutines to monitor each
// connection for incoming data.
func NewPoller() (*Poller, error) {
	return &Poller{
		conns:   make(map[net.Conn]struct{}),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add registers a connection by spawning a goroutine that waits for read
// readiness. When data arrives, the connection is sent to the ready channel
// for processing by Wait.
func (p *Poller) Add(conn net.Conn) error {
	p.mu.Lock()
	p.conns[conn] = struct{}{}
	p.mu.Unlock()

	go p.monitor(conn)
	return nil
}

// monitor blocks until the connection becomes readable, using the runtime
// poller via syscall.RawConn so no payload bytes are consumed. It signals
// readiness until the connection is removed or the poller is closed.
func (p *Poller) monitor(conn net.Conn) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return
	}

	for {
		p.mu.RLock()
		_, tracked := p.conns[conn]
		p.mu.RUnlock()
		if !tracked {
			return
		}

		// Wait exactly one readiness cycle: the first callback returns false
		// to park on the runtime poller, the second reports readiness.
		waited := false
		if err := raw.Read(func(fd uintptr) bool {
			if !waited {
				waited = true
				return false
			}
			return true
		}); err != nil {
			// Closed or errored; signal once so the read path observes it.
			select {
			case p.readyCh <- conn:
			case <-p.done:
			}
			return
		}

		select {
		case p.readyCh <- conn:
		case <-p.done:
			return
		}
	}
}

// Remove unregisters a connection from the fallback poller.
func (p *Poller) Remove(conn net.Conn) error {
	p.mu.Lock()
	delete(p.conns, conn)
	p.mu.Unlock()
	return nil
}

// Wait blocks until at least one connection is ready for reading. It collects
// all currently ready connections from the channel and returns them.
func (p *Poller) Wait() ([]net.Conn, error) {
	select {
	case <-p.done:
		return nil, net.ErrClosed
	case first := <-p.readyCh:
		conns := []net.Conn{first}

		// Drain any additional ready connections without blocking.
		for {
			select {
			case conn := <-p.readyCh:
				conns = append(conns, conn)
			default:
				return conns, nil
			}
		}
	}
}

// Close shuts down the fallback poller.
func (p *Poller) Close() error {
	close(p.done)
	p.mu.Lock()
	p.conns = nil
	p.mu.Unlock()
	return nil
}

// socketFD is a no-op on non-Linux platforms since the goroutine-based
// fallback does not track file descriptors.
func socketFD(conn net.Conn) int {
	return -1
}
