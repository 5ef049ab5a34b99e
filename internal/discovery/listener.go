package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/udpsearch/internal/logging"
	"github.com/muurk/udpsearch/internal/protocol"
)

// ListenerState is the lifecycle stage of a Listener
type ListenerState int32

const (
	StateCreated ListenerState = iota
	StateReady
	StateReceiving
	StateStopped
)

// String returns the state name
func (s ListenerState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateReceiving:
		return "receiving"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("ListenerState(%d)", int32(s))
	}
}

// PacketListenFunc opens a packet socket. net.ListenPacket satisfies it.
type PacketListenFunc func(network, address string) (net.PacketConn, error)

// Listener receives announces on the client listen port.
//
// The receive loop runs on its own goroutine and is the only writer of the
// result list. Stop closes the socket, waits for the loop to exit and then
// hands the list to the caller.
type Listener struct {
	port   int
	listen PacketListenFunc

	state    atomic.Int32
	started  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once

	ready     chan error    // receives the bind outcome once
	found     chan struct{} // closed on the first valid announce
	foundOnce sync.Once
	done      chan struct{} // closed when the loop goroutine exits

	mu      sync.Mutex
	conn    net.PacketConn
	results []*ServerInfo
	err     error
}

// NewListener creates a listener for the given UDP port. Port 0 binds an
// ephemeral port; use Port after Start to learn it.
func NewListener(port int) *Listener {
	return &Listener{
		port:   port,
		listen: net.ListenPacket,
		ready:  make(chan error, 1),
		found:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the receive goroutine and blocks until the socket is bound.
// It returns a bind error if the port cannot be opened, or an interrupted
// error if ctx is cancelled first. Start may only be called once.
func (l *Listener) Start(ctx context.Context) error {
	if l.stopping.Load() || !l.started.CompareAndSwap(false, true) {
		return fmt.Errorf("listener already started or stopped (state %s)", l.State())
	}

	go l.run()

	select {
	case err := <-l.ready:
		return err
	case <-ctx.Done():
		l.Stop()
		return newInterruptedError("waiting for the listener to bind", ctx.Err())
	}
}

// run binds the socket, reports readiness and receives until stopped
func (l *Listener) run() {
	defer close(l.done)

	conn, err := l.listen("udp4", fmt.Sprintf(":%d", l.port))
	if err != nil {
		bindErr := ClassifySocketError(ErrTypeBind, err, l.port)
		logging.Error("Listener bind failed",
			zap.Int("port", l.port),
			zap.Error(err),
		)
		l.mu.Lock()
		l.err = bindErr
		l.mu.Unlock()
		l.state.Store(int32(StateStopped))
		l.ready <- bindErr
		return
	}

	l.mu.Lock()
	if l.stopping.Load() {
		l.mu.Unlock()
		_ = conn.Close()
		l.ready <- nil
		return
	}
	l.conn = conn
	l.mu.Unlock()

	l.state.Store(int32(StateReady))
	logging.LogSearchEvent("listener_ready", zap.String("local_addr", conn.LocalAddr().String()))
	l.ready <- nil

	l.receive(conn)
}

// receive is the blocking loop. It exits when the socket is closed by Stop
// or on a genuine receive error, which is recorded for Err.
func (l *Listener) receive(conn net.PacketConn) {
	defer conn.Close()

	l.state.CompareAndSwap(int32(StateReady), int32(StateReceiving))
	buf := make([]byte, protocol.MaxPacketSize)

	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if l.stopping.Load() || isClosedConnError(err) {
				logging.Debug("Listener receive loop stopped", zap.Int("port", l.port))
				return
			}

			recvErr := ClassifySocketError(ErrTypeReceive, err, l.port)
			logging.Warn("Listener receive failed", zap.Error(err))
			l.mu.Lock()
			l.err = recvErr
			l.mu.Unlock()
			return
		}

		l.handleDatagram(buf[:n], addr)
	}
}

// handleDatagram validates one datagram and records it if it is an announce
func (l *Listener) handleDatagram(data []byte, addr net.Addr) {
	remote := ""
	if addr != nil {
		remote = addr.String()
	}

	announce, err := protocol.ParseAnnounce(data)
	logging.LogDatagram("received", remote, data, err)
	if err != nil {
		return
	}

	info := &ServerInfo{
		Port:         announce.ServerPort,
		Address:      addrIP(addr),
		SerialNumber: announce.Serial,
		Source:       SourceBroadcast,
		DiscoveredAt: time.Now(),
	}

	l.mu.Lock()
	l.results = append(l.results, info)
	l.mu.Unlock()

	logging.Info("Server announced",
		zap.String("remote_addr", remote),
		zap.Int("server_port", info.Port),
		zap.String("serial", info.SerialNumber),
	)

	l.foundOnce.Do(func() { close(l.found) })
}

// Found is closed when the first valid announce has been recorded
func (l *Listener) Found() <-chan struct{} {
	return l.found
}

// Port returns the bound port, or the configured port before binding
func (l *Listener) Port() int {
	if addr, ok := l.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return l.port
}

// LocalAddr returns the bound address, or nil before binding
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// State returns the current lifecycle state
func (l *Listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// Results returns a snapshot of the announces received so far, in arrival order
func (l *Listener) Results() []*ServerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*ServerInfo(nil), l.results...)
}

// Err returns the bind or receive error that ended the loop, if any.
// It is nil when the loop ended because of Stop.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stop closes the socket, waits for the receive loop to exit and returns every
// announce received. Calling Stop again returns the same results.
func (l *Listener) Stop() []*ServerInfo {
	l.stopOnce.Do(func() {
		l.stopping.Store(true)

		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}

		if l.started.Load() {
			<-l.done
		}
		l.state.Store(int32(StateStopped))
	})

	return l.Results()
}
