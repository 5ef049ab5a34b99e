package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/udpsearch/internal/logging"
	"github.com/muurk/udpsearch/internal/protocol"
)

// Delay between failed reads, doubled up to maxReadBackoff
const (
	minReadBackoff = 5 * time.Millisecond
	maxReadBackoff = time.Second
)

// Config holds the responder configuration
type Config struct {
	Host        string // Bind address (empty = all interfaces)
	Port        int    // Discovery port requests arrive on (0 = ephemeral)
	ServicePort int    // Port announced to clients
	Serial      string // Serial number announced to clients
	Advertise   bool   // Also register the service over mDNS
	Instance    string // mDNS instance name (default: "udpsearch-<serial>")
}

// Server answers discovery requests with an announce
type Server struct {
	config   *Config
	announce []byte // prebuilt reply, identical for every client

	mu       sync.Mutex
	conn     net.PacketConn
	mdns     *zeroconf.Server
	wg       sync.WaitGroup
	closing  atomic.Bool
	replies  atomic.Int64
	shutdown sync.Once
}

// New validates the configuration and prebuilds the announce
func New(config *Config) (*Server, error) {
	if config == nil {
		return nil, errors.New("server config is required")
	}

	announce, err := protocol.BuildAnnounce(config.ServicePort, config.Serial)
	if err != nil {
		return nil, fmt.Errorf("invalid announce configuration: %w", err)
	}

	if config.Port < 0 || config.Port > 65535 {
		return nil, fmt.Errorf("discovery port %d out of range", config.Port)
	}

	return &Server{
		config:   config,
		announce: announce,
	}, nil
}

// Listen binds the discovery port and starts answering in the background.
// When Advertise is set the service is also registered over mDNS; a failed
// registration is logged and does not stop the broadcast responder.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))

	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	logging.Info("Responder listening for discovery requests",
		zap.String("addr", conn.LocalAddr().String()),
		zap.Int("service_port", s.config.ServicePort),
		zap.String("serial", s.config.Serial),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serve(conn)
	}()

	if s.config.Advertise {
		if err := s.register(); err != nil {
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		}
	}

	return nil
}

// Run listens and blocks until ctx is cancelled, then shuts down
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	<-ctx.Done()
	logging.Info("Shutdown requested, stopping responder...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// serve reads requests until the socket is closed
func (s *Server) serve(conn net.PacketConn) {
	buf := make([]byte, protocol.MaxPacketSize)

	var backoff time.Duration
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			// Back off on repeated failures, reset by the next good read
			if backoff == 0 {
				backoff = minReadBackoff
			} else {
				backoff *= 2
			}
			if backoff > maxReadBackoff {
				backoff = maxReadBackoff
			}
			logging.Error("Failed to read discovery request",
				zap.Error(err),
				zap.Duration("retry_in", backoff),
			)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.handleRequest(conn, buf[:n], addr)
	}
}

// handleRequest replies to one request at <sender IP>:<requested port>
func (s *Server) handleRequest(conn net.PacketConn, data []byte, addr net.Addr) {
	remote := addr.String()

	req, err := protocol.ParseDiscoveryRequest(data)
	logging.LogDatagram("received", remote, data, err)
	if err != nil {
		return
	}

	src, ok := addr.(*net.UDPAddr)
	if !ok {
		return
	}
	dst := &net.UDPAddr{IP: src.IP, Port: req.ListenPort}

	if _, err := conn.WriteTo(s.announce, dst); err != nil {
		logging.Warn("Failed to send announce",
			zap.String("remote_addr", dst.String()),
			zap.Error(err),
		)
		return
	}

	s.replies.Add(1)
	logging.LogDatagram("sent", dst.String(), s.announce, nil)
	logging.Info("Answered discovery request",
		zap.String("client", dst.String()),
		zap.Int("service_port", s.config.ServicePort),
	)
}

// Addr returns the bound discovery address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Replies returns how many announces have been sent
func (s *Server) Replies() int64 {
	return s.replies.Load()
}

// Shutdown withdraws the mDNS record, closes the socket and waits for the
// serve loop to exit or ctx to expire
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		s.closing.Store(true)

		s.mu.Lock()
		conn, mdns := s.conn, s.mdns
		s.mu.Unlock()

		if mdns != nil {
			mdns.Shutdown()
		}
		if conn != nil {
			if err := conn.Close(); err != nil {
				logging.Error("Error closing discovery socket", zap.Error(err))
			}
		}
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("Responder stopped", zap.Int64("replies", s.replies.Load()))
		return nil
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, serve loop still running")
		return ctx.Err()
	}
}
