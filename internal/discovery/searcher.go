package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/udpsearch/internal/logging"
	"github.com/muurk/udpsearch/internal/protocol"
)

// DefaultSearchTimeout is how long Search waits for an announce
const DefaultSearchTimeout = 10 * time.Second

// Searcher finds a server on the local network by UDP broadcast
type Searcher struct {
	// ServerPort is the well-known port responders listen on
	ServerPort int

	// ListenPort is the port the listener binds for announces.
	// Zero binds an ephemeral port, which is then advertised in the request.
	ListenPort int

	// Timeout is the maximum time to wait for the first announce.
	// Zero or negative stops the listener right after the request is sent.
	Timeout time.Duration

	// Sender emits the request (default: broadcast Sender)
	Sender RequestSender

	// listenPacket overrides socket creation in tests
	listenPacket PacketListenFunc
}

// NewSearcher creates a searcher with the default ports and timeout
func NewSearcher() *Searcher {
	return &Searcher{
		ServerPort: protocol.DefaultServerPort,
		ListenPort: protocol.DefaultListenPort,
		Timeout:    DefaultSearchTimeout,
		Sender:     NewSender(),
	}
}

// Search broadcasts a discovery request and returns the first server that
// answers within Timeout, or nil if none does.
func (s *Searcher) Search() (*ServerInfo, error) {
	return s.SearchWithContext(context.Background())
}

// SearchWithContext is Search with cancellation.
//
// The sequence is:
//  1. Start the listener and wait until its socket is bound
//  2. Send one discovery request (a send failure is logged, not returned)
//  3. Wait for the first valid announce, Timeout, or ctx
//  4. Stop the listener and return the first announce received
//
// Returns a bind error if the listen port cannot be opened and an interrupted
// error if ctx is cancelled. A nil ServerInfo with a nil error means no
// server answered.
func (s *Searcher) SearchWithContext(ctx context.Context) (*ServerInfo, error) {
	timeout := s.Timeout

	logging.LogSearchEvent("search_started",
		zap.Int("server_port", s.ServerPort),
		zap.Int("listen_port", s.ListenPort),
		zap.Duration("timeout", timeout),
	)

	listener := NewListener(s.ListenPort)
	if s.listenPacket != nil {
		listener.listen = s.listenPacket
	}

	if err := listener.Start(ctx); err != nil {
		return nil, err
	}

	// Send after bind so no announce can arrive before the socket exists.
	if err := s.sender().SendDiscoveryRequest(s.ServerPort, listener.Port()); err != nil {
		logging.Warn("Discovery request not sent, waiting out the timeout",
			zap.Int("server_port", s.ServerPort),
			zap.Error(err),
		)
	}

	var interrupted error
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-listener.Found():
		case <-timer.C:
			logging.LogSearchEvent("search_timeout", zap.Duration("timeout", timeout))
		case <-ctx.Done():
			interrupted = newInterruptedError("waiting for a reply", ctx.Err())
		}
	} else if err := ctx.Err(); err != nil {
		interrupted = newInterruptedError("waiting for a reply", err)
	}

	results := listener.Stop()
	if err := listener.Err(); err != nil {
		logging.Warn("Listener ended with an error", zap.Error(err))
	}

	if interrupted != nil {
		return nil, interrupted
	}

	if len(results) == 0 {
		logging.LogSearchEvent("search_finished", zap.Bool("found", false))
		return nil, nil
	}

	logging.LogSearchEvent("search_finished",
		zap.Bool("found", true),
		zap.String("server", results[0].HostPort()),
		zap.Int("responses", len(results)),
	)
	return results[0], nil
}

func (s *Searcher) sender() RequestSender {
	if s.Sender == nil {
		return NewSender()
	}
	return s.Sender
}

// SearchServer is a convenience function to search with a custom timeout
// and the default ports
func SearchServer(timeout time.Duration) (*ServerInfo, error) {
	searcher := NewSearcher()
	searcher.Timeout = timeout
	return searcher.Search()
}
