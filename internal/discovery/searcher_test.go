package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/muurk/udpsearch/internal/protocol"
)

// replySender answers a discovery request directly on loopback instead of
// broadcasting it, sending each packet in replies to the requested port.
type replySender struct {
	t       *testing.T
	replies [][]byte

	mu         sync.Mutex
	calls      int
	listenPort int
}

func (r *replySender) SendDiscoveryRequest(serverPort, listenPort int) error {
	r.mu.Lock()
	r.calls++
	r.listenPort = listenPort
	r.mu.Unlock()

	for _, reply := range r.replies {
		sendTo(r.t, listenPort, reply)
	}
	return nil
}

// failingSender always fails, like a host without a broadcast route
type failingSender struct{}

func (failingSender) SendDiscoveryRequest(serverPort, listenPort int) error {
	return ClassifySocketError(ErrTypeSend, errors.New("network is unreachable"), serverPort)
}

func newTestSearcher(sender RequestSender, timeout time.Duration) *Searcher {
	return &Searcher{
		ServerPort: protocol.DefaultServerPort,
		ListenPort: 0,
		Timeout:    timeout,
		Sender:     sender,
	}
}

// Scenario A: nobody answers, the search gives up after the timeout
func TestSearcher_NoServer(t *testing.T) {
	s := newTestSearcher(&replySender{t: t}, 200*time.Millisecond)

	start := time.Now()
	info, err := s.Search()
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if info != nil {
		t.Errorf("Search() = %v, want nil", info)
	}
	if elapsed < 200*time.Millisecond {
		t.Errorf("Search() returned after %v, before the timeout", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Search() took %v, far beyond the timeout", elapsed)
	}
}

// Scenario B: one server answers and the search returns well before the timeout
func TestSearcher_ServerAnswers(t *testing.T) {
	sender := &replySender{t: t, replies: [][]byte{announce(t, 9000, "SN-001")}}
	s := newTestSearcher(sender, 5*time.Second)

	start := time.Now()
	info, err := s.Search()
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if info == nil {
		t.Fatal("Search() = nil, want a server")
	}
	if info.Port != 9000 || info.SerialNumber != "SN-001" || info.Address != "127.0.0.1" {
		t.Errorf("Search() = %+v, want SN-001 at 127.0.0.1:9000", info)
	}
	if elapsed >= 5*time.Second {
		t.Errorf("Search() waited %v, should return on the first announce", elapsed)
	}
	if sender.calls != 1 {
		t.Errorf("request sent %d times, want 1", sender.calls)
	}
	if sender.listenPort == 0 {
		t.Error("request should carry the bound listen port, got 0")
	}
}

// Scenario C: the only reply has the wrong command and is ignored
func TestSearcher_WrongCommandIgnored(t *testing.T) {
	reply := announce(t, 9000, "SN-001")
	reply[protocol.HeaderSize+1] = 5

	s := newTestSearcher(&replySender{t: t, replies: [][]byte{reply}}, 200*time.Millisecond)

	info, err := s.Search()
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if info != nil {
		t.Errorf("Search() = %v, want nil", info)
	}
}

func TestSearcher_FirstValidWins(t *testing.T) {
	sender := &replySender{t: t, replies: [][]byte{
		[]byte("garbage"),
		announce(t, 9000, "SN-A"),
		announce(t, 9100, "SN-B"),
	}}
	s := newTestSearcher(sender, 5*time.Second)

	info, err := s.Search()
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if info == nil || info.SerialNumber != "SN-A" {
		t.Errorf("Search() = %v, want SN-A", info)
	}
}

// orderSender records when the request was sent relative to the bind
type orderSender struct {
	mu     *sync.Mutex
	events *[]string
}

func (o orderSender) SendDiscoveryRequest(serverPort, listenPort int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	*o.events = append(*o.events, "send")
	return nil
}

func TestSearcher_SendHappensAfterBind(t *testing.T) {
	var mu sync.Mutex
	var events []string

	s := newTestSearcher(orderSender{mu: &mu, events: &events}, 50*time.Millisecond)
	s.listenPacket = func(network, address string) (net.PacketConn, error) {
		// A slow bind makes an early send observable
		time.Sleep(30 * time.Millisecond)
		conn, err := net.ListenPacket(network, "127.0.0.1:0")
		mu.Lock()
		events = append(events, "bind")
		mu.Unlock()
		return conn, err
	}

	if _, err := s.Search(); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != "bind" || events[1] != "send" {
		t.Errorf("events = %v, want [bind send]", events)
	}
}

func TestSearcher_SendFailureStillWaits(t *testing.T) {
	s := newTestSearcher(failingSender{}, 150*time.Millisecond)

	start := time.Now()
	info, err := s.Search()
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Search() error = %v, want nil (send failures are only logged)", err)
	}
	if info != nil {
		t.Errorf("Search() = %v, want nil", info)
	}
	if elapsed < 150*time.Millisecond {
		t.Errorf("Search() returned after %v, should wait out the timeout", elapsed)
	}
}

func TestSearcher_Interrupted(t *testing.T) {
	s := newTestSearcher(&replySender{t: t}, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	info, err := s.SearchWithContext(ctx)

	if !IsInterrupted(err) {
		t.Fatalf("SearchWithContext() error = %v, want interrupted", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled, got %v", err)
	}
	if info != nil {
		t.Errorf("SearchWithContext() = %v, want nil", info)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not end the wait")
	}
}

func TestSearcher_BindFailure(t *testing.T) {
	occupied, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	defer occupied.Close()

	sender := &replySender{t: t}
	s := newTestSearcher(sender, time.Second)
	s.ListenPort = occupied.LocalAddr().(*net.UDPAddr).Port

	info, err := s.Search()
	if !IsBindError(err) {
		t.Fatalf("Search() error = %v, want bind error", err)
	}
	if info != nil {
		t.Errorf("Search() = %v, want nil", info)
	}
	if sender.calls != 0 {
		t.Error("request must not be sent when the bind fails")
	}
}

func TestSearcher_DefaultTimeout(t *testing.T) {
	s := NewSearcher()
	if s.Timeout != DefaultSearchTimeout {
		t.Errorf("Timeout = %v, want %v", s.Timeout, DefaultSearchTimeout)
	}
	if s.ServerPort != protocol.DefaultServerPort || s.ListenPort != protocol.DefaultListenPort {
		t.Errorf("ports = %d/%d, want %d/%d", s.ServerPort, s.ListenPort,
			protocol.DefaultServerPort, protocol.DefaultListenPort)
	}
}

func TestSearcher_NonPositiveTimeoutDoesNotWait(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{"zero", 0},
		{"negative", -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSearcher(&replySender{t: t}, tt.timeout)

			start := time.Now()
			_, err := s.Search()
			elapsed := time.Since(start)

			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if elapsed > time.Second {
				t.Errorf("Search() took %v with timeout %v, want no wait", elapsed, tt.timeout)
			}
		})
	}
}

func TestSearcher_NonPositiveTimeoutCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestSearcher(&replySender{t: t}, 0)
	if _, err := s.SearchWithContext(ctx); !IsInterrupted(err) {
		t.Errorf("SearchWithContext() error = %v, want interrupted", err)
	}
}

// Full round trip through the real Sender, aimed at loopback
func TestSearcher_LoopbackRoundTrip(t *testing.T) {
	server, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	defer server.Close()

	go func() {
		buf := make([]byte, protocol.MaxPacketSize)
		n, addr, err := server.ReadFrom(buf)
		if err != nil {
			return
		}
		req, err := protocol.ParseDiscoveryRequest(buf[:n])
		if err != nil {
			return
		}
		reply, _ := protocol.BuildAnnounce(7000, "SN-LOOP")
		dst := &net.UDPAddr{IP: addr.(*net.UDPAddr).IP, Port: req.ListenPort}
		_, _ = server.WriteTo(reply, dst)
	}()

	s := &Searcher{
		ServerPort: server.LocalAddr().(*net.UDPAddr).Port,
		Timeout:    3 * time.Second,
		Sender:     &Sender{BroadcastAddress: "127.0.0.1"},
	}

	info, err := s.Search()
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if info == nil || info.SerialNumber != "SN-LOOP" || info.Port != 7000 {
		t.Errorf("Search() = %v, want SN-LOOP on port 7000", info)
	}
}
