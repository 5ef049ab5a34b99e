package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/muurk/udpsearch/internal/protocol"
)

// startListener binds a listener on an ephemeral port
func startListener(t *testing.T) *Listener {
	t.Helper()

	l := NewListener(0)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { l.Stop() })
	return l
}

// sendTo writes one datagram from a fresh loopback socket and returns the
// socket's port
func sendTo(t *testing.T, port int, data []byte) int {
	t.Helper()

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatalf("DialUDP() error = %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func announce(t *testing.T, port int, serial string) []byte {
	t.Helper()

	packet, err := protocol.BuildAnnounce(port, serial)
	if err != nil {
		t.Fatalf("BuildAnnounce() error = %v", err)
	}
	return packet
}

// waitForResults polls until the listener holds n results
func waitForResults(t *testing.T, l *Listener, n int) []*ServerInfo {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if results := l.Results(); len(results) >= n {
			return results
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("listener did not collect %d results, got %d", n, len(l.Results()))
	return nil
}

func TestListener_StateTransitions(t *testing.T) {
	l := NewListener(0)
	if l.State() != StateCreated {
		t.Errorf("initial state = %v, want %v", l.State(), StateCreated)
	}

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s := l.State(); s != StateReady && s != StateReceiving {
		t.Errorf("state after Start = %v, want ready or receiving", s)
	}
	if l.Port() == 0 {
		t.Error("Port() should report the bound ephemeral port")
	}

	l.Stop()
	if l.State() != StateStopped {
		t.Errorf("state after Stop = %v, want %v", l.State(), StateStopped)
	}
}

func TestListener_ReceivesAnnounce(t *testing.T) {
	l := startListener(t)

	sendTo(t, l.Port(), announce(t, 9000, "SN-001"))

	select {
	case <-l.Found():
	case <-time.After(2 * time.Second):
		t.Fatal("Found() was not signalled")
	}

	results := l.Stop()
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}

	got := results[0]
	if got.Port != 9000 {
		t.Errorf("Port = %d, want 9000", got.Port)
	}
	if got.Address != "127.0.0.1" {
		t.Errorf("Address = %q, want 127.0.0.1", got.Address)
	}
	if got.SerialNumber != "SN-001" {
		t.Errorf("SerialNumber = %q, want SN-001", got.SerialNumber)
	}
	if got.Source != SourceBroadcast {
		t.Errorf("Source = %q, want %q", got.Source, SourceBroadcast)
	}
}

func TestListener_SkipsMalformedDatagrams(t *testing.T) {
	l := startListener(t)

	badCommand := announce(t, 9000, "SN-BAD")
	badCommand[protocol.HeaderSize+1] = 5

	zeroPort := announce(t, 9000, "SN-ZERO")
	copy(zeroPort[protocol.HeaderSize+2:protocol.MinPacketSize], []byte{0, 0, 0, 0})

	sendTo(t, l.Port(), []byte("hello"))
	sendTo(t, l.Port(), []byte("XXXXXXXX\x00\x02\x00\x00\x23\x28SN"))
	sendTo(t, l.Port(), badCommand)
	sendTo(t, l.Port(), zeroPort)
	sendTo(t, l.Port(), announce(t, 9001, "SN-GOOD"))

	results := waitForResults(t, l, 1)
	if results[0].SerialNumber != "SN-GOOD" {
		t.Errorf("first result = %q, want SN-GOOD", results[0].SerialNumber)
	}

	// Garbage must not end the loop
	if s := l.State(); s != StateReceiving {
		t.Errorf("state = %v, want %v", s, StateReceiving)
	}
	if err := l.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

// Two responders answer: both are kept in arrival order, and found fires once.
func TestListener_CollectsEveryAnnounce(t *testing.T) {
	l := startListener(t)

	sendTo(t, l.Port(), announce(t, 9000, "SN-A"))
	waitForResults(t, l, 1)
	sendTo(t, l.Port(), announce(t, 9100, "SN-B"))

	before := waitForResults(t, l, 2)
	if before[0].Port != 9000 || before[1].Port != 9100 {
		t.Errorf("results before Stop = [%d %d], want [9000 9100]", before[0].Port, before[1].Port)
	}

	results := l.Stop()
	if len(results) != 2 {
		t.Fatalf("len(Stop()) = %d, want 2", len(results))
	}
	// A second close of found would have panicked in the receive loop
	select {
	case <-l.Found():
	default:
		t.Error("Found() not closed after two announces")
	}
	if err := l.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestListener_StopIdempotent(t *testing.T) {
	l := startListener(t)

	sendTo(t, l.Port(), announce(t, 9000, "SN-001"))
	waitForResults(t, l, 1)

	first := l.Stop()
	second := l.Stop()

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("Stop() results = %d then %d, want 1 and 1", len(first), len(second))
	}
	if first[0] != second[0] {
		t.Error("second Stop() returned a different result")
	}
	if err := l.Err(); err != nil {
		t.Errorf("Err() after Stop = %v, want nil (close is not a failure)", err)
	}
}

func TestListener_StopBeforeStart(t *testing.T) {
	l := NewListener(0)

	done := make(chan []*ServerInfo, 1)
	go func() { done <- l.Stop() }()

	select {
	case results := <-done:
		if len(results) != 0 {
			t.Errorf("Stop() = %v, want empty", results)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop() on an unstarted listener blocked")
	}

	if err := l.Start(context.Background()); err == nil {
		t.Error("Start() after Stop should fail")
	}
}

func TestListener_StartTwice(t *testing.T) {
	l := startListener(t)

	if err := l.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestListener_BindFailure(t *testing.T) {
	occupied, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	defer occupied.Close()

	l := NewListener(occupied.LocalAddr().(*net.UDPAddr).Port)
	err = l.Start(context.Background())
	if err == nil {
		l.Stop()
		t.Fatal("Start() on an occupied port should fail")
	}

	if !IsBindError(err) {
		t.Errorf("error = %v, want bind error", err)
	}

	var e *Error
	if errors.As(err, &e) && e.Subtype != SocketErrorAddressInUse {
		t.Errorf("Subtype = %v, want SocketErrorAddressInUse", e.Subtype)
	}

	if l.State() != StateStopped {
		t.Errorf("state = %v, want %v", l.State(), StateStopped)
	}
	l.Stop()
}

// fakeConn lets tests inject receive errors
type fakeConn struct {
	net.PacketConn
	readErr error
}

func (f *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	return 0, nil, f.readErr
}

func TestListener_GenuineReceiveErrorIsRecorded(t *testing.T) {
	inner, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}

	l := NewListener(0)
	l.listen = func(network, address string) (net.PacketConn, error) {
		return &fakeConn{PacketConn: inner, readErr: errors.New("interface went away")}, nil
	}

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-l.done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not exit on error")
	}

	var e *Error
	if !errors.As(l.Err(), &e) || e.Type != ErrTypeReceive {
		t.Errorf("Err() = %v, want receive error", l.Err())
	}
	l.Stop()
}

func TestListener_StartInterrupted(t *testing.T) {
	release := make(chan struct{})
	l := NewListener(0)
	l.listen = func(network, address string) (net.PacketConn, error) {
		<-release
		return net.ListenPacket(network, "127.0.0.1:0")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx) }()

	// Let Stop wait on the pending bind, then finish it
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-errCh:
		if !IsInterrupted(err) {
			t.Errorf("Start() error = %v, want interrupted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}

	if l.State() != StateStopped {
		t.Errorf("state = %v, want %v", l.State(), StateStopped)
	}
}

func TestListenerState_String(t *testing.T) {
	if got := StateReceiving.String(); got != "receiving" {
		t.Errorf("StateReceiving.String() = %q", got)
	}
	if got := ListenerState(9).String(); got != "ListenerState(9)" {
		t.Errorf("ListenerState(9).String() = %q", got)
	}
}
