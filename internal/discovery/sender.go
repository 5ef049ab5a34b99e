package discovery

import (
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/muurk/udpsearch/internal/logging"
	"github.com/muurk/udpsearch/internal/protocol"
)

// DefaultBroadcastAddress is the limited broadcast address
const DefaultBroadcastAddress = "255.255.255.255"

// RequestSender emits a discovery request. Sender is the network implementation.
type RequestSender interface {
	SendDiscoveryRequest(serverPort, listenPort int) error
}

// Sender broadcasts discovery requests
type Sender struct {
	// BroadcastAddress is the destination IP (default 255.255.255.255)
	BroadcastAddress string
}

// NewSender creates a sender targeting the limited broadcast address
func NewSender() *Sender {
	return &Sender{BroadcastAddress: DefaultBroadcastAddress}
}

// SendDiscoveryRequest sends one request datagram to BroadcastAddress:serverPort
// asking responders to reply on listenPort.
//
// A fresh socket is opened for the single datagram and closed before returning.
// There is no retry and no delivery confirmation.
func (s *Sender) SendDiscoveryRequest(serverPort, listenPort int) error {
	packet, err := protocol.BuildDiscoveryRequest(listenPort)
	if err != nil {
		return &Error{Type: ErrTypeSend, Message: "failed to build discovery request", Err: err, Port: serverPort}
	}

	target := s.BroadcastAddress
	if target == "" {
		target = DefaultBroadcastAddress
	}

	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(target, strconv.Itoa(serverPort)))
	if err != nil {
		return &Error{Type: ErrTypeSend, Message: fmt.Sprintf("could not resolve %s", target), Err: err, Port: serverPort}
	}

	// The runtime enables SO_BROADCAST on datagram sockets.
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return ClassifySocketError(ErrTypeSend, err, serverPort)
	}
	defer conn.Close()

	n, err := conn.Write(packet)
	if err != nil {
		return ClassifySocketError(ErrTypeSend, err, serverPort)
	}
	if n != len(packet) {
		return &Error{
			Type:    ErrTypeSend,
			Message: fmt.Sprintf("short write: %d of %d bytes", n, len(packet)),
			Port:    serverPort,
		}
	}

	logging.LogDatagram("sent", raddr.String(), packet, nil)
	logging.LogSearchEvent("request_sent",
		zap.String("target", raddr.String()),
		zap.Int("listen_port", listenPort),
	)

	return nil
}

// SendDiscoveryRequest broadcasts a request with the default sender
func SendDiscoveryRequest(serverPort, listenPort int) error {
	return NewSender().SendDiscoveryRequest(serverPort, listenPort)
}
