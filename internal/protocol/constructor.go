package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire constants
const (
	// HeaderSize is the length of the magic header prefix
	HeaderSize = 8

	// MinPacketSize is header + 2-byte command + 4-byte port
	MinPacketSize = HeaderSize + 2 + 4

	// MaxPacketSize bounds both the send buffer and the receive buffer.
	// Longer datagrams are truncated by the receive call.
	MaxPacketSize = 128

	// MaxSerialSize is the largest serial number that fits in one announce
	MaxSerialSize = MaxPacketSize - MinPacketSize
)

// Command codes
const (
	CommandDiscover uint16 = 1
	CommandAnnounce uint16 = 2
)

// Well-known ports
const (
	DefaultServerPort = 30201 // Responders listen here for discovery requests
	DefaultListenPort = 30202 // Clients listen here for announces
)

// mDNS advertisement of responders
const (
	// ServiceType is the DNS-SD service type responders register
	ServiceType = "_udpsearch._udp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// TXT record keys
	TXTSerial        = "sn"             // serial number
	TXTDiscoveryPort = "discovery_port" // broadcast discovery port
	TXTAgent         = "agent"          // responder build
)

// magicHeader prefixes every datagram of the protocol.
var magicHeader = [HeaderSize]byte{7, 7, 7, 7, 7, 7, 7, 7}

// MagicHeader returns a copy of the magic header bytes.
func MagicHeader() []byte {
	h := magicHeader
	return h[:]
}

// BuildDiscoveryRequest constructs the datagram a client broadcasts to find servers.
//
// Structure:
//
//	[0-7]   magic header
//	[8-9]   CommandDiscover (big-endian uint16)
//	[10-13] listenPort      (big-endian int32)
//
// The listen port tells responders where to send the announce.
func BuildDiscoveryRequest(listenPort int) ([]byte, error) {
	if err := checkPort(listenPort); err != nil {
		return nil, fmt.Errorf("invalid listen port: %w", err)
	}

	packet := make([]byte, MinPacketSize)
	writePrefix(packet, CommandDiscover, listenPort)
	return packet, nil
}

// BuildAnnounce constructs the reply a server sends to a discovering client.
//
// Structure:
//
//	[0-7]   magic header
//	[8-9]   CommandAnnounce (big-endian uint16)
//	[10-13] serverPort      (big-endian int32)
//	[14+]   serial          (UTF-8)
//
// Returns an error if the port is out of range or the serial does not fit in
// MaxPacketSize.
func BuildAnnounce(serverPort int, serial string) ([]byte, error) {
	if err := checkPort(serverPort); err != nil {
		return nil, fmt.Errorf("invalid server port: %w", err)
	}
	if len(serial) > MaxSerialSize {
		return nil, fmt.Errorf("serial number too long: %d bytes (max %d)", len(serial), MaxSerialSize)
	}

	packet := make([]byte, MinPacketSize+len(serial))
	writePrefix(packet, CommandAnnounce, serverPort)
	copy(packet[MinPacketSize:], serial)
	return packet, nil
}

// writePrefix fills header, command and port. packet must be at least MinPacketSize long.
func writePrefix(packet []byte, command uint16, port int) {
	copy(packet[:HeaderSize], magicHeader[:])
	binary.BigEndian.PutUint16(packet[HeaderSize:HeaderSize+2], command)
	binary.BigEndian.PutUint32(packet[HeaderSize+2:MinPacketSize], uint32(int32(port)))
}

func checkPort(port int) error {
	if port <= 0 || port > math.MaxUint16 {
		return fmt.Errorf("%d out of range 1-%d", port, math.MaxUint16)
	}
	return nil
}
