package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Source identifies how a server was found
type Source string

const (
	SourceBroadcast Source = "broadcast"
	SourceMDNS      Source = "mdns"
)

// ServerInfo describes a server that answered a discovery request.
// Values are built only from validated announces and are not modified afterwards.
type ServerInfo struct {
	// Port is the port the server accepts connections on (always > 0)
	Port int

	// Address is the textual IP the announce came from (e.g., "192.168.4.16")
	Address string

	// SerialNumber identifies the server instance (e.g., "SN-001")
	SerialNumber string

	// Source records whether the server was found by broadcast or mDNS
	Source Source

	// DiscoveredAt is when the announce was received
	DiscoveredAt time.Time
}

// String returns a human-readable representation of the server
func (s *ServerInfo) String() string {
	return fmt.Sprintf("Server %s at %s", s.SerialNumber, s.HostPort())
}

// HostPort returns "address:port", bracketing IPv6 addresses
func (s *ServerInfo) HostPort() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// addrIP extracts the textual IP of a datagram source
func addrIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case nil:
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
