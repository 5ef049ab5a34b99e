package config

import (
	"sort"
	"time"

	"github.com/muurk/udpsearch/internal/protocol"
)

// Default network preferences
const (
	DefaultBroadcastAddress = "255.255.255.255"
	DefaultTimeoutMS        = 10000
)

// Registry represents the entire user configuration file.
// It stores network preferences and the servers found by previous searches.
type Registry struct {
	Version int                `yaml:"version"`
	Network *Network           `yaml:"network,omitempty"`
	Servers map[string]*Server `yaml:"servers,omitempty"` // Keyed by serial number
}

// Network holds the discovery parameters used when no flag overrides them.
type Network struct {
	ServerPort       int    `yaml:"server_port"`       // Port responders listen on
	ListenPort       int    `yaml:"listen_port"`       // Port announces are received on
	BroadcastAddress string `yaml:"broadcast_address"` // Destination of discovery requests
	TimeoutMS        int    `yaml:"timeout_ms"`        // Search timeout in milliseconds
	MDNSFallback     bool   `yaml:"mdns_fallback"`     // Browse mDNS when the broadcast search finds nothing
}

// Server represents what is remembered about one server.
// This is keyed by the server's serial number in the Registry.
type Server struct {
	Nickname    string    `yaml:"nickname,omitempty"`     // User-friendly name
	LastAddress string    `yaml:"last_address,omitempty"` // Last known IP address
	LastPort    int       `yaml:"last_port,omitempty"`    // Last announced service port
	LastSeen    time.Time `yaml:"last_seen,omitempty"`    // Last discovery time
}

// DefaultNetwork returns the built-in network preferences.
func DefaultNetwork() *Network {
	return &Network{
		ServerPort:       protocol.DefaultServerPort,
		ListenPort:       protocol.DefaultListenPort,
		BroadcastAddress: DefaultBroadcastAddress,
		TimeoutMS:        DefaultTimeoutMS,
		MDNSFallback:     false,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Network: DefaultNetwork(),
		Servers: make(map[string]*Server),
	}
}

// Timeout returns the configured search timeout.
func (n *Network) Timeout() time.Duration {
	return time.Duration(n.TimeoutMS) * time.Millisecond
}

// applyDefaults fills fields left empty in a hand-edited file.
func (n *Network) applyDefaults() {
	def := DefaultNetwork()
	if n.ServerPort == 0 {
		n.ServerPort = def.ServerPort
	}
	if n.ListenPort == 0 {
		n.ListenPort = def.ListenPort
	}
	if n.BroadcastAddress == "" {
		n.BroadcastAddress = def.BroadcastAddress
	}
	if n.TimeoutMS <= 0 {
		n.TimeoutMS = def.TimeoutMS
	}
}

// GetServer retrieves a server by serial number.
// Returns nil if the server doesn't exist in the registry.
func (r *Registry) GetServer(serial string) *Server {
	return r.Servers[serial]
}

// EnsureServer ensures a server entry exists in the registry.
// Returns the entry (existing or newly created).
func (r *Registry) EnsureServer(serial string) *Server {
	if r.Servers == nil {
		r.Servers = make(map[string]*Server)
	}

	if server, exists := r.Servers[serial]; exists {
		return server
	}

	server := &Server{}
	r.Servers[serial] = server
	return server
}

// RecordServer updates the last seen time, address and port of a server.
func (r *Registry) RecordServer(serial, address string, port int) {
	server := r.EnsureServer(serial)
	server.LastSeen = time.Now()
	server.LastAddress = address
	server.LastPort = port
}

// SetServerNickname sets a user-friendly nickname for a server.
func (r *Registry) SetServerNickname(serial, nickname string) {
	server := r.EnsureServer(serial)
	server.Nickname = nickname
}

// ForgetServer removes a server. Returns false if it was not known.
func (r *Registry) ForgetServer(serial string) bool {
	if _, exists := r.Servers[serial]; !exists {
		return false
	}
	delete(r.Servers, serial)
	return true
}

// Serials returns the known serial numbers, most recently seen first.
func (r *Registry) Serials() []string {
	serials := make([]string, 0, len(r.Servers))
	for serial := range r.Servers {
		serials = append(serials, serial)
	}

	sort.Slice(serials, func(i, j int) bool {
		a, b := r.Servers[serials[i]], r.Servers[serials[j]]
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return serials[i] < serials[j]
	})
	return serials
}
