package server

import (
	"fmt"
	"net"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/udpsearch/internal/logging"
	"github.com/muurk/udpsearch/internal/protocol"
	"github.com/muurk/udpsearch/internal/version"
)

// instanceName returns the mDNS instance name for this responder
func (s *Server) instanceName() string {
	if s.config.Instance != "" {
		return s.config.Instance
	}
	if s.config.Serial != "" {
		return "udpsearch-" + s.config.Serial
	}
	return "udpsearch"
}

// txtRecords builds the TXT records clients read the serial from
func (s *Server) txtRecords() []string {
	records := []string{
		protocol.TXTSerial + "=" + s.config.Serial,
		protocol.TXTAgent + "=" + version.UserAgent(),
	}
	if addr, ok := s.Addr().(*net.UDPAddr); ok {
		records = append(records, fmt.Sprintf("%s=%d", protocol.TXTDiscoveryPort, addr.Port))
	}
	return records
}

// register advertises the service port over mDNS
func (s *Server) register() error {
	mdns, err := zeroconf.Register(
		s.instanceName(),
		protocol.ServiceType,
		protocol.ServiceDomain,
		s.config.ServicePort,
		s.txtRecords(),
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mu.Lock()
	s.mdns = mdns
	s.mu.Unlock()

	logging.Info("Advertising over mDNS",
		zap.String("instance", s.instanceName()),
		zap.String("service", protocol.ServiceType),
		zap.Int("port", s.config.ServicePort),
	)
	return nil
}
