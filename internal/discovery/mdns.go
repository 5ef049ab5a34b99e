package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/udpsearch/internal/logging"
	"github.com/muurk/udpsearch/internal/protocol"
)

// DefaultBrowseTimeout is the default time spent collecting mDNS answers
const DefaultBrowseTimeout = 3 * time.Second

// Browser finds responders that advertise themselves over mDNS.
// It complements the broadcast Searcher on networks that drop broadcasts
// but forward multicast.
type Browser struct {
	// Timeout is the maximum time to wait for advertisements
	Timeout time.Duration
}

// NewBrowser creates an mDNS browser with default settings
func NewBrowser() *Browser {
	return &Browser{
		Timeout: DefaultBrowseTimeout,
	}
}

// Browse collects every responder seen within Timeout
func (b *Browser) Browse(ctx context.Context) ([]*ServerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout())
	defer cancel()

	var mu sync.Mutex
	servers := make([]*ServerInfo, 0)
	seen := make(map[string]bool)

	err := b.browse(ctx, func(info *ServerInfo) bool {
		mu.Lock()
		defer mu.Unlock()
		key := info.HostPort() + "/" + info.SerialNumber
		if !seen[key] {
			seen[key] = true
			servers = append(servers, info)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*ServerInfo(nil), servers...), nil
}

// First returns the first responder seen within Timeout, or nil if none.
// A non-empty serial restricts the match to that server.
func (b *Browser) First(ctx context.Context, serial string) (*ServerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout())
	defer cancel()

	found := make(chan *ServerInfo, 1)
	err := b.browse(ctx, func(info *ServerInfo) bool {
		if serial != "" && info.SerialNumber != serial {
			return true
		}
		select {
		case found <- info:
		default:
		}
		cancel()
		return false
	})
	if err != nil {
		return nil, err
	}

	select {
	case info := <-found:
		return info, nil
	case <-ctx.Done():
		// cancel() above races with the send, so check once more
		select {
		case info := <-found:
			return info, nil
		default:
			return nil, nil
		}
	}
}

// browse runs a resolver until ctx ends, calling fn for each responder entry.
// fn returns false to stop consuming.
func (b *Browser) browse(ctx context.Context, fn func(*ServerInfo) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		consuming := true
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if !consuming {
					continue
				}
				info := parseServiceEntry(entry)
				if info == nil {
					continue
				}
				logging.LogSearchEvent("mdns_entry",
					zap.String("instance", entry.Instance),
					zap.String("server", info.HostPort()),
					zap.String("serial", info.SerialNumber),
				)
				consuming = fn(info)
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, protocol.ServiceType, protocol.ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

func (b *Browser) timeout() time.Duration {
	if b.Timeout <= 0 {
		return DefaultBrowseTimeout
	}
	return b.Timeout
}

// parseServiceEntry converts a zeroconf entry to a ServerInfo.
// Returns nil when the entry has no usable address or port.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *ServerInfo {
	if entry == nil || entry.Port <= 0 {
		return nil
	}

	// Prefer IPv4, matching the broadcast path
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	txt := parseTXT(entry.Text)
	serial, ok := txt[protocol.TXTSerial]
	if !ok {
		serial = entry.Instance
	}

	return &ServerInfo{
		Port:         entry.Port,
		Address:      ip,
		SerialNumber: serial,
		Source:       SourceMDNS,
		DiscoveredAt: time.Now(),
	}
}

// parseTXT splits "key=value" records; a bare key maps to ""
func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, txt := range records {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			out[parts[0]] = parts[1]
		} else {
			out[parts[0]] = ""
		}
	}
	return out
}

// BrowseServers is a convenience function to browse with a custom timeout
func BrowseServers(timeout time.Duration) ([]*ServerInfo, error) {
	browser := NewBrowser()
	browser.Timeout = timeout
	return browser.Browse(context.Background())
}
