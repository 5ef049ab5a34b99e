// Package config manages the udpsearch configuration file.
//
// The file holds the default discovery parameters and a registry of servers
// found by previous searches, keyed by serial number. It is YAML, versioned,
// and written atomically.
//
// # Configuration File Location
//
//   - $UDPSEARCH_CONFIG_DIR/config.yaml when the variable is set
//   - Linux: $XDG_CONFIG_HOME/udpsearch/config.yaml or $HOME/.config/udpsearch/config.yaml
//   - macOS: $HOME/.config/udpsearch/config.yaml
//   - Windows: %LOCALAPPDATA%\udpsearch\config.yaml
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.RecordServer("SN-001", "192.168.1.20", 9000)
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # File Format
//
//	version: 1
//	network:
//	  server_port: 30201
//	  listen_port: 30202
//	  broadcast_address: 255.255.255.255
//	  timeout_ms: 10000
//	  mdns_fallback: false
//	servers:
//	  SN-001:
//	    nickname: Lab box
//	    last_address: 192.168.1.20
//	    last_port: 9000
//	    last_seen: 2024-01-15T10:30:00Z
package config
