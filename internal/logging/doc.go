// Package logging provides structured logging for udpsearch.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the discovery client, the responder and the CLI. Logging is
// silent unless a level is passed to Initialize or the UDPSEARCH_LOG_LEVEL
// environment variable is set, so library callers never see unexpected output.
//
// # Log Levels
//
//   - Debug: Per-datagram detail (hex dumps, validation failures)
//   - Info: Search lifecycle (listener bound, request sent, server found)
//   - Warn: Recoverable issues (broadcast send failed, stray receive errors)
//   - Error: Fatal issues (bind failures, responder startup)
//
// # Structured Logging
//
//	logging.Info("Server announced",
//	    zap.String("remote_addr", "192.168.1.20:30201"),
//	    zap.Int("server_port", 9000),
//	    zap.String("serial", "SN-001"),
//	)
//
// # Datagram Logging
//
// LogDatagram records every packet the listener or responder sees, including
// whether it passed validation:
//
//	logging.LogDatagram("received", addr.String(), buf[:n], err)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
