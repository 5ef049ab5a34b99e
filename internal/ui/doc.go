// Package ui provides styled, non-interactive terminal output for the
// udpsearch CLI.
//
// Components render with Lipgloss and follow a "print once" pattern:
//
//   - Header: command banner showing the operation and its parameters
//   - Result: success, warning and failure boxes with ordered details
//   - RenderTable: aligned columns for server lists
//   - Confirm: a yes/no prompt for destructive registry operations
//
// Example:
//
//	p := ui.NewPrinter(os.Stdout)
//	p.PrintHeader("Server search", "udpsearch search", []ui.Detail{
//	    {Key: "Server port", Value: "30201"},
//	})
//	p.PrintSuccess("Server found", []ui.Detail{
//	    {Key: "Address", Value: "192.168.1.20:9000"},
//	})
//
// Logging is controlled by UDPSEARCH_LOG_LEVEL. When it is unset, zap is
// silent so the styled output is not interleaved with log lines.
package ui
