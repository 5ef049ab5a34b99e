// Udpsearch finds servers on the local network by UDP broadcast.
//
// A client broadcasts a small discovery request to the well-known server
// port and listens for announces carrying each server's service port and
// serial number. The same binary can act as the responder, answering
// requests and optionally advertising itself over mDNS.
//
// Usage:
//
//	udpsearch [command] [flags]
//
// Running without arguments in a terminal opens the interactive search
// screen. See 'udpsearch --help' for available commands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/udpsearch/internal/logging"
	"github.com/muurk/udpsearch/internal/version"
)

// errReported is returned by commands that already printed their failure
var errReported = errors.New("failure already reported")

var logLevel string

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "udpsearch",
	Short: "LAN server discovery over UDP broadcast",
	Long: `Find servers on the local network by UDP broadcast.

udpsearch broadcasts a discovery request to the server port and waits for
the first server to announce itself. It can also answer requests itself
(respond), browse mDNS advertisements (browse) and list the servers found
by earlier searches (servers).

If no command is specified and the output is a terminal, the interactive
search screen will launch automatically.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// An empty level falls back to UDPSEARCH_LOG_LEVEL
		return logging.Initialize(logLevel)
	},
	RunE: runInteractive,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// main prints errors itself
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error); default from "+logging.LogLevelEnvVar)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "udpsearch %s\n", version.Full())
		fmt.Fprintf(out, "  go:       %s\n", version.GoVersion)
		fmt.Fprintf(out, "  platform: %s\n", version.Platform())
	},
}
