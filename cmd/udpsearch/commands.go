package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/udpsearch/internal/config"
	"github.com/muurk/udpsearch/internal/discovery"
	"github.com/muurk/udpsearch/internal/logging"
	"github.com/muurk/udpsearch/internal/tui"
	"github.com/muurk/udpsearch/internal/ui"
)

// Output formats
const (
	formatDetailed = "detailed"
	formatCompact  = "compact"
	formatJSON     = "json"
)

// searchFlags are shared by the root command and 'search'.
// Unset flags fall back to the network section of the config file.
type searchFlags struct {
	timeout    time.Duration
	serverPort int
	listenPort int
	broadcast  string
	mdns       bool
}

// searchOptions are the resolved search parameters
type searchOptions struct {
	Timeout      time.Duration
	ServerPort   int
	ListenPort   int
	Broadcast    string
	MDNSFallback bool
}

var (
	searchArgs   searchFlags
	outputFormat string
	browseTime   time.Duration
)

func (f *searchFlags) register(cmd *cobra.Command) {
	def := config.DefaultNetwork()
	cmd.Flags().DurationVar(&f.timeout, "timeout", def.Timeout(), "How long to wait for an announce")
	cmd.Flags().IntVar(&f.serverPort, "server-port", def.ServerPort, "Port servers listen on for discovery requests")
	cmd.Flags().IntVar(&f.listenPort, "listen-port", def.ListenPort, "Port to receive announces on (0 = any free port)")
	cmd.Flags().StringVar(&f.broadcast, "broadcast", def.BroadcastAddress, "Destination address of the discovery request")
	cmd.Flags().BoolVar(&f.mdns, "mdns", def.MDNSFallback, "Browse mDNS when the broadcast search finds nothing")
}

// resolve merges explicitly set flags over the configured network preferences
func (f *searchFlags) resolve(cmd *cobra.Command, network *config.Network) searchOptions {
	if network == nil {
		network = config.DefaultNetwork()
	}
	opts := searchOptions{
		Timeout:      network.Timeout(),
		ServerPort:   network.ServerPort,
		ListenPort:   network.ListenPort,
		Broadcast:    network.BroadcastAddress,
		MDNSFallback: network.MDNSFallback,
	}

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		opts.Timeout = f.timeout
	}
	if flags.Changed("server-port") {
		opts.ServerPort = f.serverPort
	}
	if flags.Changed("listen-port") {
		opts.ListenPort = f.listenPort
	}
	if flags.Changed("broadcast") {
		opts.Broadcast = f.broadcast
	}
	if flags.Changed("mdns") {
		opts.MDNSFallback = f.mdns
	}
	return opts
}

// validate rejects values the searcher cannot use
func (o searchOptions) validate() error {
	if o.ServerPort <= 0 || o.ServerPort > 65535 {
		return fmt.Errorf("server port %d out of range", o.ServerPort)
	}
	if o.ListenPort < 0 || o.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", o.ListenPort)
	}
	if o.Broadcast == "" {
		return fmt.Errorf("broadcast address is required")
	}
	return nil
}

func (o searchOptions) searcher() *discovery.Searcher {
	return &discovery.Searcher{
		ServerPort: o.ServerPort,
		ListenPort: o.ListenPort,
		Timeout:    o.Timeout,
		Sender:     &discovery.Sender{BroadcastAddress: o.Broadcast},
	}
}

func (o searchOptions) details() []ui.Detail {
	details := []ui.Detail{
		{Key: "Broadcast", Value: fmt.Sprintf("%s:%d", o.Broadcast, o.ServerPort)},
		{Key: "Listen port", Value: strconv.Itoa(o.ListenPort)},
		{Key: "Timeout", Value: o.Timeout.String()},
	}
	if o.MDNSFallback {
		details = append(details, ui.Detail{Key: "mDNS fallback", Value: "enabled"})
	}
	return details
}

// find runs a broadcast search, then an mDNS browse when enabled and nothing answered
func (o searchOptions) find(ctx context.Context) (*discovery.ServerInfo, error) {
	server, err := o.searcher().SearchWithContext(ctx)
	if err != nil || server != nil || !o.MDNSFallback {
		return server, err
	}

	logging.Info("No broadcast answer, browsing mDNS")
	server, err = discovery.NewBrowser().First(ctx, "")
	if err != nil {
		// The broadcast result stands; mDNS was a best effort
		logging.Warn("mDNS fallback failed", zap.Error(err))
		return nil, nil
	}
	return server, nil
}

func searchTroubleshooting(err error) []string {
	if discovery.IsBindError(err) {
		return []string{
			"Another udpsearch may already be listening on this port",
			"Use --listen-port 0 to receive announces on any free port",
		}
	}
	return []string{
		"Check that a server is running on the same network segment",
		"Make sure UDP broadcast is not blocked by a firewall",
		"Try a longer --timeout or a directed --broadcast address",
		"Use --mdns to also browse mDNS advertisements",
	}
}

func init() {
	searchArgs.register(rootCmd)
	searchArgs.register(searchCmd)
	searchCmd.Flags().StringVar(&outputFormat, "format", formatDetailed, "Output format (detailed, compact, json)")

	browseCmd.Flags().DurationVar(&browseTime, "timeout", discovery.DefaultBrowseTimeout, "How long to collect mDNS advertisements")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(browseCmd)
}

// loadRegistry returns the config registry, or defaults when it cannot be read
func loadRegistry() *config.Registry {
	registry, err := config.LoadRegistry()
	if err != nil {
		logging.Warn("Using default configuration", zap.Error(err))
		return config.NewRegistry()
	}
	return registry
}

// remember records found servers in the registry
func remember(registry *config.Registry, servers ...*discovery.ServerInfo) {
	if len(servers) == 0 {
		return
	}
	for _, server := range servers {
		registry.RecordServer(server.SerialNumber, server.Address, server.Port)
	}
	if err := registry.Save(); err != nil {
		logging.Warn("Failed to save found servers", zap.Error(err))
	}
}

// signalContext is cancelled by Ctrl-C or SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// searchCmd runs one non-interactive search
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the local network for a server",
	Long: `Broadcast a discovery request and print the first server that answers.

The request asks servers to reply on the listen port. The search ends when
the first valid announce arrives or the timeout expires. Flags not given on
the command line default to the network section of the config file.`,
	Example: `  # Search with the configured defaults
  udpsearch search

  # Quick 2-second search
  udpsearch search --timeout 2s

  # Directed broadcast, reply on any free port
  udpsearch search --broadcast 192.168.1.255 --listen-port 0

  # JSON output for scripting
  udpsearch search --format json`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

// serverJSON is the machine-readable form of a found server
type serverJSON struct {
	Serial       string    `json:"serial"`
	Address      string    `json:"address"`
	Port         int       `json:"port"`
	Source       string    `json:"source"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

type searchJSON struct {
	Found  bool        `json:"found"`
	Server *serverJSON `json:"server,omitempty"`
}

func toJSON(server *discovery.ServerInfo) *serverJSON {
	if server == nil {
		return nil
	}
	return &serverJSON{
		Serial:       server.SerialNumber,
		Address:      server.Address,
		Port:         server.Port,
		Source:       string(server.Source),
		DiscoveredAt: server.DiscoveredAt,
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	switch outputFormat {
	case formatDetailed, formatCompact, formatJSON:
	default:
		return fmt.Errorf("unknown format %q (use detailed, compact or json)", outputFormat)
	}

	registry := loadRegistry()
	opts := searchArgs.resolve(cmd, registry.Network)
	if err := opts.validate(); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	printer := ui.NewPrinter(cmd.OutOrStdout())
	if outputFormat == formatDetailed {
		printer.PrintHeader("SERVER SEARCH", "udpsearch search", opts.details())
	}

	server, err := opts.find(ctx)
	if err != nil {
		if discovery.IsInterrupted(err) {
			logging.Info("Search interrupted")
			return nil
		}
		if outputFormat == formatDetailed {
			printer.PrintError("Search failed", err, searchTroubleshooting(err))
			return errReported
		}
		return err
	}

	if server != nil {
		remember(registry, server)
	}

	switch outputFormat {
	case formatJSON:
		data, err := json.MarshalIndent(searchJSON{Found: server != nil, Server: toJSON(server)}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		printer.Println(string(data))

	case formatCompact:
		if server == nil {
			printer.Println("No server found")
			return nil
		}
		printer.Println(server.String())

	default:
		if server == nil {
			printer.PrintWarning("No server answered", []ui.Detail{
				{Key: "Waited", Value: opts.Timeout.String()},
			}, searchTroubleshooting(nil))
			return nil
		}
		printer.PrintSuccess("Server found", serverDetails(server, registry))
	}

	return nil
}

func serverDetails(server *discovery.ServerInfo, registry *config.Registry) []ui.Detail {
	details := []ui.Detail{
		{Key: "Serial", Value: server.SerialNumber},
		{Key: "Address", Value: server.HostPort()},
		{Key: "Source", Value: string(server.Source)},
	}
	if known := registry.GetServer(server.SerialNumber); known != nil && known.Nickname != "" {
		details = append(details, ui.Detail{Key: "Nickname", Value: known.Nickname})
	}
	return details
}

// browseCmd lists responders advertising over mDNS
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List servers advertising over mDNS",
	Long: `Browse mDNS/DNS-SD for responders started with 'udpsearch respond --advertise'.

Unlike search, browse collects every advertisement seen within the timeout.
Useful on networks that drop broadcasts but forward multicast.`,
	Example: `  # Browse for 3 seconds (default)
  udpsearch browse

  # Longer browse for slow networks
  udpsearch browse --timeout 10s`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.PrintHeader("MDNS BROWSE", "udpsearch browse", []ui.Detail{
		{Key: "Timeout", Value: browseTime.String()},
	})

	browser := &discovery.Browser{Timeout: browseTime}
	servers, err := browser.Browse(ctx)
	if err != nil {
		printer.PrintError("Browse failed", err, []string{
			"Check that multicast is allowed on this interface",
		})
		return errReported
	}

	if len(servers) == 0 {
		printer.PrintWarning("No advertisements seen", nil, []string{
			"Start a responder with 'udpsearch respond --advertise'",
			"Try increasing --timeout for slower networks",
		})
		return nil
	}

	rows := make([][]string, 0, len(servers))
	for _, server := range servers {
		rows = append(rows, []string{server.SerialNumber, server.Address, strconv.Itoa(server.Port)})
	}
	printer.PrintTable([]string{"SERIAL", "ADDRESS", "PORT"}, rows)

	remember(loadRegistry(), servers...)
	return nil
}

// runInteractive opens the search screen, or runs a plain search when
// output is not a terminal
func runInteractive(cmd *cobra.Command, args []string) error {
	if !ui.IsInteractive() {
		outputFormat = formatDetailed
		return runSearch(cmd, args)
	}

	registry := loadRegistry()
	opts := searchArgs.resolve(cmd, registry.Network)
	if err := opts.validate(); err != nil {
		return err
	}

	params := fmt.Sprintf("%s:%d → :%d", opts.Broadcast, opts.ServerPort, opts.ListenPort)
	model := tui.NewSearchModel(opts.find, opts.Timeout, params)

	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("failed to run search screen: %w", err)
	}

	if m, ok := final.(tui.SearchModel); ok {
		remember(registry, m.FoundServers()...)
	}
	return nil
}
