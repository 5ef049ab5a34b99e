package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/udpsearch/internal/config"
	"github.com/muurk/udpsearch/internal/ui"
)

var clearYes bool

func init() {
	serversClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")

	serversCmd.AddCommand(serversForgetCmd)
	serversCmd.AddCommand(serversNicknameCmd)
	serversCmd.AddCommand(serversClearCmd)
	rootCmd.AddCommand(serversCmd)
}

// serversCmd lists servers remembered from earlier searches
var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List servers found by earlier searches",
	Long: `List the servers recorded in the config file, most recently seen first.

Every successful search or browse records the server's serial number, address
and port. Use the subcommands to name or forget servers.`,
	Args: cobra.NoArgs,
	RunE: runServers,
}

func runServers(cmd *cobra.Command, args []string) error {
	registry, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	serials := registry.Serials()
	if len(serials) == 0 {
		printer.Println("No servers recorded yet. Run 'udpsearch search' to find one.")
		return nil
	}

	printer.PrintTable(serverTableHeaders, serverRows(registry, time.Now()))
	return nil
}

var serverTableHeaders = []string{"SERIAL", "NICKNAME", "ADDRESS", "LAST SEEN"}

// serverRows renders the registry in Serials order
func serverRows(registry *config.Registry, now time.Time) [][]string {
	serials := registry.Serials()
	rows := make([][]string, 0, len(serials))
	for _, serial := range serials {
		server := registry.GetServer(serial)
		address := "-"
		if server.LastAddress != "" {
			address = server.LastAddress + ":" + strconv.Itoa(server.LastPort)
		}
		nickname := server.Nickname
		if nickname == "" {
			nickname = "-"
		}
		rows = append(rows, []string{serial, nickname, address, lastSeen(server.LastSeen, now)})
	}
	return rows
}

// lastSeen formats a timestamp relative to now
func lastSeen(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}

var serversForgetCmd = &cobra.Command{
	Use:   "forget <serial>",
	Short: "Remove a server from the list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if !registry.ForgetServer(args[0]) {
			return fmt.Errorf("unknown server %q", args[0])
		}
		if err := registry.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Forgot server %s\n", args[0])
		return nil
	},
}

var serversNicknameCmd = &cobra.Command{
	Use:   "nickname <serial> <name>",
	Short: "Give a server a friendly name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if registry.GetServer(args[0]) == nil {
			return fmt.Errorf("unknown server %q", args[0])
		}
		registry.SetServerNickname(args[0], args[1])
		if err := registry.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server %s is now %q\n", args[0], args[1])
		return nil
	},
}

var serversClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every recorded server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := config.LoadRegistry()
		if err != nil {
			return err
		}
		if len(registry.Servers) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No servers recorded.")
			return nil
		}

		if !clearYes {
			warnings := []string{
				fmt.Sprintf("%d server(s) and their nicknames will be removed", len(registry.Servers)),
				"Network settings in the config file are kept",
			}
			if !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Clear server list", warnings) {
				return nil
			}
		}

		registry.Servers = make(map[string]*config.Server)
		if err := registry.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Server list cleared.")
		return nil
	},
}
