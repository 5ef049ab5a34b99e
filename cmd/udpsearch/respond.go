package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/udpsearch/internal/protocol"
	"github.com/muurk/udpsearch/internal/server"
	"github.com/muurk/udpsearch/internal/ui"
)

// Respond command flags
var (
	respondHost        string
	respondPort        int
	respondServicePort int
	respondSerial      string
	respondAdvertise   bool
	respondInstance    string
)

func init() {
	respondCmd.Flags().StringVar(&respondHost, "host", "", "Address to bind (empty = all interfaces)")
	respondCmd.Flags().IntVar(&respondPort, "port", protocol.DefaultServerPort, "Port to receive discovery requests on")
	respondCmd.Flags().IntVar(&respondServicePort, "service-port", 0, "Port announced to clients (required)")
	respondCmd.Flags().StringVar(&respondSerial, "serial", "", "Serial number announced to clients (default: hostname)")
	respondCmd.Flags().BoolVar(&respondAdvertise, "advertise", false, "Also advertise the service over mDNS")
	respondCmd.Flags().StringVar(&respondInstance, "instance", "", "mDNS instance name (default: udpsearch-<serial>)")

	_ = respondCmd.MarkFlagRequired("service-port")

	rootCmd.AddCommand(respondCmd)
}

var respondCmd = &cobra.Command{
	Use:   "respond",
	Short: "Answer discovery requests",
	Long: `Run a responder that answers discovery requests with an announce.

Each request names the port the client listens on. The responder replies to
the request's source address on that port with the service port and serial
number. With --advertise the service is also registered over mDNS so that
'udpsearch browse' can find it.

The responder runs until interrupted with Ctrl-C.`,
	Example: `  # Announce service port 8080 under the machine's hostname
  udpsearch respond --service-port 8080

  # Custom serial, advertised over mDNS
  udpsearch respond --service-port 8080 --serial SN-001 --advertise

  # Listen on a non-default discovery port
  udpsearch respond --service-port 8080 --port 40000 --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runRespond,
}

func runRespond(cmd *cobra.Command, args []string) error {
	serial := respondSerial
	if serial == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("no --serial given and hostname unavailable: %w", err)
		}
		serial = hostname
	}

	srv, err := server.New(&server.Config{
		Host:        respondHost,
		Port:        respondPort,
		ServicePort: respondServicePort,
		Serial:      serial,
		Advertise:   respondAdvertise,
		Instance:    respondInstance,
	})
	if err != nil {
		return fmt.Errorf("failed to create responder: %w", err)
	}

	advertise := "disabled"
	if respondAdvertise {
		advertise = protocol.ServiceType
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.PrintHeader("RESPONDER", "udpsearch respond", []ui.Detail{
		{Key: "Discovery port", Value: strconv.Itoa(respondPort)},
		{Key: "Service port", Value: strconv.Itoa(respondServicePort)},
		{Key: "Serial", Value: serial},
		{Key: "mDNS", Value: advertise},
	})
	printer.Println("Answering discovery requests. Press Ctrl-C to stop.")

	ctx, stop := signalContext(cmd)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return err
	}

	printer.PrintSuccess("Responder stopped", []ui.Detail{
		{Key: "Replies sent", Value: strconv.FormatInt(srv.Replies(), 10)},
	})
	return nil
}
