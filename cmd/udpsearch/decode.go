package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/udpsearch/internal/protocol"
	"github.com/muurk/udpsearch/internal/ui"
)

var decodeFile string

func init() {
	decodeCmd.Flags().StringVarP(&decodeFile, "file", "f", "", "Read hex datagrams from a file, one per line (- for stdin)")
	rootCmd.AddCommand(decodeCmd)
}

var decodeCmd = &cobra.Command{
	Use:   "decode [hex...]",
	Short: "Decode captured discovery datagrams",
	Long: `Decode hex-encoded datagrams and report what each one is.

Each datagram is validated the way the listener and responder validate
them: magic header, command, then port. Invalid datagrams are reported with
the reason they would be dropped. Spaces and colons inside a hex string
are ignored, so dumps from the debug log or tcpdump can be pasted directly.`,
	Example: `  # Decode a single announce
  udpsearch decode 0707070707070707 0002 00001f90 534e2d303031

  # Validate a capture file
  udpsearch decode --file capture.txt`,
	RunE: runDecode,
}

// decodedDatagram is the outcome of decoding one line
type decodedDatagram struct {
	Line    int
	Hex     string
	Size    int
	Kind    string // "request", "announce" or "invalid"
	Summary string
	Err     error
}

// decodeStats tracks decoding results
type decodeStats struct {
	Total   int
	Valid   int
	Kinds   map[string]int
	Sizes   map[int]int
	Failed  []decodedDatagram
	Results []decodedDatagram
}

func newDecodeStats() *decodeStats {
	return &decodeStats{
		Kinds: make(map[string]int),
		Sizes: make(map[int]int),
	}
}

// decodeDatagram classifies one hex-encoded datagram
func decodeDatagram(line int, text string) decodedDatagram {
	clean := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(strings.TrimSpace(text))
	d := decodedDatagram{Line: line, Hex: clean, Kind: "invalid"}

	data, err := hex.DecodeString(clean)
	if err != nil {
		d.Err = fmt.Errorf("hex decode error: %w", err)
		return d
	}
	d.Size = len(data)

	packet, err := protocol.ParsePacket(data)
	if err != nil {
		d.Err = err
		return d
	}

	switch packet.Command {
	case protocol.CommandDiscover:
		req, err := protocol.ParseDiscoveryRequest(data)
		if err != nil {
			d.Err = err
			return d
		}
		d.Kind = "request"
		d.Summary = fmt.Sprintf("reply to port %d", req.ListenPort)

	case protocol.CommandAnnounce:
		announce, err := protocol.ParseAnnounce(data)
		if err != nil {
			d.Err = err
			return d
		}
		d.Kind = "announce"
		d.Summary = fmt.Sprintf("serial %q on port %d", announce.Serial, announce.ServerPort)

	default:
		d.Err = fmt.Errorf("%w: %d", protocol.ErrUnexpectedCommand, packet.Command)
	}

	return d
}

// add records one decoded datagram
func (s *decodeStats) add(d decodedDatagram) {
	s.Total++
	s.Results = append(s.Results, d)
	s.Kinds[d.Kind]++
	if d.Size > 0 {
		s.Sizes[d.Size]++
	}
	if d.Err != nil {
		s.Failed = append(s.Failed, d)
		return
	}
	s.Valid++
}

// decodeLines decodes every non-empty, non-comment line of r
func decodeLines(r io.Reader, stats *decodeStats) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stats.add(decodeDatagram(lineNum, line))
	}
	return scanner.Err()
}

func runDecode(cmd *cobra.Command, args []string) error {
	stats := newDecodeStats()

	switch {
	case decodeFile == "-":
		if err := decodeLines(cmd.InOrStdin(), stats); err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	case decodeFile != "":
		f, err := os.Open(decodeFile)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", decodeFile, err)
		}
		defer f.Close()
		if err := decodeLines(f, stats); err != nil {
			return fmt.Errorf("failed to read %s: %w", decodeFile, err)
		}
	case len(args) > 0:
		// Arguments split on spaces form one datagram
		stats.add(decodeDatagram(1, strings.Join(args, "")))
	default:
		return errors.New("give hex datagrams as arguments or use --file")
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())

	rows := make([][]string, 0, len(stats.Results))
	for _, d := range stats.Results {
		detail := d.Summary
		if d.Err != nil {
			detail = d.Err.Error()
		}
		rows = append(rows, []string{strconv.Itoa(d.Line), d.Kind, strconv.Itoa(d.Size), detail})
	}
	printer.PrintTable([]string{"LINE", "KIND", "BYTES", "DETAIL"}, rows)

	if stats.Total > 1 {
		printer.Newline()
		printer.Println(stats.summary())
	}

	if len(stats.Failed) > 0 {
		return errReported
	}
	return nil
}

// summary renders the kind and size distribution
func (s *decodeStats) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Datagrams: %d, valid: %d, invalid: %d\n", s.Total, s.Valid, len(s.Failed))

	kinds := make([]string, 0, len(s.Kinds))
	for kind := range s.Kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(&b, "  %-9s %d\n", kind, s.Kinds[kind])
	}

	sizes := make([]int, 0, len(s.Sizes))
	for size := range s.Sizes {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	for _, size := range sizes {
		fmt.Fprintf(&b, "  %3d bytes: %d\n", size, s.Sizes[size])
	}

	return strings.TrimRight(b.String(), "\n")
}
