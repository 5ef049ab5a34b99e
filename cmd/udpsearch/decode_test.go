package main

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/muurk/udpsearch/internal/protocol"
)

// mustHex hex-encodes the result of a packet builder
func mustHex(t *testing.T) func([]byte, error) string {
	return func(data []byte, err error) string {
		t.Helper()
		if err != nil {
			t.Fatalf("build error = %v", err)
		}
		return hex.EncodeToString(data)
	}
}

func TestDecodeDatagram(t *testing.T) {
	announce := mustHex(t)(protocol.BuildAnnounce(8080, "SN-001"))
	request := mustHex(t)(protocol.BuildDiscoveryRequest(30202))

	tests := []struct {
		name        string
		input       string
		wantKind    string
		wantSummary string
		wantErr     error
	}{
		{
			name:        "announce",
			input:       announce,
			wantKind:    "announce",
			wantSummary: `serial "SN-001" on port 8080`,
		},
		{
			name:        "request",
			input:       request,
			wantKind:    "request",
			wantSummary: "reply to port 30202",
		},
		{
			name:        "spaced dump",
			input:       "07 07 07 07 07 07 07 07 00 01 00 00 75 fa",
			wantKind:    "request",
			wantSummary: "reply to port 30202",
		},
		{
			name:        "colon separated",
			input:       "07:07:07:07:07:07:07:07:00:02:00:00:1f:90",
			wantKind:    "announce",
			wantSummary: `serial "" on port 8080`,
		},
		{
			name:     "too short",
			input:    "0707",
			wantKind: "invalid",
			wantErr:  protocol.ErrPacketTooShort,
		},
		{
			name:     "bad header",
			input:    "0807070707070707" + "0002" + "00001f90",
			wantKind: "invalid",
			wantErr:  protocol.ErrBadHeader,
		},
		{
			name:     "unknown command",
			input:    "0707070707070707" + "0009" + "00001f90",
			wantKind: "invalid",
			wantErr:  protocol.ErrUnexpectedCommand,
		},
		{
			name:     "zero port announce",
			input:    "0707070707070707" + "0002" + "00000000",
			wantKind: "invalid",
			wantErr:  protocol.ErrInvalidPort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decodeDatagram(1, tt.input)
			if d.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", d.Kind, tt.wantKind)
			}
			if tt.wantErr != nil {
				if !errors.Is(d.Err, tt.wantErr) {
					t.Errorf("Err = %v, want %v", d.Err, tt.wantErr)
				}
				return
			}
			if d.Err != nil {
				t.Fatalf("Err = %v, want nil", d.Err)
			}
			if d.Summary != tt.wantSummary {
				t.Errorf("Summary = %q, want %q", d.Summary, tt.wantSummary)
			}
		})
	}
}

func TestDecodeDatagram_BadHex(t *testing.T) {
	d := decodeDatagram(3, "zz")
	if d.Err == nil || d.Kind != "invalid" {
		t.Errorf("decodeDatagram(zz) = %+v, want invalid with error", d)
	}
	if d.Line != 3 {
		t.Errorf("Line = %d, want 3", d.Line)
	}
}

func TestDecodeLines(t *testing.T) {
	announce := mustHex(t)(protocol.BuildAnnounce(9000, "SN-7"))
	input := strings.Join([]string{
		"# capture from the lab switch",
		announce,
		"",
		"0707",
		announce,
	}, "\n")

	stats := newDecodeStats()
	if err := decodeLines(strings.NewReader(input), stats); err != nil {
		t.Fatalf("decodeLines() error = %v", err)
	}

	if stats.Total != 3 || stats.Valid != 2 || len(stats.Failed) != 1 {
		t.Errorf("Total=%d Valid=%d Failed=%d, want 3/2/1", stats.Total, stats.Valid, len(stats.Failed))
	}
	if stats.Kinds["announce"] != 2 || stats.Kinds["invalid"] != 1 {
		t.Errorf("Kinds = %v", stats.Kinds)
	}
	if stats.Failed[0].Line != 4 {
		t.Errorf("failed line = %d, want 4", stats.Failed[0].Line)
	}

	summary := stats.summary()
	for _, want := range []string{"Datagrams: 3, valid: 2, invalid: 1", "announce", "18 bytes: 2"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary() missing %q:\n%s", want, summary)
		}
	}
}
