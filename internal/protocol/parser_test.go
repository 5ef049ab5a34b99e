package protocol

import (
	"encoding/binary"
	"errors"
	"testing"
)

// rawPacket builds a packet with arbitrary header, command and port.
func rawPacket(header []byte, command uint16, port int32, payload string) []byte {
	p := make([]byte, 0, MinPacketSize+len(payload))
	p = append(p, header...)
	p = binary.BigEndian.AppendUint16(p, command)
	p = binary.BigEndian.AppendUint32(p, uint32(port))
	return append(p, payload...)
}

func TestParseAnnounce(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantErr    error
		wantPort   int
		wantSerial string
	}{
		{
			name:       "valid announce",
			data:       rawPacket(MagicHeader(), CommandAnnounce, 9000, "SN-001"),
			wantPort:   9000,
			wantSerial: "SN-001",
		},
		{
			name:       "valid announce without serial",
			data:       rawPacket(MagicHeader(), CommandAnnounce, 1, ""),
			wantPort:   1,
			wantSerial: "",
		},
		{
			name:       "utf-8 serial",
			data:       rawPacket(MagicHeader(), CommandAnnounce, 443, "设备-7"),
			wantPort:   443,
			wantSerial: "设备-7",
		},
		{
			name:    "empty",
			data:    nil,
			wantErr: ErrPacketTooShort,
		},
		{
			name:    "one byte short",
			data:    rawPacket(MagicHeader(), CommandAnnounce, 9000, "")[:MinPacketSize-1],
			wantErr: ErrPacketTooShort,
		},
		{
			name:    "header only",
			data:    MagicHeader(),
			wantErr: ErrPacketTooShort,
		},
		{
			name:    "wrong header",
			data:    rawPacket([]byte{7, 7, 7, 7, 7, 7, 7, 8}, CommandAnnounce, 9000, "SN"),
			wantErr: ErrBadHeader,
		},
		{
			name:    "discover command",
			data:    rawPacket(MagicHeader(), CommandDiscover, 9000, "SN"),
			wantErr: ErrUnexpectedCommand,
		},
		{
			name:    "unknown command",
			data:    rawPacket(MagicHeader(), 5, 9000, "SN"),
			wantErr: ErrUnexpectedCommand,
		},
		{
			name:    "zero port",
			data:    rawPacket(MagicHeader(), CommandAnnounce, 0, "SN"),
			wantErr: ErrInvalidPort,
		},
		{
			name:    "negative port",
			data:    rawPacket(MagicHeader(), CommandAnnounce, -9000, "SN"),
			wantErr: ErrInvalidPort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			announce, err := ParseAnnounce(tt.data)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseAnnounce() error = %v, want %v", err, tt.wantErr)
				}
				if announce != nil {
					t.Errorf("ParseAnnounce() = %v, want nil on error", announce)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseAnnounce() unexpected error = %v", err)
			}
			if announce.ServerPort != tt.wantPort {
				t.Errorf("ServerPort = %d, want %d", announce.ServerPort, tt.wantPort)
			}
			if announce.Serial != tt.wantSerial {
				t.Errorf("Serial = %q, want %q", announce.Serial, tt.wantSerial)
			}
		})
	}
}

// Every prefix shorter than the minimum is rejected, whatever it contains.
func TestParseAnnounce_ShortBuffersAlwaysRejected(t *testing.T) {
	full := rawPacket(MagicHeader(), CommandAnnounce, 9000, "")
	junk := []byte{0xff, 0x00, 0x07, 0x02, 0x7f, 0x80, 0x01, 0xfe, 0x00, 0x02, 0x00, 0x00, 0x23}

	for n := 0; n < MinPacketSize; n++ {
		for _, buf := range [][]byte{full[:n], junk[:n]} {
			if err := ValidateAnnounce(buf); !errors.Is(err, ErrPacketTooShort) {
				t.Errorf("ValidateAnnounce(%d bytes) error = %v, want ErrPacketTooShort", n, err)
			}
		}
	}
}

// Any single-byte corruption of the header is rejected.
func TestParseAnnounce_HeaderCorruptionRejected(t *testing.T) {
	for i := 0; i < HeaderSize; i++ {
		data := rawPacket(MagicHeader(), CommandAnnounce, 9000, "SN-001")
		data[i] ^= 0x01

		if err := ValidateAnnounce(data); !errors.Is(err, ErrBadHeader) {
			t.Errorf("corrupted header byte %d: error = %v, want ErrBadHeader", i, err)
		}
	}
}

func TestParseAnnounce_CopiesSerial(t *testing.T) {
	data := rawPacket(MagicHeader(), CommandAnnounce, 9000, "SN-001")

	announce, err := ParseAnnounce(data)
	if err != nil {
		t.Fatalf("ParseAnnounce() error = %v", err)
	}

	copy(data[MinPacketSize:], "XXXXXX")
	if announce.Serial != "SN-001" {
		t.Errorf("Serial changed with buffer reuse: %q", announce.Serial)
	}
}

func TestParseAnnounce_InvalidUTF8(t *testing.T) {
	data := rawPacket(MagicHeader(), CommandAnnounce, 9000, "SN\xff1")

	announce, err := ParseAnnounce(data)
	if err != nil {
		t.Fatalf("ParseAnnounce() error = %v", err)
	}
	if announce.Serial != "SN�1" {
		t.Errorf("Serial = %q, want replacement character for invalid byte", announce.Serial)
	}
}

func TestParseDiscoveryRequest(t *testing.T) {
	req, err := BuildDiscoveryRequest(30202)
	if err != nil {
		t.Fatalf("BuildDiscoveryRequest() error = %v", err)
	}

	parsed, err := ParseDiscoveryRequest(req)
	if err != nil {
		t.Fatalf("ParseDiscoveryRequest() error = %v", err)
	}
	if parsed.ListenPort != 30202 {
		t.Errorf("ListenPort = %d, want 30202", parsed.ListenPort)
	}

	// Trailing padding is tolerated
	padded := append(req, 0x00)
	if _, err := ParseDiscoveryRequest(padded); err != nil {
		t.Errorf("ParseDiscoveryRequest() with padding error = %v", err)
	}
}

func TestParseDiscoveryRequest_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"too short", MagicHeader(), ErrPacketTooShort},
		{"announce instead", rawPacket(MagicHeader(), CommandAnnounce, 30202, ""), ErrUnexpectedCommand},
		{"zero port", rawPacket(MagicHeader(), CommandDiscover, 0, ""), ErrInvalidPort},
		{"port above range", rawPacket(MagicHeader(), CommandDiscover, 70000, ""), ErrInvalidPort},
		{"bad header", rawPacket([]byte("UDPSRCH!"), CommandDiscover, 30202, ""), ErrBadHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDiscoveryRequest(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseDiscoveryRequest() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
