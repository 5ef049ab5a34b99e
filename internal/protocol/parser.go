package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Validation failures. Parse functions wrap these with packet details, so
// compare with errors.Is.
var (
	ErrPacketTooShort    = errors.New("packet too short")
	ErrBadHeader         = errors.New("magic header mismatch")
	ErrUnexpectedCommand = errors.New("unexpected command")
	ErrInvalidPort       = errors.New("invalid port")
)

// Packet is the fixed prefix shared by both datagram kinds
type Packet struct {
	Command uint16
	Port    int32
	Payload []byte // Bytes after the prefix (serial number for announces)
}

// Announce is a validated server announcement
type Announce struct {
	ServerPort int
	Serial     string
}

func (a *Announce) String() string {
	return fmt.Sprintf("Announce{port=%d, serial=%q}", a.ServerPort, a.Serial)
}

// DiscoveryRequest is a validated discovery request
type DiscoveryRequest struct {
	ListenPort int
}

// ParsePacket checks length and magic header and decodes the shared prefix.
// Command and port are not checked here.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < MinPacketSize {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrPacketTooShort, len(data), MinPacketSize)
	}

	if !bytes.HasPrefix(data, magicHeader[:]) {
		return nil, fmt.Errorf("%w: % x", ErrBadHeader, data[:HeaderSize])
	}

	return &Packet{
		Command: binary.BigEndian.Uint16(data[HeaderSize : HeaderSize+2]),
		Port:    int32(binary.BigEndian.Uint32(data[HeaderSize+2 : MinPacketSize])),
		Payload: data[MinPacketSize:],
	}, nil
}

// ParseAnnounce validates and decodes an announce datagram.
//
// Validation checks:
//   - Length at least MinPacketSize
//   - Magic header
//   - Command is CommandAnnounce
//   - Server port is positive
//
// The serial number is copied out of data, so the caller may reuse its buffer.
func ParseAnnounce(data []byte) (*Announce, error) {
	p, err := ParsePacket(data)
	if err != nil {
		return nil, err
	}

	if p.Command != CommandAnnounce {
		return nil, fmt.Errorf("%w: %d (expected %d)", ErrUnexpectedCommand, p.Command, CommandAnnounce)
	}

	if p.Port <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, p.Port)
	}

	return &Announce{
		ServerPort: int(p.Port),
		Serial:     strings.ToValidUTF8(string(p.Payload), "�"),
	}, nil
}

// ValidateAnnounce returns nil if data is an acceptable announce.
func ValidateAnnounce(data []byte) error {
	_, err := ParseAnnounce(data)
	return err
}

// ParseDiscoveryRequest validates and decodes a discovery request. Trailing
// bytes after the prefix are ignored.
func ParseDiscoveryRequest(data []byte) (*DiscoveryRequest, error) {
	p, err := ParsePacket(data)
	if err != nil {
		return nil, err
	}

	if p.Command != CommandDiscover {
		return nil, fmt.Errorf("%w: %d (expected %d)", ErrUnexpectedCommand, p.Command, CommandDiscover)
	}

	if p.Port <= 0 || p.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, p.Port)
	}

	return &DiscoveryRequest{ListenPort: int(p.Port)}, nil
}
