// Package protocol implements the udpsearch discovery datagram format.
//
// A client locates servers on the local network by broadcasting a discovery
// request and waiting for an announce reply. Both datagrams share the same
// prefix and use network byte order (big-endian) for every integer field.
//
// # Packet Layout
//
// Discovery request (client → 255.255.255.255:server port):
//
//	[0-7]   header         Magic header, eight bytes of 0x07
//	[8-9]   command        uint16, CommandDiscover (1)
//	[10-13] listen port    int32, UDP port the client listens on for replies
//
// Announce (server → client listen port):
//
//	[0-7]   header         Magic header
//	[8-9]   command        uint16, CommandAnnounce (2)
//	[10-13] server port    int32, port the server accepts connections on
//	[14+]   serial number  UTF-8 text, rest of the datagram
//
// # Validation
//
// An announce is accepted only when it is at least MinPacketSize bytes long,
// starts with the magic header, carries CommandAnnounce and a positive port.
// Anything else is reported with one of the sentinel errors (ErrPacketTooShort,
// ErrBadHeader, ErrUnexpectedCommand, ErrInvalidPort) so that callers can skip
// stray broadcast traffic without tearing down their receive loop.
//
// # Usage Example
//
//	req, err := protocol.BuildDiscoveryRequest(30202)
//	if err != nil {
//	    return err
//	}
//	_, err = conn.WriteTo(req, broadcastAddr)
//
//	n, addr, err := conn.ReadFrom(buf)
//	announce, err := protocol.ParseAnnounce(buf[:n])
//	if errors.Is(err, protocol.ErrBadHeader) {
//	    // not one of ours
//	}
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package protocol
