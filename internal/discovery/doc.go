// Package discovery finds udpsearch servers on the local network.
//
// The primary path is UDP broadcast. A Searcher binds a Listener on the
// client listen port, sends one discovery request to the limited broadcast
// address on the server port and waits a bounded time for the first valid
// announce:
//
//	info, err := discovery.SearchServer(5 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if info == nil {
//	    fmt.Println("no server found")
//	    return
//	}
//	fmt.Println(info) // Server SN-001 at 192.168.1.20:9000
//
// The request is only sent once the listener socket is bound, so a fast
// responder cannot answer into a closed port. Malformed datagrams are logged
// and skipped. Only the first valid announce is returned; later ones are kept
// by the Listener and available through Stop.
//
// A Browser offers a second path over mDNS for networks that filter
// broadcast traffic. Responders advertise the "_udpsearch._udp" service with
// their serial number in the "sn" TXT record.
//
// # Errors
//
// Socket failures are returned as *Error with a stage (bind, send, receive,
// interrupted) and a socket subtype such as SocketErrorAddressInUse. A failed
// send does not abort a search: the searcher waits out its timeout and
// reports no server.
package discovery
