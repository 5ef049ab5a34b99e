// Package server implements the responder side of udpsearch discovery.
//
// A Server binds the well-known discovery port (30201 by default) and answers
// every valid discovery request with an announce sent to the requesting
// host on the listen port named in the request. The announce carries the
// configured service port and serial number.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{
//	    Port:        protocol.DefaultServerPort,
//	    ServicePort: 9000,
//	    Serial:      "SN-001",
//	    Advertise:   true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # mDNS
//
// With Advertise set, the responder also registers a "_udpsearch._udp"
// service whose TXT record "sn" holds the serial number. Registration errors
// are logged and do not stop the broadcast responder.
//
// Requests that fail validation are logged at debug level and ignored.
package server
