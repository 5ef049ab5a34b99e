package discovery

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorType represents the stage of a search that failed
type ErrorType int

const (
	// ErrTypeBind indicates the listener could not bind its port
	ErrTypeBind ErrorType = iota
	// ErrTypeSend indicates the discovery request could not be sent
	ErrTypeSend
	// ErrTypeReceive indicates a receive failure not caused by Stop
	ErrTypeReceive
	// ErrTypeInterrupted indicates the caller cancelled the search
	ErrTypeInterrupted
)

// SocketErrorSubtype narrows down why a socket operation failed
type SocketErrorSubtype int

const (
	SocketErrorGeneral SocketErrorSubtype = iota
	SocketErrorAddressInUse
	SocketErrorPermission
	SocketErrorNetworkUnreachable
	SocketErrorHostUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeBind:
		return "Bind Error"
	case ErrTypeSend:
		return "Send Error"
	case ErrTypeReceive:
		return "Receive Error"
	case ErrTypeInterrupted:
		return "Interrupted"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is returned by the listener, sender and searcher
type Error struct {
	Type    ErrorType          // Stage that failed
	Message string             // Human-readable error message
	Err     error              // Underlying error (if any)
	Subtype SocketErrorSubtype // Socket-level classification
	Port    int                // Port involved (listen port for bind, server port for send)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifySocketError wraps a socket error for the given stage, recognising
// the errno values that matter for broadcast discovery.
func ClassifySocketError(typ ErrorType, err error, port int) *Error {
	if err == nil {
		return nil
	}

	e := &Error{
		Type:    typ,
		Message: fmt.Sprintf("socket operation on port %d failed", port),
		Err:     err,
		Port:    port,
	}

	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		e.Subtype = SocketErrorAddressInUse
		e.Message = fmt.Sprintf("port %d already in use", port)
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		e.Subtype = SocketErrorPermission
		e.Message = fmt.Sprintf("permission denied on port %d", port)
	case errors.Is(err, syscall.ENETUNREACH):
		e.Subtype = SocketErrorNetworkUnreachable
		e.Message = "network unreachable"
	case errors.Is(err, syscall.EHOSTUNREACH):
		e.Subtype = SocketErrorHostUnreachable
		e.Message = "host unreachable"
	}

	return e
}

// newInterruptedError wraps a context error
func newInterruptedError(stage string, err error) *Error {
	return &Error{
		Type:    ErrTypeInterrupted,
		Message: fmt.Sprintf("search interrupted while %s", stage),
		Err:     err,
	}
}

// IsBindError reports whether err is a listener bind failure
func IsBindError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrTypeBind
}

// IsInterrupted reports whether err came from a cancelled search
func IsInterrupted(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrTypeInterrupted
}

// isClosedConnError reports whether err is the receive error produced by
// closing the socket under a blocked ReadFrom
func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
