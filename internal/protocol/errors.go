// internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is the root of every transport failure
	ErrConnection = errors.New("connection error")

	// ErrConnectionProtocol marks malformed traffic at the framing level:
	// bad encoding, unknown transport protocol, HTTP error status
	ErrConnectionProtocol = fmt.Errorf("%w: protocol violation", ErrConnection)

	// ErrConnectionTimeout marks a reply that never arrived in time
	ErrConnectionTimeout = fmt.Errorf("%w: timeout", ErrConnection)
)

func connectionError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConnection, fmt.Sprintf(format, args...))
}

func protocolError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConnectionProtocol, fmt.Sprintf(format, args...))
}

func timeoutError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConnectionTimeout, fmt.Sprintf(format, args...))
}

// wrapConnectionError keeps the cause reachable through errors.Is/As
func wrapConnectionError(kind error, cause error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %w", kind, fmt.Sprintf(format, args...), cause)
}
