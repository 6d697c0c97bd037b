// pkg/driver/errors.go
package driver

import (
	"errors"
	"fmt"
)

var (
	// ErrDevice is the root of every device-level failure
	ErrDevice = errors.New("device error")

	// ErrDeviceCommand marks an outgoing value rejected before any I/O
	ErrDeviceCommand = fmt.Errorf("%w: invalid command", ErrDevice)

	// ErrDeviceReply marks a reply that could not be parsed or cast
	ErrDeviceReply = fmt.Errorf("%w: invalid reply", ErrDevice)

	// ErrDeviceInternal marks an error state reported by the device itself
	ErrDeviceInternal = fmt.Errorf("%w: device reported an error", ErrDeviceReply)

	// ErrUnknownCommand is returned for a command name not in the table
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrDevice)

	// ErrInvalidCommand is returned when a command descriptor is malformed
	ErrInvalidCommand = fmt.Errorf("%w: malformed command descriptor", ErrDevice)
)

// CommandError builds an ErrDeviceCommand with detail
func CommandError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDeviceCommand, fmt.Sprintf(format, args...))
}

// ReplyError builds an ErrDeviceReply with detail
func ReplyError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDeviceReply, fmt.Sprintf(format, args...))
}

// InternalError builds an ErrDeviceInternal with detail
func InternalError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDeviceInternal, fmt.Sprintf(format, args...))
}
