package matter

import (
	"errors"
	"fmt"
)

// Domain errors for the Matter server client package.
var (
	// ErrNotConnected is returned when an operation requires a connection
	// but the client is not connected to the Matter server.
	ErrNotConnected = errors.New("matter: not connected to server")

	// ErrConnectionFailed is returned when the connection to the Matter
	// server cannot be established.
	ErrConnectionFailed = errors.New("matter: connection to server failed")

	// ErrTimeout is returned when a command does not receive a response
	// within its deadline.
	ErrTimeout = errors.New("matter: command timed out")

	// ErrCommandFailed is returned when the Matter server rejects a
	// command. The wrapped CommandError carries the server's error code.
	ErrCommandFailed = errors.New("matter: command failed")

	// ErrInvalidMessage is returned when a received message cannot be
	// decoded.
	ErrInvalidMessage = errors.New("matter: invalid message")

	// ErrClosed is returned when an operation is attempted on a closed
	// client.
	ErrClosed = errors.New("matter: client closed")
)

// CommandError carries the error code and details reported by the Matter
// server for a rejected command. It unwraps to ErrCommandFailed so
// callers can match with errors.Is.
type CommandError struct {
	// Code is the server's numeric error code.
	Code int

	// Details is the server's human-readable description.
	Details string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("matter: command failed with code %d", e.Code)
	}
	return fmt.Sprintf("matter: command failed with code %d: %s", e.Code, e.Details)
}

// Unwrap allows errors.Is(err, ErrCommandFailed) to match.
func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}
