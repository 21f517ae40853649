package homeassistant

import (
	"errors"
	"fmt"
)

// Domain-specific errors for Home Assistant operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when a command is issued without a live connection,
	// or when the connection drops before the result arrives.
	ErrNotConnected = errors.New("homeassistant: not connected")

	// ErrConnectionFailed is returned when dialling or the handshake fails.
	ErrConnectionFailed = errors.New("homeassistant: connection failed")

	// ErrAuthFailed is returned when Home Assistant rejects the access token.
	// It is not retried.
	ErrAuthFailed = errors.New("homeassistant: authentication failed")

	// ErrCommandFailed is returned when a command result reports success=false.
	ErrCommandFailed = errors.New("homeassistant: command failed")

	// ErrTimeout is returned when a command result does not arrive in time.
	ErrTimeout = errors.New("homeassistant: command timed out")

	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("homeassistant: client closed")

	// ErrInvalidEntityID is returned for entity IDs without a domain prefix.
	ErrInvalidEntityID = errors.New("homeassistant: invalid entity id")
)

// CommandError carries the error object of a failed command result.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrCommandFailed, e.Message, e.Code)
}

// Unwrap lets errors.Is match ErrCommandFailed.
func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}
