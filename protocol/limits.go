package protocol

import (
	"errors"
	"fmt"
)

const (
	// DefaultPort is the TCP port the server listens on.
	DefaultPort = 7878

	// DefaultTransferRate is the nominal total bandwidth budget in
	// bytes per second, divided fairly across active clients.
	DefaultTransferRate = 256

	// DefaultMaxClients is the number of simultaneously connected
	// clients accepted before new connections are rejected as busy.
	DefaultMaxClients = 5

	// MaxLineLength bounds a single protocol line. Longer lines are
	// rejected before parsing to prevent memory exhaustion.
	MaxLineLength = 4096

	// MaxPathLength bounds the path field of a request. The value
	// matches typical filesystem limits for a full path.
	MaxPathLength = 4000
)

var (
	// ErrLineTooLong indicates a protocol line exceeds MaxLineLength
	ErrLineTooLong = errors.New("protocol line too long")

	// ErrPathTooLong indicates a request path exceeds MaxPathLength
	ErrPathTooLong = errors.New("request path too long")
)

// ValidateLine validates a raw protocol line against MaxLineLength.
// Returns an error with context including the actual and maximum sizes.
func ValidateLine(line string) error {
	if len(line) > MaxLineLength {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrLineTooLong, len(line), MaxLineLength)
	}
	return nil
}

// ValidatePathLength validates a request path against MaxPathLength.
func ValidatePathLength(path string) error {
	if len(path) > MaxPathLength {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrPathTooLong, len(path), MaxPathLength)
	}
	return nil
}
