package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by ParseRequest for malformed command lines.
var (
	// ErrInvalidCommand indicates an empty or unreadable command line
	ErrInvalidCommand = errors.New("Invalid command")

	// ErrMissingArguments indicates a recognized verb with too few fields
	ErrMissingArguments = errors.New("Missing arguments")

	// ErrUnknownCommand indicates a verb that is neither GET nor PUT
	ErrUnknownCommand = errors.New("Unknown command")

	// ErrServerBusy indicates the server refused the connection at admission
	ErrServerBusy = errors.New("Server is busy")
)

// ErrorKind classifies an ERR line received from the server.
type ErrorKind uint8

const (
	// ErrorKindInvalidCommand corresponds to "ERR Invalid command".
	ErrorKindInvalidCommand ErrorKind = iota
	// ErrorKindMissingArguments corresponds to "ERR Missing arguments".
	ErrorKindMissingArguments
	// ErrorKindUnknownCommand corresponds to "ERR Unknown command".
	ErrorKindUnknownCommand
	// ErrorKindBusy corresponds to "ERR Server is busy".
	ErrorKindBusy
	// ErrorKindFile is a server-side file open/create failure with detail.
	ErrorKindFile
	// ErrorKindOther carries any response line the codec cannot classify.
	ErrorKindOther
)

// String returns the human-readable name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindInvalidCommand:
		return "invalid command"
	case ErrorKindMissingArguments:
		return "missing arguments"
	case ErrorKindUnknownCommand:
		return "unknown command"
	case ErrorKindBusy:
		return "server busy"
	case ErrorKindFile:
		return "file error"
	default:
		return "other"
	}
}

// WireError is a failure reported by the peer over the protocol.
// Kind classifies the failure; Detail carries the free-form remainder
// for file and unclassified errors.
type WireError struct {
	Kind   ErrorKind
	Detail string
}

func (e *WireError) Error() string {
	switch e.Kind {
	case ErrorKindInvalidCommand:
		return "Invalid command"
	case ErrorKindMissingArguments:
		return "Missing arguments"
	case ErrorKindUnknownCommand:
		return "Unknown command"
	case ErrorKindBusy:
		return "Server is busy"
	case ErrorKindFile:
		return fmt.Sprintf("File error: %s", e.Detail)
	default:
		return fmt.Sprintf("Other error: %s", e.Detail)
	}
}

// WireString returns the payload of the ERR line announcing this error,
// without the "ERR " prefix.
func (e *WireError) WireString() string {
	return e.Error()
}

// Retryable reports whether the error is transient from the client's
// point of view. Only admission rejections qualify.
func (e *WireError) Retryable() bool {
	return e.Kind == ErrorKindBusy
}

// parseWireError classifies the payload of an ERR line.
func parseWireError(payload string) *WireError {
	switch payload {
	case "Invalid command":
		return &WireError{Kind: ErrorKindInvalidCommand}
	case "Missing arguments":
		return &WireError{Kind: ErrorKindMissingArguments}
	case "Unknown command":
		return &WireError{Kind: ErrorKindUnknownCommand}
	case "Server is busy":
		return &WireError{Kind: ErrorKindBusy}
	}
	if detail, ok := strings.CutPrefix(payload, "File error: "); ok {
		return &WireError{Kind: ErrorKindFile, Detail: detail}
	}
	return &WireError{Kind: ErrorKindFile, Detail: payload}
}
