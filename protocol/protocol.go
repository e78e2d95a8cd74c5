// Package protocol implements the remcp wire protocol codec.
//
// The protocol is line-oriented: each command and response is a single
// newline-terminated ASCII line with whitespace-separated fields. Binary
// payload bytes follow a NEXT response with the announced length. The
// codec is pure: it performs no I/O and decoding is total, mapping every
// input line to exactly one response variant.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Command identifies the transfer direction requested by a client.
type Command uint8

const (
	// CommandGet requests a download from the server.
	CommandGet Command = iota
	// CommandPut requests an upload to the server.
	CommandPut
)

// String returns the wire verb for the command.
func (c Command) String() string {
	if c == CommandPut {
		return "PUT"
	}
	return "GET"
}

// Request is the parsed form of the single command line that opens a
// connection. It is immutable after parsing.
type Request struct {
	Command Command
	Path    string
	Offset  uint64
	// TotalSize is the full size of the uploaded file. Only meaningful
	// for PUT.
	TotalSize uint64
}

// Encode renders the request as its newline-terminated wire line.
func (r Request) Encode() string {
	if r.Command == CommandPut {
		return fmt.Sprintf("PUT %s %d %d\n", r.Path, r.Offset, r.TotalSize)
	}
	return fmt.Sprintf("GET %s %d\n", r.Path, r.Offset)
}

// ParseRequest parses a command line received by the server. The verb is
// matched case-insensitively. Numeric fields that fail to parse decode as
// zero. Errors are the sentinel taxonomy values: ErrInvalidCommand for an
// empty line, ErrMissingArguments for a recognized verb with too few
// fields, ErrUnknownCommand otherwise.
func ParseRequest(line string) (Request, error) {
	fields := strings.Fields(strings.TrimRight(line, "\r\n"))
	if len(fields) == 0 {
		return Request{}, ErrInvalidCommand
	}

	switch strings.ToUpper(fields[0]) {
	case "GET":
		if len(fields) < 3 {
			return Request{}, ErrMissingArguments
		}
		offset, _ := strconv.ParseUint(fields[2], 10, 64)
		return Request{
			Command: CommandGet,
			Path:    fields[1],
			Offset:  offset,
		}, nil
	case "PUT":
		if len(fields) < 4 {
			return Request{}, ErrMissingArguments
		}
		offset, _ := strconv.ParseUint(fields[2], 10, 64)
		totalSize, _ := strconv.ParseUint(fields[3], 10, 64)
		return Request{
			Command:   CommandPut,
			Path:      fields[1],
			Offset:    offset,
			TotalSize: totalSize,
		}, nil
	default:
		return Request{}, ErrUnknownCommand
	}
}
