package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ResponseKind discriminates the variants of a server response line.
type ResponseKind uint8

const (
	// ResponseOK is an acceptance line: bare "OK" for PUT, "OK <n>" for GET.
	ResponseOK ResponseKind = iota
	// ResponseNext announces a chunk of up to Size payload bytes.
	ResponseNext
	// ResponseError is an ERR line or any line the codec cannot classify.
	ResponseError
)

// Response is one decoded server response line. Exactly one variant is
// populated according to Kind.
type Response struct {
	Kind ResponseKind

	// Remaining is the byte count announced by "OK <n>". HasRemaining
	// distinguishes "OK <n>" from a bare "OK" acknowledgment.
	Remaining    uint64
	HasRemaining bool

	// Size is the chunk length announced by "NEXT <n>".
	Size uint64

	// Err is set for ResponseError.
	Err *WireError
}

// EncodeOK renders a bare PUT acknowledgment line.
func EncodeOK() string {
	return "OK\n"
}

// EncodeOKRemaining renders a GET acceptance announcing n remaining bytes.
func EncodeOKRemaining(n uint64) string {
	return fmt.Sprintf("OK %d\n", n)
}

// EncodeNext renders a chunk announcement of n bytes.
func EncodeNext(n uint64) string {
	return fmt.Sprintf("NEXT %d\n", n)
}

// EncodeError renders the ERR line announcing err.
func EncodeError(err *WireError) string {
	return fmt.Sprintf("ERR %s\n", err.WireString())
}

// ParseResponse decodes one response line. It is total: every input maps
// to exactly one Response and malformed lines become ResponseError with
// ErrorKindOther carrying the raw line.
func ParseResponse(line string) Response {
	line = strings.TrimRight(line, "\r\n")

	if payload, ok := strings.CutPrefix(line, "ERR "); ok {
		return Response{Kind: ResponseError, Err: parseWireError(payload)}
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Response{
			Kind: ResponseError,
			Err:  &WireError{Kind: ErrorKindOther, Detail: "Invalid response"},
		}
	}

	switch fields[0] {
	case "OK":
		if len(fields) == 1 {
			return Response{Kind: ResponseOK}
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return Response{
				Kind: ResponseError,
				Err:  &WireError{Kind: ErrorKindOther, Detail: line},
			}
		}
		return Response{Kind: ResponseOK, Remaining: n, HasRemaining: true}
	case "NEXT":
		if len(fields) == 2 {
			if n, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				return Response{Kind: ResponseNext, Size: n}
			}
		}
		return Response{
			Kind: ResponseError,
			Err:  &WireError{Kind: ErrorKindOther, Detail: "Invalid NEXT command format"},
		}
	default:
		return Response{
			Kind: ResponseError,
			Err:  &WireError{Kind: ErrorKindOther, Detail: line},
		}
	}
}
