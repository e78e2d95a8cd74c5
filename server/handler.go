package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/remcp/protocol"
	"github.com/opd-ai/remcp/transfer"
)

// handleConn reads one command line and runs the requested transfer. Any
// failure is confined to this connection: an ERR line is sent when
// possible and the connection closes.
func (s *Server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		logrus.WithFields(logrus.Fields{
			"function":    "handleConn",
			"remote_addr": remote,
		}).Debug("No command received")
		sendError(writer, &protocol.WireError{Kind: protocol.ErrorKindInvalidCommand})
		return
	}

	if err := protocol.ValidateLine(line); err != nil {
		sendError(writer, &protocol.WireError{Kind: protocol.ErrorKindInvalidCommand})
		return
	}

	req, err := protocol.ParseRequest(line)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "handleConn",
			"remote_addr": remote,
			"line":        line,
			"error":       err.Error(),
		}).Debug("Rejected command line")
		sendError(writer, commandError(err))
		return
	}

	if err := protocol.ValidatePathLength(req.Path); err != nil {
		sendError(writer, &protocol.WireError{Kind: protocol.ErrorKindInvalidCommand})
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":    "handleConn",
		"remote_addr": remote,
		"command":     req.Command.String(),
		"path":        req.Path,
		"offset":      req.Offset,
	}).Info("Handling request")

	switch req.Command {
	case protocol.CommandGet:
		s.handleGet(writer, req)
	case protocol.CommandPut:
		s.handlePut(reader, writer, req)
	}
}

// commandError maps a ParseRequest error to its wire form.
func commandError(err error) *protocol.WireError {
	switch {
	case errors.Is(err, protocol.ErrMissingArguments):
		return &protocol.WireError{Kind: protocol.ErrorKindMissingArguments}
	case errors.Is(err, protocol.ErrUnknownCommand):
		return &protocol.WireError{Kind: protocol.ErrorKindUnknownCommand}
	default:
		return &protocol.WireError{Kind: protocol.ErrorKindInvalidCommand}
	}
}

// sendError writes one ERR line. Write failures are ignored: the
// connection is closing either way.
func sendError(w *bufio.Writer, werr *protocol.WireError) {
	w.WriteString(protocol.EncodeError(werr))
	w.Flush()
}

// handleGet streams the requested file range to the client in fair-sized
// chunks.
func (s *Server) handleGet(writer *bufio.Writer, req protocol.Request) {
	file, err := os.Open(req.Path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleGet",
			"path":     req.Path,
			"error":    err.Error(),
		}).Warn("Failed to open file")
		sendError(writer, &protocol.WireError{Kind: protocol.ErrorKindFile, Detail: err.Error()})
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		sendError(writer, &protocol.WireError{Kind: protocol.ErrorKindFile, Detail: err.Error()})
		return
	}
	fileSize := uint64(info.Size())

	// Offset at or past the end is a completed download, not an error.
	if req.Offset >= fileSize {
		writer.WriteString(protocol.EncodeOKRemaining(0))
		writer.Flush()
		return
	}

	if _, err := file.Seek(int64(req.Offset), io.SeekStart); err != nil {
		sendError(writer, &protocol.WireError{Kind: protocol.ErrorKindFile, Detail: err.Error()})
		return
	}

	remaining := fileSize - req.Offset
	if _, err := writer.WriteString(protocol.EncodeOKRemaining(remaining)); err != nil {
		return
	}
	if err := writer.Flush(); err != nil {
		return
	}

	tr := transfer.New(req.Path, remaining, transfer.DirectionOutbound)
	tr.Start()

	var totalSent uint64
	for totalSent < remaining {
		chunkSize := s.controller.ChunkSize()
		if _, err := writer.WriteString(protocol.EncodeNext(chunkSize)); err != nil {
			tr.Fail(err)
			return
		}
		if err := writer.Flush(); err != nil {
			tr.Fail(err)
			return
		}

		toRead := chunkSize
		if left := remaining - totalSent; left < toRead {
			toRead = left
		}
		buf := make([]byte, toRead)
		n, err := file.Read(buf)
		if n == 0 {
			// The file shrank under us; stop without retry.
			logrus.WithFields(logrus.Fields{
				"function":   "handleGet",
				"path":       req.Path,
				"total_sent": totalSent,
				"remaining":  remaining,
				"error":      err,
			}).Warn("File ended unexpectedly during GET")
			tr.Fail(io.ErrUnexpectedEOF)
			return
		}

		if _, err := writer.Write(buf[:n]); err != nil {
			tr.Fail(err)
			return
		}
		if err := writer.Flush(); err != nil {
			tr.Fail(err)
			return
		}
		totalSent += uint64(n)
		tr.Record(uint64(n))

		s.controller.Delay(uint64(n))
	}

	tr.Complete()
}

// handlePut receives the uploaded file range, requesting one fair-sized
// chunk per protocol turn.
func (s *Server) handlePut(reader *bufio.Reader, writer *bufio.Writer, req protocol.Request) {
	if parent := filepath.Dir(req.Path); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			sendError(writer, &protocol.WireError{Kind: protocol.ErrorKindFile, Detail: err.Error()})
			return
		}
	}

	file, err := os.OpenFile(req.Path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handlePut",
			"path":     req.Path,
			"error":    err.Error(),
		}).Warn("Failed to open file")
		sendError(writer, &protocol.WireError{Kind: protocol.ErrorKindFile, Detail: err.Error()})
		return
	}
	defer file.Close()

	if _, err := file.Seek(int64(req.Offset), io.SeekStart); err != nil {
		sendError(writer, &protocol.WireError{Kind: protocol.ErrorKindFile, Detail: err.Error()})
		return
	}

	if _, err := writer.WriteString(protocol.EncodeOK()); err != nil {
		return
	}
	if err := writer.Flush(); err != nil {
		return
	}

	tr := transfer.New(req.Path, req.TotalSize-req.Offset, transfer.DirectionInbound)
	tr.Start()

	received := req.Offset
	for received < req.TotalSize {
		chunkSize := s.controller.ChunkSize()
		if _, err := writer.WriteString(protocol.EncodeNext(chunkSize)); err != nil {
			tr.Fail(err)
			return
		}
		if err := writer.Flush(); err != nil {
			tr.Fail(err)
			return
		}

		buf := make([]byte, chunkSize)
		n, err := reader.Read(buf)
		if n == 0 {
			// Peer closed early; the client owns retries.
			logrus.WithFields(logrus.Fields{
				"function":   "handlePut",
				"path":       req.Path,
				"received":   received,
				"total_size": req.TotalSize,
				"error":      err,
			}).Warn("Client closed connection before upload completed")
			tr.Fail(io.ErrUnexpectedEOF)
			return
		}

		toWrite := uint64(n)
		if left := req.TotalSize - received; left < toWrite {
			toWrite = left
		}
		if _, err := file.Write(buf[:toWrite]); err != nil {
			tr.Fail(err)
			return
		}
		received += toWrite
		tr.Record(toWrite)

		s.controller.Delay(uint64(n))
	}

	tr.Complete()
	logrus.WithFields(logrus.Fields{
		"function":   "handlePut",
		"path":       req.Path,
		"total_size": req.TotalSize,
	}).Info("Upload complete")
}
