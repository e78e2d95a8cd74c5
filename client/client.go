// Package client implements the remcp transfer orchestrator.
//
// A Client drives one GET or PUT against a server, resuming from the
// local ".part" marker and wrapping each transfer in a bounded retry
// loop. Every attempt recomputes the resume offset, so an attempt that
// made partial progress shortens the work left for the next one.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/remcp/partial"
	"github.com/opd-ai/remcp/protocol"
	"github.com/opd-ai/remcp/rate"
	"github.com/opd-ai/remcp/transfer"
)

// ErrUnexpectedResponse indicates the server broke the protocol turn
// order or sent a malformed acceptance line. Never retried.
var ErrUnexpectedResponse = errors.New("unexpected server response")

// ErrLocalFileTruncated indicates the local file shrank below the
// announced total during an upload. Never retried.
var ErrLocalFileTruncated = errors.New("local file truncated during upload")

// DefaultDialTimeout bounds the TCP connect of one attempt.
const DefaultDialTimeout = 10 * time.Second

// Client performs transfers against one server. The zero value is not
// usable; construct with New.
type Client struct {
	port        int
	dialTimeout time.Duration
	policy      Policy
	sleeper     rate.Sleeper
	progress    func(transferred, total uint64)
}

// Option configures a Client.
type Option func(*Client)

// WithPort overrides the server port.
func WithPort(port int) Option {
	return func(c *Client) { c.port = port }
}

// WithPolicy replaces the retry policy.
func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithSleeper injects the pause implementation used for retry backoff.
func WithSleeper(s rate.Sleeper) Option {
	return func(c *Client) { c.sleeper = s }
}

// WithDialTimeout overrides the per-attempt connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithProgress registers a callback invoked after each received or sent
// chunk with the attempt's running byte counts.
func WithProgress(fn func(transferred, total uint64)) Option {
	return func(c *Client) { c.progress = fn }
}

// New creates a client with default port, retry policy, and timeouts.
func New(opts ...Option) *Client {
	c := &Client{
		port:        protocol.DefaultPort,
		dialTimeout: DefaultDialTimeout,
		policy:      DefaultPolicy(),
		sleeper:     rate.RealSleeper{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get downloads host:remotePath into localPath, resuming from the local
// marker and retrying per the client's policy.
func (c *Client) Get(host, remotePath, localPath string) error {
	logrus.WithFields(logrus.Fields{
		"function":    "Get",
		"host":        host,
		"remote_path": remotePath,
		"local_path":  localPath,
	}).Info("Starting download")

	return c.policy.Do(c.sleeper, func() error {
		return c.getAttempt(host, remotePath, localPath)
	})
}

// Put uploads localPath to host:remotePath, resuming from the local
// marker and retrying per the client's policy.
func (c *Client) Put(localPath, host, remotePath string) error {
	logrus.WithFields(logrus.Fields{
		"function":    "Put",
		"host":        host,
		"remote_path": remotePath,
		"local_path":  localPath,
	}).Info("Starting upload")

	return c.policy.Do(c.sleeper, func() error {
		return c.putAttempt(localPath, host, remotePath)
	})
}

func (c *Client) dial(host string) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(c.port))
	conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return conn, nil
}

// getAttempt runs one download attempt from the current resume offset.
func (c *Client) getAttempt(host, remotePath, localPath string) error {
	offset, partPath := partial.Locate(localPath)

	conn, err := c.dial(host)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := protocol.Request{Command: protocol.CommandGet, Path: remotePath, Offset: offset}
	if _, err := conn.Write([]byte(req.Encode())); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", io.ErrUnexpectedEOF)
	}

	resp := protocol.ParseResponse(line)
	switch resp.Kind {
	case protocol.ResponseError:
		return resp.Err
	case protocol.ResponseNext:
		return fmt.Errorf("%w: NEXT before OK", ErrUnexpectedResponse)
	}
	if !resp.HasRemaining {
		return fmt.Errorf("%w: OK without remaining count", ErrUnexpectedResponse)
	}

	if resp.Remaining == 0 {
		logrus.WithFields(logrus.Fields{
			"function":   "getAttempt",
			"local_path": localPath,
			"offset":     offset,
		}).Info("Nothing to download")
		// A zero remainder still completes the download: an existing
		// marker already holds every byte, and an empty remote file
		// yields an empty local one.
		if offset > 0 {
			return partial.Finalize(partPath, localPath)
		}
		f, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("create local file: %w", err)
		}
		return f.Close()
	}

	part, err := partial.OpenAt(partPath, offset)
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}
	defer part.Close()

	tr := transfer.New(localPath, resp.Remaining, transfer.DirectionInbound)
	if c.progress != nil {
		tr.OnProgress(c.progress)
	}
	tr.Start()

	var received uint64
	for received < resp.Remaining {
		line, err := reader.ReadString('\n')
		if err != nil {
			tr.Fail(err)
			return fmt.Errorf("connection lost after %d bytes: %w", received, io.ErrUnexpectedEOF)
		}

		turn := protocol.ParseResponse(line)
		switch turn.Kind {
		case protocol.ResponseError:
			tr.Fail(turn.Err)
			return turn.Err
		case protocol.ResponseOK:
			err := fmt.Errorf("%w: OK before download completed", ErrUnexpectedResponse)
			tr.Fail(err)
			return err
		}

		toRead := turn.Size
		if left := resp.Remaining - received; left < toRead {
			toRead = left
		}
		buf := make([]byte, toRead)
		if _, err := io.ReadFull(reader, buf); err != nil {
			tr.Fail(err)
			return fmt.Errorf("connection lost after %d bytes: %w", received, io.ErrUnexpectedEOF)
		}

		if _, err := part.Write(buf); err != nil {
			tr.Fail(err)
			return fmt.Errorf("write partial file: %w", err)
		}
		received += toRead
		tr.Record(toRead)
	}

	if err := part.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}
	if err := partial.Finalize(partPath, localPath); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	tr.Complete()
	return nil
}

// putAttempt runs one upload attempt from the current resume offset. Sent
// bytes are mirrored into the local marker so the next attempt resumes
// where this one stopped.
func (c *Client) putAttempt(localPath, host, remotePath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat local file: %w", err)
	}
	totalSize := uint64(info.Size())
	offset, partPath := partial.Locate(localPath)

	conn, err := c.dial(host)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := protocol.Request{
		Command:   protocol.CommandPut,
		Path:      remotePath,
		Offset:    offset,
		TotalSize: totalSize,
	}
	if _, err := conn.Write([]byte(req.Encode())); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", io.ErrUnexpectedEOF)
	}

	resp := protocol.ParseResponse(line)
	switch resp.Kind {
	case protocol.ResponseError:
		return resp.Err
	case protocol.ResponseNext:
		return fmt.Errorf("%w: NEXT before OK", ErrUnexpectedResponse)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		return fmt.Errorf("seek local file: %w", err)
	}

	part, err := partial.OpenAt(partPath, offset)
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}
	defer part.Close()

	tr := transfer.New(localPath, totalSize-offset, transfer.DirectionOutbound)
	if c.progress != nil {
		tr.OnProgress(c.progress)
	}
	tr.Start()

	sent := offset
	for sent < totalSize {
		line, err := reader.ReadString('\n')
		if err != nil {
			tr.Fail(err)
			return fmt.Errorf("connection lost after %d bytes: %w", sent, io.ErrUnexpectedEOF)
		}

		turn := protocol.ParseResponse(line)
		switch turn.Kind {
		case protocol.ResponseError:
			tr.Fail(turn.Err)
			return turn.Err
		case protocol.ResponseOK:
			err := fmt.Errorf("%w: OK before upload completed", ErrUnexpectedResponse)
			tr.Fail(err)
			return err
		}

		toRead := turn.Size
		if left := totalSize - sent; left < toRead {
			toRead = left
		}
		buf := make([]byte, toRead)
		n, err := file.Read(buf)
		if n == 0 {
			tr.Fail(ErrLocalFileTruncated)
			return fmt.Errorf("%w: sent %d of %d bytes: %v", ErrLocalFileTruncated, sent, totalSize, err)
		}

		if _, err := conn.Write(buf[:n]); err != nil {
			tr.Fail(err)
			return fmt.Errorf("send chunk: %w", err)
		}
		if _, err := part.Write(buf[:n]); err != nil {
			tr.Fail(err)
			return fmt.Errorf("mirror partial file: %w", err)
		}
		sent += uint64(n)
		tr.Record(uint64(n))
	}

	if err := part.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}
	partial.Remove(partPath)
	tr.Complete()
	return nil
}
