package server

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/remcp/protocol"
)

// noopSleeper disables rate delays so tests run at full speed.
type noopSleeper struct{}

func (noopSleeper) Sleep(time.Duration) {}

// startServer runs a server on an ephemeral port and tears it down with
// the test.
func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	s := New(cfg)
	s.Controller().SetSleeper(noopSleeper{})

	ln, err := net.Listen("tcp", cfg.Addr)
	require.NoError(t, err)
	go s.Serve(ln)
	t.Cleanup(func() { s.Close() })
	// Serve records the listener asynchronously; wait until Addr reports
	// the bound port before letting tests dial it.
	require.Eventually(t, func() bool { return s.Addr() != cfg.Addr },
		time.Second, time.Millisecond)
	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\n")
}

func TestUnknownCommand(t *testing.T) {
	s := startServer(t, Config{})
	conn := dial(t, s)

	_, err := conn.Write([]byte("DELETE /tmp/x 0\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	assert.Equal(t, "ERR Unknown command", readLine(t, r))

	// Exactly one line, then close.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = r.ReadString('\n')
	assert.Error(t, err)
}

func TestEmptyCommand(t *testing.T) {
	s := startServer(t, Config{})
	conn := dial(t, s)

	_, err := conn.Write([]byte("\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	assert.Equal(t, "ERR Invalid command", readLine(t, r))
}

func TestImmediateCloseSendsInvalidCommand(t *testing.T) {
	s := startServer(t, Config{})
	conn := dial(t, s)

	half, ok := conn.(*net.TCPConn)
	require.True(t, ok)
	require.NoError(t, half.CloseWrite())

	r := bufio.NewReader(conn)
	assert.Equal(t, "ERR Invalid command", readLine(t, r))
}

func TestMissingArguments(t *testing.T) {
	s := startServer(t, Config{})

	for _, line := range []string{"GET /tmp/x\n", "PUT /tmp/x 0\n"} {
		conn := dial(t, s)
		_, err := conn.Write([]byte(line))
		require.NoError(t, err)

		r := bufio.NewReader(conn)
		assert.Equal(t, "ERR Missing arguments", readLine(t, r), "line %q", line)
	}
}

func TestMalformedCommandNoFilesystemEffects(t *testing.T) {
	dir := t.TempDir()
	s := startServer(t, Config{})
	conn := dial(t, s)

	_, err := conn.Write([]byte("PUT " + filepath.Join(dir, "sub", "x") + " 0\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	assert.Equal(t, "ERR Missing arguments", readLine(t, r))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected command must not touch the filesystem")
}

func TestGetMissingFile(t *testing.T) {
	s := startServer(t, Config{})
	conn := dial(t, s)

	missing := filepath.Join(t.TempDir(), "absent.bin")
	_, err := conn.Write([]byte("GET " + missing + " 0\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	line := readLine(t, r)
	assert.True(t, strings.HasPrefix(line, "ERR File error: "), "got %q", line)
}

func TestGetOffsetBeyondEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	s := startServer(t, Config{})

	for _, offset := range []string{"3", "4", "1000"} {
		conn := dial(t, s)
		_, err := conn.Write([]byte("GET " + path + " " + offset + "\n"))
		require.NoError(t, err)

		r := bufio.NewReader(conn)
		assert.Equal(t, "OK 0", readLine(t, r), "offset %s", offset)
	}
}

func TestGetFullTransfer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := []byte(strings.Repeat("remcp payload ", 100))
	require.NoError(t, os.WriteFile(path, content, 0o644))

	s := startServer(t, Config{RateBudget: 64})
	conn := dial(t, s)

	_, err := conn.Write([]byte("GET " + path + " 0\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	resp := protocol.ParseResponse(readLine(t, r))
	require.Equal(t, protocol.ResponseOK, resp.Kind)
	require.True(t, resp.HasRemaining)
	require.Equal(t, uint64(len(content)), resp.Remaining)

	var got []byte
	for uint64(len(got)) < resp.Remaining {
		next := protocol.ParseResponse(readLine(t, r))
		require.Equal(t, protocol.ResponseNext, next.Kind)

		toRead := next.Size
		if left := resp.Remaining - uint64(len(got)); left < toRead {
			toRead = left
		}
		buf := make([]byte, toRead)
		for read := 0; read < len(buf); {
			n, err := r.Read(buf[read:])
			require.NoError(t, err)
			read += n
		}
		got = append(got, buf...)
	}
	assert.Equal(t, content, got)
}

func TestGetResumeFromOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	s := startServer(t, Config{RateBudget: 1024})
	conn := dial(t, s)

	_, err := conn.Write([]byte("GET " + path + " 6\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	resp := protocol.ParseResponse(readLine(t, r))
	require.Equal(t, protocol.ResponseOK, resp.Kind)
	require.Equal(t, uint64(4), resp.Remaining)

	next := protocol.ParseResponse(readLine(t, r))
	require.Equal(t, protocol.ResponseNext, next.Kind)

	buf := make([]byte, 4)
	for read := 0; read < len(buf); {
		n, err := r.Read(buf[read:])
		require.NoError(t, err)
		read += n
	}
	assert.Equal(t, "6789", string(buf))
}

func TestPutCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "up.bin")
	content := []byte("uploaded bytes")

	s := startServer(t, Config{RateBudget: 1024})
	conn := dial(t, s)

	req := protocol.Request{
		Command:   protocol.CommandPut,
		Path:      path,
		TotalSize: uint64(len(content)),
	}
	_, err := conn.Write([]byte(req.Encode()))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	resp := protocol.ParseResponse(readLine(t, r))
	require.Equal(t, protocol.ResponseOK, resp.Kind)
	require.False(t, resp.HasRemaining)

	sent := 0
	for sent < len(content) {
		next := protocol.ParseResponse(readLine(t, r))
		require.Equal(t, protocol.ResponseNext, next.Kind)

		end := sent + int(next.Size)
		if end > len(content) {
			end = len(content)
		}
		_, err := conn.Write(content[sent:end])
		require.NoError(t, err)
		sent = end
	}

	// The handler finishes asynchronously after the last byte arrives.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && string(data) == string(content)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPutResumeWritesAtOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "up.bin")
	require.NoError(t, os.WriteFile(path, []byte("01234XXXXX"), 0o644))

	s := startServer(t, Config{RateBudget: 1024})
	conn := dial(t, s)

	_, err := conn.Write([]byte("PUT " + path + " 5 10\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	resp := protocol.ParseResponse(readLine(t, r))
	require.Equal(t, protocol.ResponseOK, resp.Kind)

	sent := uint64(5)
	payload := []byte("56789")
	for sent < 10 {
		next := protocol.ParseResponse(readLine(t, r))
		require.Equal(t, protocol.ResponseNext, next.Kind)

		n := next.Size
		if left := 10 - sent; left < n {
			n = left
		}
		_, err := conn.Write(payload[sent-5 : sent-5+n])
		require.NoError(t, err)
		sent += n
	}

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && string(data) == "0123456789"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdmissionLimit(t *testing.T) {
	s := startServer(t, Config{MaxClients: 2})

	// Simulate two already-admitted clients.
	s.Registry().Add()
	s.Registry().Add()
	defer s.Registry().Done()
	defer s.Registry().Done()

	conn := dial(t, s)
	r := bufio.NewReader(conn)
	assert.Equal(t, "ERR Server is busy", readLine(t, r))

	// Rejected connections never enter the registry.
	assert.Equal(t, int64(2), s.Registry().Count())
}

func TestRegistryDrainsAfterHandlers(t *testing.T) {
	s := startServer(t, Config{})
	conn := dial(t, s)

	_, err := conn.Write([]byte("BOGUS\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	readLine(t, r)

	require.Eventually(t, func() bool {
		return s.Registry().Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
