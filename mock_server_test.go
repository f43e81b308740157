package adb

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prife/adbcheck/wire"
)

// MockServer answers every Dial with the next scripted session, the bytes
// the adb server would send on that connection. Everything the client writes
// is recorded per connection.
type MockServer struct {
	// Sessions[i] is what the server sends on the i-th dial.
	Sessions []string
	// DialErr fails every dial when set.
	DialErr error

	mu    sync.Mutex
	conns []*mockConn
}

var _ server = &MockServer{}

func (s *MockServer) Start() error {
	return nil
}

func (s *MockServer) Dial(ctx context.Context) (wire.IConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DialErr != nil {
		return nil, s.DialErr
	}
	if len(s.conns) >= len(s.Sessions) {
		return nil, fmt.Errorf("%w: no session scripted for dial %d", wire.ErrServerNotAvailable, len(s.conns))
	}
	c := &mockConn{r: strings.NewReader(s.Sessions[len(s.conns)])}
	s.conns = append(s.conns, c)
	return wire.NewConn(c), nil
}

// Requests returns the framed messages the client sent, across all connections.
func (s *MockServer) Requests() (reqs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		reqs = append(reqs, c.messages()...)
	}
	return
}

// Payload returns the unframed bytes written on the i-th connection (stdin of exec services).
func (s *MockServer) Payload(i int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.conns) {
		return nil
	}
	return s.conns[i].payload()
}

func (s *MockServer) Conn(i int) *mockConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[i]
}

func (s *MockServer) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// okay frames msg behind an OKAY status, like a host service reply.
func okay(msg string) string {
	return fmt.Sprintf("%s%04x%s", wire.StatusSuccess, len(msg), msg)
}

func fail(msg string) string {
	return fmt.Sprintf("%s%04x%s", wire.StatusFailure, len(msg), msg)
}

// deviceSession is the transport OKAY, the service OKAY, then the stream.
func deviceSession(stream string) string {
	return wire.StatusSuccess + wire.StatusSuccess + stream
}

// shellV2 packs stdout and the exit code as shell,v2 packets.
func shellV2(stdout, stderr string, code byte) string {
	var buf bytes.Buffer
	if stdout != "" {
		_ = wire.WriteShellPacket(&buf, wire.ShellIDStdout, []byte(stdout))
	}
	if stderr != "" {
		_ = wire.WriteShellPacket(&buf, wire.ShellIDStderr, []byte(stderr))
	}
	_ = wire.WriteShellPacket(&buf, wire.ShellIDExit, []byte{code})
	return buf.String()
}

type mockConn struct {
	r *strings.Reader

	mu          sync.Mutex
	writes      [][]byte
	closed      bool
	writeClosed bool
}

func (c *mockConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}

func (c *mockConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *mockConn) CloseWrite() error {
	c.mu.Lock()
	c.writeClosed = true
	c.mu.Unlock()
	return nil
}

func (c *mockConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *mockConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *mockConn) SetDeadline(t time.Time) error      { return nil }
func (c *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *mockConn) SetWriteDeadline(t time.Time) error { return nil }

// isFrame reports whether a single write is one length-prefixed message.
func isFrame(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	n, err := strconv.ParseUint(string(b[:4]), 16, 16)
	return err == nil && int(n) == len(b)-4
}

func (c *mockConn) messages() (msgs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.writes {
		if isFrame(w) {
			msgs = append(msgs, string(w[4:]))
		}
	}
	return
}

func (c *mockConn) payload() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, w := range c.writes {
		if !isFrame(w) {
			out = append(out, w...)
		}
	}
	return out
}

func newMockDevice(descriptor DeviceDescriptor, sessions ...string) (*Device, *MockServer) {
	s := &MockServer{Sessions: sessions}
	return (&Adb{s}).Device(descriptor), s
}
