package wire

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	// The official implementation of adb imposes an undocumented 255-byte limit
	// on messages.
	MaxMessageLength = 255

	// StatusCodes are returned by the server. If the code indicates failure, the next message will be the error.
	StatusSuccess string = "OKAY"
	StatusFailure string = "FAIL"
)

type StatusReader interface {
	// Reads a 4-byte status string and returns it.
	// If the status string is StatusFailure, reads the error message from the server
	// and returns it as an ErrAdb.
	ReadStatus(req string) (string, error)
}

// Sender sends messages to the server.
type Sender interface {
	SendMessage(msg []byte) error
}

// Scanner reads tokens from a server.
type Scanner interface {
	io.Closer
	StatusReader
	ReadMessage() ([]byte, error)
	ReadUntilEof() ([]byte, error)
}

type IConn interface {
	net.Conn
	Sender
	Scanner
	RoundTripSingleResponse(req []byte) (resp []byte, err error)
}

// Conn is a normal connection to an adb server.
// For most cases, usage looks something like:
//
//	conn := wire.NewConn(netConn)
//	conn.SendMessage(data)
//	conn.ReadStatus() == StatusSuccess || StatusFailure
//	conn.ReadMessage()
//	conn.Close()
//
// For most commands, the server will close the connection after sending the response.
// Streaming services (shell, exec) keep the connection open until the remote side exits,
// the caller reads them with ReadUntilEof or as a plain io.Reader.
// You should still always call Close() when you're done with the connection.
type Conn struct {
	net.Conn
	rbuf []byte
}

func NewConn(conn net.Conn) *Conn {
	return &Conn{
		Conn: conn,
		rbuf: make([]byte, 4),
	}
}

var _ IConn = &Conn{}

func (s *Conn) SendMessage(msg []byte) error {
	if len(msg) > MaxMessageLength {
		return fmt.Errorf("%w: message length exceeds maximum:%d", ErrAssertion, len(msg))
	}

	lengthAndMsg := make([]byte, 0, 4+len(msg))
	lengthAndMsg = append(lengthAndMsg, fmt.Sprintf("%04x", len(msg))...)
	lengthAndMsg = append(lengthAndMsg, msg...)
	if _, err := s.Write(lengthAndMsg); err != nil {
		return fmt.Errorf("%w: error sending message: %w", ErrNetwork, err)
	}
	return nil
}

// RoundTripSingleResponse sends a message to the server, and reads a single
// message response. If the reponse has a failure status code, returns it as an error.
func (s *Conn) RoundTripSingleResponse(req []byte) (resp []byte, err error) {
	if err = s.SendMessage(req); err != nil {
		return nil, err
	}

	if _, err = s.ReadStatus(string(req)); err != nil {
		return nil, err
	}

	return s.ReadMessage()
}

func (s *Conn) ReadStatus(req string) (string, error) {
	return readStatusFailureAsError(s, s.rbuf, req)
}

func (s *Conn) ReadMessage() ([]byte, error) {
	return readMessage(s, s.rbuf)
}

func (s *Conn) ReadUntilEof() ([]byte, error) {
	data, err := io.ReadAll(s)
	if err != nil {
		return data, fmt.Errorf("error reading until EOF: %w", err)
	}
	return data, nil
}

func (s *Conn) Close() error {
	if err := s.Conn.Close(); err != nil {
		return fmt.Errorf("error closing connection: %w", err)
	}
	return nil
}

// WatchContext applies the deadline of ctx to conn and unblocks any pending
// read or write once ctx is done. Call the returned stop func when the
// exchange is over; it is safe to call more than once.
func WatchContext(ctx context.Context, conn net.Conn) (stop func()) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	done := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			// a deadline in the past fails pending I/O immediately
			_ = conn.SetDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()
	return func() {
		once.Do(func() { close(done) })
	}
}

func isFailureStatus(status string) bool {
	return status == StatusFailure
}

// Reads the status, and if failure, reads the message and returns it as an error.
// If the status is success, doesn't read the message.
// req is just used to populate the error message, and can be empty.
func readStatusFailureAsError(r io.Reader, buf []byte, req string) (string, error) {
	if len(buf) < 4 {
		buf = make([]byte, 4)
	}
	n, err := io.ReadFull(r, buf[:4])
	if err == io.ErrUnexpectedEOF {
		return "", fmt.Errorf("error reading status for %s: %w", req, errIncompleteMessage(req, n, 4))
	} else if err != nil {
		return "", fmt.Errorf("error reading status for %s: %w", req, err)
	}

	status := string(buf[:4])
	if isFailureStatus(status) {
		msg, err := readMessage(r, buf)
		if err != nil {
			return "", fmt.Errorf("server returned error for %s, but couldn't read the error message, %w", req, err)
		}

		return "", adbServerError(req, string(msg))
	}

	return status, nil
}

// readMessage reads a 4-byte hex string from r, then reads length bytes and returns them.
func readMessage(r io.Reader, buf []byte) ([]byte, error) {
	if len(buf) < 4 {
		buf = make([]byte, 4)
	}
	length, err := readHexLength(r, buf[:4])
	if err != nil {
		return nil, err
	}

	data := make([]byte, length)
	n, err := io.ReadFull(r, data)
	if err == io.ErrUnexpectedEOF {
		return data[:n], errIncompleteMessage("message data", n, length)
	} else if err != nil {
		return data[:n], fmt.Errorf("error reading message data: %w", err)
	}
	return data, nil
}

// readHexLength reads the next 4 bytes from r as an ASCII hex-encoded length and parses them into an int.
func readHexLength(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return 0, errIncompleteMessage("length", n, 4)
	}

	length, err := strconv.ParseInt(string(buf[:n]), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: could not parse hex length:%v", ErrAssertion, buf[:n])
	}
	return int(length), nil
}
