package adb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prife/adbcheck/wire"
)

// ShellResult is the outcome of a command run over shell,v2.
type ShellResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Success reports a zero exit code.
func (r ShellResult) Success() bool {
	return r.ExitCode == 0
}

// RunShellCommand runs the specified commands on a shell on the device.
// From the Android docs:
//
//	Run 'command arg1 arg2 ...' in a shell on the device, and return
//	its output and error streams. Note that arguments must be separated
//	by spaces. If an argument contains a space, it must be quoted with
//	double-quotes. Arguments cannot contain double quotes or things
//	will go very wrong.
//	Note that this is the non-interactive version of "adb shell"
//
// This method quotes the arguments for you, and will return an error if any of them
// contain double quotes.
//
// shell:echo 1
// 00000000  31 0a                                             |1.|
//
// shell,v2:echo 1
// 00000000  01 02 00 00 00 31 0a 03  01 00 00 00 00           |.....1.......|
//
// With v2 the stream is packetized, see wire.ReadShellV2.
func (c *Device) RunShellCommand(ctx context.Context, v2 bool, cmd string, args ...string) (wire.IConn, error) {
	cmd, err := prepareCommandLine(cmd, args...)
	if err != nil {
		return nil, wrapClientError(err, c, "RunCommand")
	}

	var req string
	if v2 {
		req = fmt.Sprintf("shell,v2,raw:%s", cmd)
	} else {
		req = fmt.Sprintf("shell:%s", cmd)
	}

	// Shell responses are special, they don't include a length header.
	// We read until the stream is closed.
	// So, we can't use conn.RoundTripSingleResponse.
	conn, err := c.openService(ctx, req)
	if err != nil {
		return nil, wrapClientError(err, c, "RunCommand(%s)", cmd)
	}
	return conn, nil
}

// RunCommand runs cmd through the legacy shell service and returns everything it printed,
// bounded by CmdTimeoutLong.
func (c *Device) RunCommand(cmd string, args ...string) ([]byte, error) {
	return c.RunCommandTimeout(c.CmdTimeoutLong, cmd, args...)
}

func (c *Device) RunCommandTimeout(timeout time.Duration, cmd string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.RunCommandCtx(ctx, cmd, args...)
}

// RunCommandCtx is RunCommand bounded by ctx. The legacy shell carries no exit status,
// callers have to look at the output.
func (c *Device) RunCommandCtx(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	conn, err := c.RunShellCommand(ctx, false, cmd, args...)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.ReadUntilEof()
	if err != nil {
		return resp, wrapClientError(err, c, "RunCommand(%s)", cmd)
	}
	return resp, nil
}

// RunShellV2 runs cmd over shell,v2 and returns separated stdout, stderr and the exit code.
// Devices without FeatureShell2 fall back to the legacy shell; there stderr is merged
// into Stdout and ExitCode is always 0.
func (c *Device) RunShellV2(ctx context.Context, cmd string, args ...string) (ShellResult, error) {
	v2, err := c.HasFeature(FeatureShell2)
	if err != nil {
		return ShellResult{ExitCode: -1}, err
	}
	if !v2 {
		out, err := c.RunCommandCtx(ctx, cmd, args...)
		return ShellResult{Stdout: out}, err
	}

	conn, err := c.RunShellCommand(ctx, true, cmd, args...)
	if err != nil {
		return ShellResult{ExitCode: -1}, err
	}
	defer conn.Close()

	var stdout, stderr bytes.Buffer
	code, err := wire.ReadShellV2(conn, &stdout, &stderr)
	result := ShellResult{ExitCode: code, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		return result, wrapClientError(err, c, "RunShellV2(%s)", strings.Join(append([]string{cmd}, args...), " "))
	}
	return result, nil
}

// ExecOut starts cmd through the exec service. Unlike shell the stream is binary safe
// (no pty, no \n -> \r\n translation) and stays open for writing, which is what
// streamed installs and file copies need. The caller must Close the connection.
func (c *Device) ExecOut(ctx context.Context, cmd string, args ...string) (wire.IConn, error) {
	cmd, err := prepareCommandLine(cmd, args...)
	if err != nil {
		return nil, wrapClientError(err, c, "Exec")
	}

	conn, err := c.openService(ctx, "exec:"+cmd)
	if err != nil {
		return nil, wrapClientError(err, c, "Exec(%s)", cmd)
	}
	return conn, nil
}

// ExecIn copies src into the stdin of cmd, half-closes the connection and returns what
// cmd printed. Used for streamed installs and pushing files without the sync service.
func (c *Device) ExecIn(ctx context.Context, src io.Reader, cmd string, args ...string) ([]byte, error) {
	conn, err := c.ExecOut(ctx, cmd, args...)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err = io.Copy(conn, src); err != nil {
		return nil, wrapClientError(fmt.Errorf("%w: %w", wire.ErrNetwork, err), c, "ExecIn(%s)", cmd)
	}
	if cw, ok := unwrapConn(conn).(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}

	resp, err := conn.ReadUntilEof()
	if err != nil {
		return resp, wrapClientError(err, c, "ExecIn(%s)", cmd)
	}
	return resp, nil
}

// unwrapConn digs the transport out of the connection wrappers so optional
// interfaces such as CloseWrite on *net.TCPConn can be reached.
func unwrapConn(conn any) any {
	for {
		switch c := conn.(type) {
		case *ctxConn:
			conn = c.IConn
		case *wire.Conn:
			conn = c.Conn
		default:
			return conn
		}
	}
}
