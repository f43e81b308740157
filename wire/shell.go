package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Packet ids of the shell,v2 protocol. Every packet is
//
//	[id:1][length:4 little endian][payload:length]
//
// e.g. `shell,v2:echo 1` answers
//
//	00000000  01 02 00 00 00 31 0a 03  01 00 00 00 00           |.....1.......|
//
// which is stdout "1\n" followed by exit code 0.
const (
	ShellIDStdin byte = iota
	ShellIDStdout
	ShellIDStderr
	ShellIDExit
	ShellIDCloseStdin
	ShellIDWindowSizeChange
)

const shellHeaderSize = 5

// ReadShellV2 demultiplexes a shell,v2 stream into stdout and stderr until the
// exit packet arrives and returns the remote exit code. Either writer may be nil.
func ReadShellV2(r io.Reader, stdout, stderr io.Writer) (exitCode int, err error) {
	header := make([]byte, shellHeaderSize)
	for {
		n, err := io.ReadFull(r, header)
		if err == io.EOF {
			return -1, fmt.Errorf("%w: shell stream closed before exit status", ErrConnectionReset)
		} else if err != nil {
			return -1, errIncompleteMessage("shell packet header", n, shellHeaderSize)
		}

		id := header[0]
		length := int64(binary.LittleEndian.Uint32(header[1:]))
		switch id {
		case ShellIDStdout, ShellIDStderr:
			w := stdout
			if id == ShellIDStderr {
				w = stderr
			}
			if w == nil {
				w = io.Discard
			}
			if _, err := io.CopyN(w, r, length); err != nil {
				if errors.Is(err, io.EOF) {
					return -1, fmt.Errorf("%w: truncated shell packet", ErrConnectionReset)
				}
				return -1, fmt.Errorf("error reading shell packet: %w", err)
			}
		case ShellIDExit:
			if length < 1 {
				return -1, fmt.Errorf("%w: empty exit packet", ErrParse)
			}
			payload := make([]byte, length)
			if n, err := io.ReadFull(r, payload); err != nil {
				return -1, errIncompleteMessage("exit packet", n, int(length))
			}
			return int(payload[0]), nil
		default:
			if _, err := io.CopyN(io.Discard, r, length); err != nil {
				return -1, fmt.Errorf("error skipping shell packet %d: %w", id, err)
			}
		}
	}
}

// WriteShellPacket frames payload as a shell,v2 packet of the given id.
func WriteShellPacket(w io.Writer, id byte, payload []byte) error {
	header := make([]byte, shellHeaderSize)
	header[0] = id
	binary.LittleEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(append(header, payload...)); err != nil {
		return fmt.Errorf("%w: error writing shell packet: %w", ErrNetwork, err)
	}
	return nil
}
