package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

const (
	ID_LSTAT_V1 = "STAT"
	ID_SEND     = "SEND"
	ID_RECV     = "RECV"
	ID_DONE     = "DONE"
	ID_DATA     = "DATA"
	ID_OKAY     = "OKAY"
	ID_FAIL     = "FAIL"
	ID_QUIT     = "QUIT"

	// SyncMaxChunkSize is the largest DATA payload adbd accepts.
	SyncMaxChunkSize = 64 * 1024
)

var zeroTime = time.Unix(0, 0).UTC()

// SyncHandler reports the progress of a file transfer. total is -1 when unknown.
type SyncHandler func(total, sent int64, elapsed time.Duration)

// DirEntry holds information about a file on a device.
type DirEntry struct {
	Name       string
	Mode       os.FileMode
	Size       int32
	ModifiedAt time.Time
}

func (entry DirEntry) String() string {
	return fmt.Sprintf("%s %12d %v %s", entry.Mode.String(), entry.Size, entry.ModifiedAt, entry.Name)
}

// SyncConn is a connection to the adb server in sync mode.
// Assumes the connection has been put into sync mode (by sending "sync:" in transport mode).
// The adb sync protocol is defined at
// https://android.googlesource.com/platform/packages/modules/adb/+/refs/heads/main/SYNC.TXT.
// Unlike the normal adb protocol (implemented in Conn), the sync protocol is binary.
// Length headers and other integers are encoded in little-endian, with 32 bits.
// File mode is the POSIX st_mode, modification time is seconds since Epoch UTC.
type SyncConn struct {
	net.Conn
	rbuf []byte
	wbuf []byte
}

func NewSyncConn(r net.Conn) *SyncConn {
	return &SyncConn{r, make([]byte, 8), make([]byte, 8)}
}

// ReadStatus reads an 8-byte status. A FAIL status is returned as an ErrAdb
// carrying the message that follows it.
func (s *SyncConn) ReadStatus(req string) (string, error) {
	return readSyncStatusFailureAsError(s, s.rbuf, req)
}

//	struct __attribute__((packed)) {
//		uint32_t id;
//		uint32_t mode;
//		uint32_t size;
//		uint32_t mtime;
//	} stat_v1;
func unpackLstatV1(rbuf []byte) (*DirEntry, error) {
	if id := string(rbuf[:4]); id != ID_LSTAT_V1 {
		return nil, fmt.Errorf("%w: expected stat ID '%s', but got '%s'", ErrAssertion, ID_LSTAT_V1, id)
	}
	mode := ParseFileModeFromAdb(binary.LittleEndian.Uint32(rbuf[4:8]))
	size := int32(binary.LittleEndian.Uint32(rbuf[8:12]))
	mtime := time.Unix(int64(int32(binary.LittleEndian.Uint32(rbuf[12:16]))), 0).UTC()
	// adb doesn't indicate when a file doesn't exist, but will return all zeros.
	if mode == os.FileMode(0) && size == 0 && mtime.Equal(zeroTime) {
		return nil, fmt.Errorf("%w: file doesn't exist", ErrFileNoExist)
	}
	return &DirEntry{Mode: mode, Size: size, ModifiedAt: mtime}, nil
}

// Stat returns the lstat of path, ErrFileNoExist when it is missing.
func (s *SyncConn) Stat(path string) (*DirEntry, error) {
	if err := s.SendRequest([]byte(ID_LSTAT_V1), []byte(path)); err != nil {
		return nil, err
	}
	var rbuf [16]byte
	if _, err := io.ReadFull(s, rbuf[:]); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	entry, err := unpackLstatV1(rbuf[:])
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return entry, nil
}

// Recv requests path and returns a reader over its content. The reader ends
// with io.EOF once the device sends DONE.
func (s *SyncConn) Recv(path string) (io.ReadCloser, error) {
	if err := s.SendRequest([]byte(ID_RECV), []byte(path)); err != nil {
		return nil, err
	}
	return newSyncFileReader(s), nil
}

// Send returns a writer that will write to the file at path on device.
// The file will be created with the permission bits of mode.
// The file's modified time will be set to mtime, unless mtime is zero, in which case the time
// CopyDone is called will be used.
func (s *SyncConn) Send(path string, mode os.FileMode, mtime time.Time) (*SyncFileWriter, error) {
	// The remote file name is split into two parts separated by the last
	// comma (","). The first part is the actual path, while the second is a decimal
	// encoded file mode containing the permissions of the file on device.
	pathAndMode := []byte(fmt.Sprintf("%s,%d", path, uint32(mode.Perm())))
	if err := s.SendRequest([]byte(ID_SEND), pathAndMode); err != nil {
		return nil, err
	}
	return newSyncFileWriter(s, mtime), nil
}

// ReadNextChunkSize reads the header of the next chunk of data,
// returns io.EOF if the last chunk has been read.
//
//	struct __attribute__((packed)) {
//		uint32_t id;
//		uint32_t size;
//	} data; // followed by `size` bytes of data.
func (s *SyncConn) ReadNextChunkSize() (int32, error) {
	if _, err := io.ReadFull(s, s.rbuf[:8]); err != nil {
		return 0, fmt.Errorf("sync read: %w", err)
	}

	id := string(s.rbuf[:4])
	size := int32(binary.LittleEndian.Uint32(s.rbuf[4:8]))

	switch id {
	case ID_DATA:
		if size < 0 || size > SyncMaxChunkSize {
			return 0, fmt.Errorf("%w: chunk size %d out of range", ErrAssertion, size)
		}
		return size, nil
	case ID_DONE:
		return 0, io.EOF
	case ID_FAIL:
		if size < 0 || size > SyncMaxChunkSize {
			return 0, fmt.Errorf("%w: fail message length %d", ErrAssertion, size)
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(s, buf); err != nil {
			return 0, fmt.Errorf("sync read: %w", err)
		}
		if bytes.Contains(buf, []byte("No such file or directory")) {
			return 0, fmt.Errorf("%w: %s", ErrFileNoExist, buf)
		}
		return 0, adbServerError("read-chunk", string(buf))
	default:
		return 0, fmt.Errorf("%w: expected chunk id '%s' or '%s', but got '%s'",
			ErrAssertion, ID_DATA, ID_DONE, []byte(id))
	}
}

// Reads the status, and if failure, reads the message and returns it as an error.
// req is just used to populate the AdbError, and can be empty.
func readSyncStatusFailureAsError(r io.Reader, buf []byte, req string) (string, error) {
	if len(buf) < 8 {
		buf = make([]byte, 8)
	}

	n, err := io.ReadFull(r, buf[:8])
	if err == io.ErrUnexpectedEOF {
		return "", fmt.Errorf("error reading status for %s: %w", req, errIncompleteMessage(req, n, 8))
	} else if err != nil {
		return "", fmt.Errorf("error reading status for %s: %w", req, err)
	}

	status := string(buf[:4])
	if status == ID_OKAY {
		return status, nil
	}

	length := binary.LittleEndian.Uint32(buf[4:8])
	if length > SyncMaxChunkSize {
		return status, fmt.Errorf("%w: status message length %d", ErrAssertion, length)
	}
	msg := make([]byte, length)
	if _, err = io.ReadFull(r, msg); err != nil {
		return status, fmt.Errorf("read status body error: %w", err)
	}

	if status == ID_FAIL {
		return status, adbServerError(req, string(msg))
	}
	return status, fmt.Errorf("%w: unknown sync status %q", ErrAssertion, status)
}

func (s *SyncConn) SendDone(t time.Time) error {
	copy(s.wbuf[:4], ID_DONE)
	binary.LittleEndian.PutUint32(s.wbuf[4:8], uint32(t.Unix()))
	if _, err := s.Write(s.wbuf[:8]); err != nil {
		return fmt.Errorf("%w: error sending done: %w", ErrNetwork, err)
	}
	return nil
}

// SendRequest sends id, then len(data) as an octet, followed by the bytes.
// If data is bigger than SyncMaxChunkSize, it returns an assertion error.
func (s *SyncConn) SendRequest(id []byte, data []byte) error {
	if len(id) != 4 {
		return fmt.Errorf("%w: octet string must be exactly 4 bytes: '%s'", ErrAssertion, id)
	}
	if len(data) > SyncMaxChunkSize {
		return fmt.Errorf("%w: data must be <= %d in length", ErrAssertion, SyncMaxChunkSize)
	}

	if len(s.wbuf) < 8+len(data) {
		s.wbuf = make([]byte, 8+len(data))
	}
	copy(s.wbuf[:4], id)
	binary.LittleEndian.PutUint32(s.wbuf[4:8], uint32(len(data)))
	copy(s.wbuf[8:], data)
	if n, err := s.Write(s.wbuf[:8+len(data)]); err != nil {
		return fmt.Errorf("%w: error send bytes: %w, sent %d", ErrNetwork, err, n)
	}
	return nil
}

// Quit ends the sync session, adbd closes the connection afterwards.
func (s *SyncConn) Quit() error {
	return s.SendRequest([]byte(ID_QUIT), nil)
}

// CopyTo streams path from the device into w and returns the bytes written.
func (s *SyncConn) CopyTo(w io.Writer, path string, total int64, handler SyncHandler) (int64, error) {
	reader, err := s.Recv(path)
	if err != nil {
		return 0, fmt.Errorf("recv %s: %w", path, err)
	}
	defer reader.Close()

	chunk := make([]byte, SyncMaxChunkSize)
	start := time.Now()
	var sent int64
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			if _, werr := w.Write(chunk[:n]); werr != nil {
				return sent, werr
			}
			sent += int64(n)
			if handler != nil {
				handler(total, sent, time.Since(start))
			}
		}
		if err == io.EOF {
			return sent, nil
		} else if err != nil {
			return sent, err
		}
	}
}

// CopyFrom sends r to path on the device with the permission bits of perm.
func (s *SyncConn) CopyFrom(r io.Reader, path string, perm os.FileMode, mtime time.Time, total int64, handler SyncHandler) (int64, error) {
	writer, err := s.Send(path, perm, mtime)
	if err != nil {
		return 0, fmt.Errorf("open write %s: %w", path, err)
	}

	chunk := make([]byte, SyncMaxChunkSize)
	start := time.Now()
	var sent int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if _, werr := writer.Write(chunk[:n]); werr != nil {
				return sent, werr
			}
			sent += int64(n)
			if handler != nil {
				handler(total, sent, time.Since(start))
			}
		}
		if err == io.EOF {
			return sent, writer.CopyDone()
		} else if err != nil {
			return sent, err
		}
	}
}

// file type bits of a POSIX st_mode
const (
	modeTypeMask = 0o170000
	modeSocket   = 0o140000
	modeSymlink  = 0o120000
	modeBlock    = 0o060000
	modeDir      = 0o040000
	modeChar     = 0o020000
	modeFIFO     = 0o010000
)

// ParseFileModeFromAdb converts the st_mode adbd reports into an os.FileMode.
func ParseFileModeFromAdb(raw uint32) os.FileMode {
	mode := os.FileMode(raw & 0o777)
	switch raw & modeTypeMask {
	case modeSocket:
		mode |= os.ModeSocket
	case modeSymlink:
		mode |= os.ModeSymlink
	case modeBlock:
		mode |= os.ModeDevice
	case modeDir:
		mode |= os.ModeDir
	case modeChar:
		mode |= os.ModeDevice | os.ModeCharDevice
	case modeFIFO:
		mode |= os.ModeNamedPipe
	}
	if raw&0o4000 != 0 {
		mode |= os.ModeSetuid
	}
	if raw&0o2000 != 0 {
		mode |= os.ModeSetgid
	}
	if raw&0o1000 != 0 {
		mode |= os.ModeSticky
	}
	return mode
}
