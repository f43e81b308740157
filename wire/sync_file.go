package wire

import (
	"fmt"
	"io"
	"time"
)

// syncFileReader wraps a SyncConn that has requested to receive a file.
type syncFileReader struct {
	syncConn *SyncConn
	toRead   int
	eof      bool
}

var _ io.ReadCloser = &syncFileReader{}

func newSyncFileReader(s *SyncConn) io.ReadCloser {
	return &syncFileReader{syncConn: s}
}

func (r *syncFileReader) Read(buf []byte) (n int, err error) {
	if r.eof {
		return 0, io.EOF
	}

	if r.toRead == 0 {
		length, err := r.syncConn.ReadNextChunkSize()
		if err == io.EOF {
			r.eof = true
			return 0, err
		} else if err != nil {
			return 0, err
		}
		r.toRead = int(length)
	}

	if len(buf) > r.toRead {
		buf = buf[:r.toRead]
	}
	n, err = io.ReadFull(r.syncConn, buf)
	r.toRead -= n
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = fmt.Errorf("%w: sync stream ended inside a chunk", ErrConnectionReset)
	}
	return
}

// syncFileReader should not close underlying syncConn
func (r *syncFileReader) Close() error {
	return nil
}

// SyncFileWriter wraps a SyncConn that has requested to send a file.
type SyncFileWriter struct {
	// The modification time to write in the footer.
	// If 0, use the current time.
	mtime time.Time

	syncConn *SyncConn
}

func newSyncFileWriter(s *SyncConn, mtime time.Time) *SyncFileWriter {
	return &SyncFileWriter{
		mtime:    mtime,
		syncConn: s,
	}
}

// Write sends buf as DATA chunks of at most SyncMaxChunkSize bytes.
func (w *SyncFileWriter) Write(buf []byte) (n int, err error) {
	written := 0
	for len(buf) > 0 {
		partialBuf := buf
		if len(partialBuf) > SyncMaxChunkSize {
			partialBuf = partialBuf[:SyncMaxChunkSize]
		}

		if err := w.syncConn.SendRequest([]byte(ID_DATA), partialBuf); err != nil {
			return written, err
		}
		written += len(partialBuf)
		buf = buf[len(partialBuf):]
	}
	return written, nil
}

// CopyDone ends the transfer and waits for adbd to confirm the file was written.
func (w *SyncFileWriter) CopyDone() error {
	if w.mtime.IsZero() {
		w.mtime = time.Now()
	}

	if err := w.syncConn.SendDone(w.mtime); err != nil {
		return fmt.Errorf("error sending done chunk to close stream: %w", err)
	}
	if _, err := w.syncConn.ReadStatus(ID_SEND); err != nil {
		return fmt.Errorf("error reading status, should receive '%s': %w", ID_OKAY, err)
	}
	return nil
}
