package adb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/prife/adbcheck/wire"
)

// NewSyncConn switches a device connection into sync mode. ctx bounds the
// whole session, the caller must Close the returned connection.
func (c *Device) NewSyncConn(ctx context.Context) (*wire.SyncConn, error) {
	conn, err := c.openService(ctx, "sync:")
	if err != nil {
		return nil, wrapClientError(err, c, "Sync")
	}
	return wire.NewSyncConn(conn), nil
}

// Stat returns mode, size and mtime of remotePath. A missing file is wire.ErrFileNoExist.
func (c *Device) Stat(ctx context.Context, remotePath string) (*wire.DirEntry, error) {
	conn, err := c.NewSyncConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	entry, err := conn.Stat(remotePath)
	if err != nil {
		return nil, wrapClientError(err, c, "Stat(%s)", remotePath)
	}
	return entry, nil
}

// PushFile copies localPath to remotePath like `adb push`. When remotePath is an
// existing directory the file keeps its base name inside it. A zero perm keeps
// the permission bits of the local file.
func (c *Device) PushFile(ctx context.Context, localPath, remotePath string, perm os.FileMode, handler wire.SyncHandler) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: not a regular file: %s", wire.ErrAssertion, localPath)
	}
	if perm == 0 {
		perm = info.Mode().Perm()
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	conn, err := c.NewSyncConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	entry, err := conn.Stat(remotePath)
	switch {
	case err == nil && entry.Mode.IsDir():
		remotePath = path.Join(remotePath, filepath.Base(localPath))
	case err != nil && !errors.Is(err, wire.ErrFileNoExist):
		return wrapClientError(err, c, "PushFile(%s)", remotePath)
	}

	_, err = conn.CopyFrom(f, remotePath, perm, info.ModTime(), info.Size(), handler)
	return wrapClientError(err, c, "PushFile(%s)", remotePath)
}

// PullFile copies remotePath into localPath like `adb pull` and returns the bytes
// written. When localPath is an existing directory the file keeps its base name.
func (c *Device) PullFile(ctx context.Context, remotePath, localPath string, handler wire.SyncHandler) (int64, error) {
	conn, err := c.NewSyncConn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	entry, err := conn.Stat(remotePath)
	if err != nil {
		return 0, wrapClientError(err, c, "PullFile(%s)", remotePath)
	}
	if entry.Mode.IsDir() {
		return 0, wrapClientError(fmt.Errorf("%w: is a directory", wire.ErrAssertion), c, "PullFile(%s)", remotePath)
	}

	if st, err := os.Stat(localPath); err == nil && st.IsDir() {
		localPath = filepath.Join(localPath, path.Base(remotePath))
	}
	f, err := os.Create(localPath)
	if err != nil {
		return 0, err
	}

	n, err := conn.CopyTo(f, remotePath, int64(entry.Size), handler)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, wrapClientError(err, c, "PullFile(%s)", remotePath)
}
