package acceptance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	adb "github.com/prife/adbcheck"
	"github.com/prife/adbcheck/wire"
	log "github.com/sirupsen/logrus"
)

const (
	CaptureBinaryPath = "/vendor/bin/v4l2_capture"
	CaptureOutputPath = "/vendor/bin/capture_output.MJPEG"
	captureProcess    = "v4l2_capture"
)

var ErrNoCamera = errors.New("NoCamera")

// CameraDevice is what a capture needs from the device, *adb.Device implements it.
type CameraDevice interface {
	ListVideoDevices(ctx context.Context) ([]adb.VideoDevice, []byte, error)
	Remount(ctx context.Context) (string, error)
	PushFile(ctx context.Context, localPath, remotePath string, perm os.FileMode, handler wire.SyncHandler) error
	RunShellV2(ctx context.Context, cmd string, args ...string) (adb.ShellResult, error)
	PidOf(ctx context.Context, name string, match bool) ([]adb.Process, error)
	KillPidGroupOf(ctx context.Context, name string, match bool) (map[adb.Process][]adb.Process, error)
	Stat(ctx context.Context, remotePath string) (*wire.DirEntry, error)
	PullFile(ctx context.Context, remotePath, localPath string, handler wire.SyncHandler) (int64, error)
}

var _ CameraDevice = (*adb.Device)(nil)

// Camera records a clip with the v4l2 capture binary and copies it back.
type Camera struct {
	dev CameraDevice

	Binary    string // local capture binary pushed to CaptureBinaryPath
	Width     int
	Height    int
	Duration  time.Duration
	OutputDir string
	Remount   bool

	// StopTimeout bounds killing the remote process when the capture is stopped.
	StopTimeout time.Duration

	// Progress draws transfer bars on Output, stderr when nil.
	Progress bool
	Output   io.Writer
}

func NewCamera(dev CameraDevice) *Camera {
	return &Camera{
		dev:         dev,
		Binary:      "bin/v4l2_capture",
		Width:       3860,
		Height:      1920,
		Duration:    30 * time.Second,
		OutputDir:   ".",
		Remount:     true,
		StopTimeout: 10 * time.Second,
	}
}

// CaptureResult describes a finished capture.
type CaptureResult struct {
	Devices   []adb.VideoDevice `json:"devices"`
	LocalPath string            `json:"local_path"`
	Size      int64             `json:"size"`
	ExitCode  int               `json:"exit_code"`
	Output    string            `json:"output,omitempty"`
}

// Run lists the cameras, installs the capture binary, captures for Duration and pulls
// the clip into OutputDir. Canceling ctx stops the capture early, the partial clip is
// still pulled.
func (c *Camera) Run(ctx context.Context) (*CaptureResult, error) {
	devices, raw, err := c.dev.ListVideoDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCamera, raw)
	}
	for _, d := range devices {
		log.WithField("card", d.Card).Infof("video nodes %v", d.Nodes)
	}

	if c.Remount {
		msg, err := c.dev.Remount(ctx)
		if err != nil {
			return nil, err
		}
		log.Debugf("remount: %s", msg)
	}
	if err = c.pushBinary(ctx); err != nil {
		return nil, err
	}

	task := c.Start(ctx)
	timer := time.NewTimer(c.Duration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	case <-task.Done():
		timer.Stop()
	}
	task.Stop()
	res, err := task.Wait()
	if err != nil {
		return nil, err
	}

	// pulling must work even when ctx was canceled to stop the capture
	pullCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute+c.Duration)
	defer cancel()
	entry, err := c.dev.Stat(pullCtx, CaptureOutputPath)
	if err != nil {
		return nil, fmt.Errorf("capture produced no output: %w", err)
	}
	remoteSize := int64(entry.Size)
	local, size, err := c.pull(pullCtx, remoteSize)
	if err != nil {
		return nil, err
	}
	if size != remoteSize {
		return nil, fmt.Errorf("pull %s: got %d of %d bytes", CaptureOutputPath, size, remoteSize)
	}
	log.Infof("capture saved to %s, %d bytes", local, size)
	return &CaptureResult{
		Devices:   devices,
		LocalPath: local,
		Size:      size,
		ExitCode:  res.ExitCode,
		Output:    string(append(res.Stdout, res.Stderr...)),
	}, nil
}

func (c *Camera) pushBinary(ctx context.Context) error {
	st, err := os.Stat(c.Binary)
	if err != nil {
		return fmt.Errorf("capture binary: %w", err)
	}
	log.Infof("push %s -> %s", c.Binary, CaptureBinaryPath)
	handler, finish := c.progress(path.Base(CaptureBinaryPath), st.Size())
	defer finish()
	if err = c.dev.PushFile(ctx, c.Binary, CaptureBinaryPath, 0o755, handler); err != nil {
		return fmt.Errorf("push %s: %w", CaptureBinaryPath, err)
	}
	return nil
}

func (c *Camera) pull(ctx context.Context, size int64) (string, int64, error) {
	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		return "", 0, err
	}
	local := filepath.Join(c.OutputDir, path.Base(CaptureOutputPath))
	handler, finish := c.progress(path.Base(CaptureOutputPath), size)
	defer finish()
	n, err := c.dev.PullFile(ctx, CaptureOutputPath, local, handler)
	if err != nil {
		return local, n, fmt.Errorf("pull %s: %w", CaptureOutputPath, err)
	}
	return local, n, nil
}

// progress returns a transfer handler drawing a bar of total bytes and the func finishing it.
func (c *Camera) progress(name string, total int64) (wire.SyncHandler, func()) {
	if !c.Progress {
		return nil, func() {}
	}
	bar := newBar(total, name, c.Output)
	bar.Start()
	return func(_, sent int64, _ time.Duration) { bar.Set64(sent) }, bar.Finish
}

// Start launches the capture binary and returns at once. The capture keeps running
// after ctx is done, it ends with the binary or with Stop.
func (c *Camera) Start(ctx context.Context) *CaptureTask {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &CaptureTask{
		dev:         c.dev,
		cancel:      cancel,
		stopTimeout: c.StopTimeout,
		done:        make(chan struct{}),
	}
	cmd := fmt.Sprintf("cd %s && ./%s -w %d -h %d", path.Dir(CaptureBinaryPath), path.Base(CaptureBinaryPath), c.Width, c.Height)
	log.Infof("start %q", cmd)
	go func() {
		defer close(t.done)
		t.result, t.err = c.dev.RunShellV2(runCtx, cmd)
	}()
	return t
}

// CaptureTask is a capture running on the device.
type CaptureTask struct {
	dev         CameraDevice
	cancel      context.CancelFunc
	stopTimeout time.Duration
	stopOnce    sync.Once
	dropped     atomic.Bool

	done   chan struct{}
	result adb.ShellResult
	err    error
}

// Done is closed once the remote command has returned.
func (t *CaptureTask) Done() <-chan struct{} {
	return t.done
}

// Stop kills the capture process when it is still running, then drops the stream.
// It is safe to call more than once.
func (t *CaptureTask) Stop() {
	t.stopOnce.Do(func() {
		defer t.cancel()
		select {
		case <-t.done:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.stopTimeout)
		defer cancel()
		if procs, err := t.dev.PidOf(ctx, captureProcess, false); err == nil && len(procs) == 0 {
			log.Debugf("%s already exited", captureProcess)
		} else if _, err = t.dev.KillPidGroupOf(ctx, captureProcess, false); err != nil && !errors.Is(err, adb.ErrNoSuchProcess) {
			log.Warnf("stop %s: %v", captureProcess, err)
		}
		// give the stream a moment to end on its own so the exit code is kept
		select {
		case <-t.done:
		case <-ctx.Done():
			t.dropped.Store(true)
		}
	})
}

// Wait blocks until the remote command has returned. A stream dropped by Stop is not
// an error, the exit code is then unknown (-1).
func (t *CaptureTask) Wait() (adb.ShellResult, error) {
	<-t.done
	if t.err != nil && t.dropped.Load() {
		return adb.ShellResult{ExitCode: -1, Stdout: t.result.Stdout, Stderr: t.result.Stderr}, nil
	}
	return t.result, t.err
}
