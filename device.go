package adb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prife/adbcheck/wire"
)

var (
	// ErrWaitTimeout the device did not reach the wanted state in time.
	ErrWaitTimeout = errors.New("WaitTimeout")
	// ErrRootDenied adbd refused to restart as root (production builds).
	ErrRootDenied = errors.New("RootDenied")
)

// Device communicates with a specific Android device.
// To get an instance, call Device() on an Adb.
type Device struct {
	server     server
	descriptor DeviceDescriptor

	// Used to get device info.
	deviceListFunc func() ([]*DeviceInfo, error)

	// CmdTimeoutShort bounds quick queries (getprop, get-state),
	// CmdTimeoutLong bounds commands that do real work on the device.
	CmdTimeoutShort time.Duration
	CmdTimeoutLong  time.Duration

	featuresMu sync.Mutex
	features   map[string]bool
}

const (
	FeatureShell2                    = "shell_v2"
	FeatureCmd                       = "cmd"
	FeatureStat2                     = "stat_v2"
	FeatureLs2                       = "ls_v2"
	FeatureLibusb                    = "libusb"
	FeaturePushSync                  = "push_sync"
	FeatureApex                      = "apex"
	FeatureFixedPushMkdir            = "fixed_push_mkdir"
	FeatureAbb                       = "abb"
	FeatureFixedPushSymlinkTimestamp = "fixed_push_symlink_timestamp"
	FeatureAbbExec                   = "abb_exec"
	FeatureRemountShell              = "remount_shell"
)

func (c *Device) String() string {
	return c.descriptor.String()
}

func (c *Device) Serial() (string, error) {
	attr, err := c.getAttribute("get-serialno")
	return attr, wrapClientError(err, c, "Serial")
}

func (c *Device) DeviceFeatures() (features map[string]bool, err error) {
	attr, err := c.getAttribute("features")
	if err != nil {
		return nil, wrapClientError(err, c, "features")
	}
	features = featuresStrToMap(attr)
	return
}

// HasFeature reports whether adbd on the device advertises feature.
// The feature list is fetched once and cached, a failed fetch is not cached
// and is returned so callers never mistake an offline device for an old one.
func (c *Device) HasFeature(feature string) (bool, error) {
	c.featuresMu.Lock()
	defer c.featuresMu.Unlock()
	if c.features == nil {
		features, err := c.DeviceFeatures()
		if err != nil {
			return false, err
		}
		c.features = features
	}
	return c.features[feature], nil
}

func (c *Device) State() (DeviceState, error) {
	attr, err := c.getAttribute("get-state")
	if err != nil {
		if strings.Contains(err.Error(), "unauthorized") {
			return StateUnauthorized, nil
		}
		return StateInvalid, wrapClientError(err, c, "State")
	}
	state, err := parseDeviceState(attr)
	return state, wrapClientError(err, c, "State")
}

func (c *Device) DeviceInfo() (*DeviceInfo, error) {
	// Adb doesn't actually provide a way to get this for an individual device,
	// so we have to just list devices and find ourselves.

	serial, err := c.Serial()
	if err != nil {
		return nil, wrapClientError(err, c, "GetDeviceInfo(GetSerial)")
	}

	devices, err := c.deviceListFunc()
	if err != nil {
		return nil, wrapClientError(err, c, "DeviceInfo(ListDevices)")
	}

	for _, deviceInfo := range devices {
		if deviceInfo.Serial == serial {
			return deviceInfo, nil
		}
	}

	err = fmt.Errorf("%w: device list doesn't contain serial %s", wire.ErrDeviceNotFound, serial)
	return nil, wrapClientError(err, c, "DeviceInfo")
}

// WaitForState polls get-state every interval until the device reports want.
// It returns ErrWaitTimeout, wrapping the last observed error, once ctx is done.
func (c *Device) WaitForState(ctx context.Context, want DeviceState, interval time.Duration) error {
	var last error
	operation := func() error {
		state, err := c.State()
		if err != nil {
			last = err
			return err
		}
		if state != want {
			last = fmt.Errorf("device is %s, want %s", state, want)
			return last
		}
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		if last == nil {
			last = err
		}
		return wrapClientError(fmt.Errorf("%w: %w", ErrWaitTimeout, last), c, "WaitForState(%s)", want)
	}
	return nil
}

// Reboot asks adbd to reboot the device, target is "" for a normal boot,
// or "bootloader", "recovery", "sideload".
// The transport goes away while the device shuts down, so only errors up to the
// OKAY status are reported.
func (c *Device) Reboot(ctx context.Context, target string) error {
	conn, err := c.openService(ctx, "reboot:"+target)
	if err != nil {
		return wrapClientError(err, c, "Reboot(%s)", target)
	}
	defer conn.Close()

	// drain until adbd drops the connection, or give up quietly
	_ = conn.SetReadDeadline(time.Now().Add(c.CmdTimeoutShort))
	_, _ = conn.ReadUntilEof()
	return nil
}

// Root restarts adbd with root permissions, like `adb root`.
// adbd restarts, callers should wait for the device before the next request.
func (c *Device) Root(ctx context.Context) (string, error) {
	conn, err := c.openService(ctx, "root:")
	if err != nil {
		return "", wrapClientError(err, c, "Root")
	}
	defer conn.Close()

	resp, err := conn.ReadUntilEof()
	msg := strings.TrimSpace(string(resp))
	if err != nil {
		return msg, wrapClientError(err, c, "Root")
	}
	if strings.Contains(msg, "cannot run as root") {
		return msg, wrapClientError(fmt.Errorf("%w: %s", ErrRootDenied, msg), c, "Root")
	}
	return msg, nil
}

// Remount, from the official adb command’s docs:
//
//	Ask adbd to remount the device's filesystem in read-write mode,
//	instead of read-only. This is usually necessary before performing
//	an "adb sync" or "adb push" request.
//	This request may not succeed on certain builds which do not allow
//	that.
func (c *Device) Remount(ctx context.Context) (string, error) {
	conn, err := c.openService(ctx, "remount:")
	if err != nil {
		return "", wrapClientError(err, c, "Remount")
	}
	defer conn.Close()

	resp, err := conn.ReadUntilEof()
	msg := strings.TrimSpace(string(resp))
	if err == nil && strings.Contains(strings.ToLower(msg), "failed") {
		err = fmt.Errorf("%w: %s", wire.ErrAdb, msg)
	}
	return msg, wrapClientError(err, c, "Remount")
}

// getAttribute returns the first message returned by the server by running
// <host-prefix>:<attr>, where host-prefix is determined from the DeviceDescriptor.
func (c *Device) getAttribute(attr string) (string, error) {
	resp, err := roundTripSingleResponseTimeout(c.server,
		fmt.Sprintf("%s:%s", c.descriptor.getHostPrefix(), attr), c.CmdTimeoutShort)
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

// dialDevice switches the connection to communicate directly with the device
// by requesting the transport defined by the DeviceDescriptor.
// The returned connection is bound to ctx until it is closed.
func (c *Device) dialDevice(ctx context.Context) (wire.IConn, error) {
	conn, err := c.server.Dial(ctx)
	if err != nil {
		return nil, err
	}
	bound := &ctxConn{IConn: conn, stop: wire.WatchContext(ctx, conn)}

	req := fmt.Sprintf("host:%s", c.descriptor.getTransportDescriptor())
	if err = bound.SendMessage([]byte(req)); err != nil {
		bound.Close()
		return nil, fmt.Errorf("error connecting to device '%s': %w", c.descriptor, err)
	}

	if _, err = bound.ReadStatus(req); err != nil {
		bound.Close()
		return nil, err
	}

	return bound, nil
}

// openService dials the device and starts service req on it.
func (c *Device) openService(ctx context.Context, req string) (wire.IConn, error) {
	conn, err := c.dialDevice(ctx)
	if err != nil {
		return nil, err
	}
	if err = conn.SendMessage([]byte(req)); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err = conn.ReadStatus(req); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// ctxConn releases its context watcher when closed.
type ctxConn struct {
	wire.IConn
	stop func()
}

func (c *ctxConn) Close() error {
	c.stop()
	return c.IConn.Close()
}

// prepareCommandLine validates the command and argument strings, quotes
// arguments if required, and joins them into a valid adb command string.
func prepareCommandLine(cmd string, args ...string) (string, error) {
	if isBlank(cmd) {
		return "", fmt.Errorf("%w: command cannot be empty", wire.ErrAssertion)
	}

	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, cmd)
	for i, arg := range args {
		if strings.ContainsRune(arg, '"') {
			return "", fmt.Errorf("%w: arg at index %d contains an invalid double quote: %s", wire.ErrParse, i, arg)
		}
		if containsWhitespace(arg) {
			arg = fmt.Sprintf("\"%s\"", arg)
		}
		quoted = append(quoted, arg)
	}

	return strings.Join(quoted, " "), nil
}
