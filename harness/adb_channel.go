package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	adb "github.com/prife/adbcheck"
	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval is how often AdbChannel asks the adb server for the device state.
const DefaultPollInterval = time.Second

// Device is the part of *adb.Device the channel needs.
type Device interface {
	String() string
	Reboot(ctx context.Context, target string) error
	State() (adb.DeviceState, error)
	BootCompleted(ctx context.Context) (bool, error)
	RunShellV2(ctx context.Context, cmd string, args ...string) (adb.ShellResult, error)
}

var _ Device = (*adb.Device)(nil)

// AdbChannel drives a device through the adb server.
type AdbChannel struct {
	dev Device

	// RequireBootCompleted also waits for sys.boot_completed=1, not only for adbd.
	RequireBootCompleted bool
	PollInterval         time.Duration
	// Reconnect runs before every poll when set, devices on a TCP transport
	// have to be connected again after each reboot.
	Reconnect func() error

	log *log.Entry
}

var _ Channel = (*AdbChannel)(nil)

func NewAdbChannel(dev Device) *AdbChannel {
	return &AdbChannel{
		dev:          dev,
		PollInterval: DefaultPollInterval,
		log:          log.WithField("device", dev.String()),
	}
}

// TCPConnector is implemented by *adb.Adb.
type TCPConnector interface {
	Connect(addr string) error
	Disconnect(addr string) error
}

var _ TCPConnector = (*adb.Adb)(nil)

// TCPReconnect returns a Reconnect func that runs `adb disconnect addr` then
// `adb connect addr`. After a reboot the server may still hold the old
// transport as offline, and connect then answers "already connected".
func TCPReconnect(client TCPConnector, addr string) func() error {
	return func() error {
		if err := client.Disconnect(addr); err != nil {
			log.Debugf("adb disconnect %s: %v", addr, err)
		}
		return client.Connect(addr)
	}
}

func (c *AdbChannel) Reboot(ctx context.Context) error {
	return c.dev.Reboot(ctx, "")
}

func (c *AdbChannel) WaitForDevice(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var last error
	polls := 0
	operation := func() error {
		polls++
		last = c.poll(ctx)
		return last
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	start := time.Now()
	if err := backoff.Retry(operation, b); err != nil {
		if last == nil {
			last = err
		}
		return fmt.Errorf("%w: %s not ready after %s (%d polls): %w", ErrDeviceUnreachable, c.dev, timeout, polls, last)
	}
	c.log.Debugf("device ready after %s (%d polls)", time.Since(start).Round(time.Millisecond), polls)
	return nil
}

var errBooting = errors.New("boot not completed")

func (c *AdbChannel) poll(ctx context.Context) error {
	if c.Reconnect != nil {
		if err := c.Reconnect(); err != nil {
			return err
		}
	}
	state, err := c.dev.State()
	if err != nil {
		return err
	}
	if state != adb.StateOnline {
		return fmt.Errorf("device is %s", state)
	}
	if !c.RequireBootCompleted {
		return nil
	}
	booted, err := c.dev.BootCompleted(ctx)
	if err != nil {
		return err
	}
	if !booted {
		return errBooting
	}
	return nil
}

// RunRemote runs cmd over shell,v2 so the exit status is real. Devices without
// shell_v2 always report 0 unless the transport fails.
func (c *AdbChannel) RunRemote(ctx context.Context, cmd ...string) (RemoteResult, error) {
	if len(cmd) == 0 {
		return RemoteResult{}, fmt.Errorf("%w: empty command", ErrInvalidConfig)
	}
	res, err := c.dev.RunShellV2(ctx, cmd[0], cmd[1:]...)
	return RemoteResult{
		ExitStatus: res.ExitCode,
		Stdout:     string(res.Stdout),
		Stderr:     string(res.Stderr),
	}, err
}
