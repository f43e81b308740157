package harness

import (
	"context"
	"errors"
	"testing"
	"time"

	adb "github.com/prife/adbcheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice replays scripted states, one per poll.
type fakeDevice struct {
	states   []adb.DeviceState
	stateErr error
	booted   []bool
	shell    adb.ShellResult
	shellErr error

	statePolls int
	bootPolls  int
	reboots    []string
	commands   [][]string
}

func (f *fakeDevice) String() string { return "fake" }

func (f *fakeDevice) Reboot(ctx context.Context, target string) error {
	f.reboots = append(f.reboots, target)
	return nil
}

func (f *fakeDevice) State() (adb.DeviceState, error) {
	i := f.statePolls
	f.statePolls++
	if f.stateErr != nil {
		return adb.StateInvalid, f.stateErr
	}
	if i >= len(f.states) {
		return f.states[len(f.states)-1], nil
	}
	return f.states[i], nil
}

func (f *fakeDevice) BootCompleted(ctx context.Context) (bool, error) {
	i := f.bootPolls
	f.bootPolls++
	if i >= len(f.booted) {
		return f.booted[len(f.booted)-1], nil
	}
	return f.booted[i], nil
}

func (f *fakeDevice) RunShellV2(ctx context.Context, cmd string, args ...string) (adb.ShellResult, error) {
	f.commands = append(f.commands, append([]string{cmd}, args...))
	return f.shell, f.shellErr
}

func newTestChannel(dev *fakeDevice) *AdbChannel {
	ch := NewAdbChannel(dev)
	ch.PollInterval = time.Millisecond
	ch.log = quietLogger()
	return ch
}

func TestAdbChannelWaitForDevice(t *testing.T) {
	dev := &fakeDevice{states: []adb.DeviceState{adb.StateDisconnected, adb.StateOffline, adb.StateOnline}}
	ch := newTestChannel(dev)

	require.NoError(t, ch.WaitForDevice(context.Background(), 5*time.Second))
	assert.Equal(t, 3, dev.statePolls)
	assert.Zero(t, dev.bootPolls)
}

func TestAdbChannelWaitForBootCompleted(t *testing.T) {
	dev := &fakeDevice{states: []adb.DeviceState{adb.StateOnline}, booted: []bool{false, false, true}}
	ch := newTestChannel(dev)
	ch.RequireBootCompleted = true

	require.NoError(t, ch.WaitForDevice(context.Background(), 5*time.Second))
	assert.Equal(t, 3, dev.bootPolls)
}

func TestAdbChannelWaitTimeout(t *testing.T) {
	dev := &fakeDevice{stateErr: errors.New("device 'fake' not found")}
	ch := newTestChannel(dev)

	err := ch.WaitForDevice(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrDeviceUnreachable)
	assert.ErrorContains(t, err, "not found")
	assert.Greater(t, dev.statePolls, 1)
}

func TestAdbChannelReconnect(t *testing.T) {
	dev := &fakeDevice{states: []adb.DeviceState{adb.StateOnline}}
	ch := newTestChannel(dev)
	calls := 0
	ch.Reconnect = func() error {
		calls++
		if calls < 2 {
			return errors.New("failed to connect to '192.168.1.2:5555'")
		}
		return nil
	}

	require.NoError(t, ch.WaitForDevice(context.Background(), 5*time.Second))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, dev.statePolls)
}

type fakeConnector struct {
	calls []string
}

func (f *fakeConnector) Connect(addr string) error {
	f.calls = append(f.calls, "connect "+addr)
	return nil
}

func (f *fakeConnector) Disconnect(addr string) error {
	f.calls = append(f.calls, "disconnect "+addr)
	return errors.New("no such device '" + addr + "'")
}

func TestTCPReconnect(t *testing.T) {
	c := &fakeConnector{}
	reconnect := TCPReconnect(c, "192.168.1.2:5555")

	require.NoError(t, reconnect())
	require.NoError(t, reconnect())
	assert.Equal(t, []string{
		"disconnect 192.168.1.2:5555", "connect 192.168.1.2:5555",
		"disconnect 192.168.1.2:5555", "connect 192.168.1.2:5555",
	}, c.calls)
}

func TestAdbChannelRunRemote(t *testing.T) {
	dev := &fakeDevice{shell: adb.ShellResult{ExitCode: 1, Stdout: []byte("out"), Stderr: []byte("err")}}
	ch := newTestChannel(dev)

	res, err := ch.RunRemote(context.Background(), "ip", "addr")
	require.NoError(t, err)
	assert.Equal(t, RemoteResult{ExitStatus: 1, Stdout: "out", Stderr: "err"}, res)
	assert.Equal(t, [][]string{{"ip", "addr"}}, dev.commands)

	_, err = ch.RunRemote(context.Background())
	assert.Error(t, err)
}

func TestAdbChannelReboot(t *testing.T) {
	dev := &fakeDevice{}
	require.NoError(t, newTestChannel(dev).Reboot(context.Background()))
	assert.Equal(t, []string{""}, dev.reboots)
}

func TestHarnessWithAdbChannel(t *testing.T) {
	dev := &fakeDevice{
		states: []adb.DeviceState{adb.StateOnline},
		shell:  adb.ShellResult{Stdout: []byte(connectedDump)},
	}
	report, err := New(newTestChannel(dev), WithLogger(quietLogger())).Run(context.Background(), testConfig(2))
	require.NoError(t, err)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Len(t, dev.reboots, 2)
}
