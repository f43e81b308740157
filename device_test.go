package adb

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prife/adbcheck/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// realDevice returns the first attached device, tests using it only run with ADBCHECK_DEVICE_TESTS=1.
func realDevice(t *testing.T) *Device {
	t.Helper()
	if os.Getenv("ADBCHECK_DEVICE_TESTS") != "1" {
		t.Skip("set ADBCHECK_DEVICE_TESTS=1 to run against an attached device")
	}
	client, err := NewWithConfig(ServerConfig{})
	require.NoError(t, err)
	return client.Device(AnyDevice())
}

func TestGetAttribute(t *testing.T) {
	d, s := newMockDevice(DeviceWithSerial("serial"), okay("value"))

	v, err := d.getAttribute("attr")
	assert.NoError(t, err)
	assert.Equal(t, []string{"host-serial:serial:attr"}, s.Requests())
	assert.Equal(t, "value", v)
}

func TestGetDeviceInfo(t *testing.T) {
	deviceLister := func() ([]*DeviceInfo, error) {
		return []*DeviceInfo{
			{Serial: "abc", Product: "Foo"},
			{Serial: "def", Product: "Bar"},
		}, nil
	}

	newClient := func(serial string) *Device {
		d, _ := newMockDevice(DeviceWithSerial(serial), okay(serial))
		d.deviceListFunc = deviceLister
		return d
	}

	device, err := newClient("abc").DeviceInfo()
	assert.NoError(t, err)
	assert.Equal(t, "Foo", device.Product)

	device, err = newClient("def").DeviceInfo()
	assert.NoError(t, err)
	assert.Equal(t, "Bar", device.Product)

	device, err = newClient("serial").DeviceInfo()
	assert.ErrorIs(t, err, wire.ErrDeviceNotFound)
	assert.Contains(t, err.Error(), "device list doesn't contain serial serial")
	assert.Nil(t, device)
}

func TestDevice_State(t *testing.T) {
	d, s := newMockDevice(DeviceWithSerial("abc"), okay("device"))
	state, err := d.State()
	assert.NoError(t, err)
	assert.Equal(t, StateOnline, state)
	assert.Equal(t, []string{"host-serial:abc:get-state"}, s.Requests())

	d, _ = newMockDevice(DeviceWithSerial("abc"), fail("device unauthorized.\nThis adb server's $ADB_VENDOR_KEYS is not set"))
	state, err = d.State()
	assert.NoError(t, err)
	assert.Equal(t, StateUnauthorized, state)

	d, _ = newMockDevice(DeviceWithSerial("abc"), fail("device 'abc' not found"))
	_, err = d.State()
	assert.ErrorIs(t, err, wire.ErrDeviceNotFound)
}

func TestDevice_WaitForState(t *testing.T) {
	d, s := newMockDevice(DeviceWithSerial("abc"),
		fail("device 'abc' not found"),
		okay("offline"),
		okay("device"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := d.WaitForState(ctx, StateOnline, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 3, s.Dials())
}

func TestDevice_WaitForStateTimeout(t *testing.T) {
	s := &MockServer{DialErr: wire.ErrServerNotAvailable}
	d := (&Adb{s}).Device(DeviceWithSerial("abc"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := d.WaitForState(ctx, StateOnline, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.ErrorIs(t, err, wire.ErrServerNotAvailable)
}

func TestDevice_Reboot(t *testing.T) {
	d, s := newMockDevice(AnyDevice(), deviceSession(""))
	assert.NoError(t, d.Reboot(context.Background(), ""))
	assert.Equal(t, []string{"host:transport-any", "reboot:"}, s.Requests())

	d, _ = newMockDevice(AnyDevice(), fail("no devices/emulators found"))
	err := d.Reboot(context.Background(), "bootloader")
	assert.ErrorIs(t, err, wire.ErrDeviceNotFound)
}

func TestDevice_Root(t *testing.T) {
	d, s := newMockDevice(AnyDevice(), deviceSession("restarting adbd as root\n"))
	msg, err := d.Root(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "restarting adbd as root", msg)
	assert.Equal(t, []string{"host:transport-any", "root:"}, s.Requests())

	d, _ = newMockDevice(AnyDevice(), deviceSession("adbd cannot run as root in production builds\n"))
	_, err = d.Root(context.Background())
	assert.ErrorIs(t, err, ErrRootDenied)
}

func TestDevice_Remount(t *testing.T) {
	d, _ := newMockDevice(AnyDevice(), deviceSession("remount succeeded\n"))
	msg, err := d.Remount(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "remount succeeded", msg)

	d, _ = newMockDevice(AnyDevice(), deviceSession("remount of /system failed: Read-only file system\n"))
	_, err = d.Remount(context.Background())
	assert.ErrorIs(t, err, wire.ErrAdb)
}

func TestRunCommandNoArgs(t *testing.T) {
	d, s := newMockDevice(AnyDevice(), deviceSession("output"))

	v, err := d.RunCommand("cmd")
	assert.NoError(t, err)
	assert.Equal(t, []string{"host:transport-any", "shell:cmd"}, s.Requests())
	assert.Equal(t, "output", string(v))
}

func TestRunCommandQuotesArgs(t *testing.T) {
	d, s := newMockDevice(DeviceWithSerial("abc"), deviceSession(""))

	_, err := d.RunCommandCtx(context.Background(), "echo", "hello world", "x")
	assert.NoError(t, err)
	assert.Equal(t, []string{"host:transport:abc", `shell:echo "hello world" x`}, s.Requests())
}

func TestRunShellV2(t *testing.T) {
	d, s := newMockDevice(DeviceWithSerial("abc"),
		okay("shell_v2,cmd,stat_v2"),
		deviceSession(shellV2("eth0\n", "warn\n", 0)),
		deviceSession(shellV2("", "sh: foo: not found\n", 127)))

	res, err := d.RunShellV2(context.Background(), "ip", "addr")
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "eth0\n", string(res.Stdout))
	assert.Equal(t, "warn\n", string(res.Stderr))

	res, err = d.RunShellV2(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
	assert.False(t, res.Success())

	assert.Equal(t, []string{
		"host-serial:abc:features",
		"host:transport:abc", "shell,v2,raw:ip addr",
		"host:transport:abc", "shell,v2,raw:foo",
	}, s.Requests())
}

func TestRunShellV2Fallback(t *testing.T) {
	d, s := newMockDevice(AnyDevice(), okay("cmd,stat_v2"), deviceSession("legacy\n"))

	res, err := d.RunShellV2(context.Background(), "ip", "addr")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "legacy\n", string(res.Stdout))
	assert.Equal(t, "shell:ip addr", s.Requests()[2])
}

func TestRunShellV2FeaturesUnavailable(t *testing.T) {
	d, s := newMockDevice(AnyDevice(), fail("device offline"), deviceSession("sh: ip: not found\n"))

	res, err := d.RunShellV2(context.Background(), "ip", "addr")
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrAdb)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, []string{"host:features"}, s.Requests())
}

func TestHasFeatureRetriesAfterFailure(t *testing.T) {
	d, _ := newMockDevice(AnyDevice(), fail("device offline"), okay("shell_v2,cmd"))

	_, err := d.HasFeature(FeatureShell2)
	assert.Error(t, err)

	ok, err := d.HasFeature(FeatureShell2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunShellV2ClosedEarly(t *testing.T) {
	d, _ := newMockDevice(AnyDevice(), okay("shell_v2"), deviceSession("\x01\x05\x00\x00\x00ab"))

	_, err := d.RunShellV2(context.Background(), "reboot")
	assert.ErrorIs(t, err, wire.ErrConnectionReset)
}

func TestExecIn(t *testing.T) {
	d, s := newMockDevice(AnyDevice(), deviceSession("done\n"))

	out, err := d.ExecIn(context.Background(), strings.NewReader("payload"), "sh", "-c", "cat > /data/local/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "done\n", string(out))
	assert.Equal(t, []string{"host:transport-any", `exec:sh -c "cat > /data/local/tmp/x"`}, s.Requests())
	assert.Equal(t, "payload", string(s.Payload(0)))
	assert.True(t, s.Conn(0).writeClosed)
	assert.True(t, s.Conn(0).closed)
}

func TestPrepareCommandLineNoArgs(t *testing.T) {
	result, err := prepareCommandLine("cmd")
	assert.NoError(t, err)
	assert.Equal(t, "cmd", result)
}

func TestPrepareCommandLineEmptyCommand(t *testing.T) {
	_, err := prepareCommandLine("")
	assert.True(t, errors.Is(err, wire.ErrAssertion))
	assert.Contains(t, err.Error(), "command cannot be empty")

	_, err = prepareCommandLine("  ")
	assert.True(t, errors.Is(err, wire.ErrAssertion))
}

func TestPrepareCommandLineArgContainsDoubleQuote(t *testing.T) {
	_, err := prepareCommandLine("cmd", "quoted\"arg")
	assert.True(t, errors.Is(err, wire.ErrParse))
	assert.Contains(t, err.Error(), "arg at index 0 contains an invalid double quote: quoted\"arg")
}

func TestDevice_RealShell(t *testing.T) {
	d := realDevice(t)
	res, err := d.RunShellV2(context.Background(), "echo", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(string(res.Stdout)))
}
