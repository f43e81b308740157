package services

import (
	"errors"
	"path/filepath"
	"testing"

	adb "github.com/prife/adbcheck"
	"github.com/prife/adbcheck/config"
	"github.com/prife/adbcheck/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	devices []*adb.DeviceInfo
	err     error
}

func (s staticLister) ListDevices() ([]*adb.DeviceInfo, error) {
	return s.devices, s.err
}

func TestSelectDevice(t *testing.T) {
	lister := staticLister{devices: []*adb.DeviceInfo{
		{Serial: "emulator-5554", State: "offline"},
		{Serial: "a1b2c3", State: "device"},
	}}

	desc, err := SelectDevice(lister, "")
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3", desc.Serial())

	desc, err = SelectDevice(lister, "emulator-5554")
	require.NoError(t, err)
	assert.Equal(t, "emulator-5554", desc.Serial())
}

func TestSelectDeviceErrors(t *testing.T) {
	_, err := SelectDevice(staticLister{}, "")
	assert.ErrorIs(t, err, wire.ErrDeviceNotFound)

	_, err = SelectDevice(staticLister{devices: []*adb.DeviceInfo{{Serial: "x", State: "device"}}}, "y")
	assert.ErrorIs(t, err, wire.ErrDeviceNotFound)

	_, err = SelectDevice(staticLister{devices: []*adb.DeviceInfo{
		{Serial: "x", State: "device"},
		{Serial: "y", State: "device"},
	}}, "")
	assert.ErrorIs(t, err, ErrMultipleDevices)
	assert.ErrorContains(t, err, "x, y")

	down := errors.New("connection refused")
	_, err = SelectDevice(staticLister{err: down}, "")
	assert.ErrorIs(t, err, down)
}

func TestInitAdbMissingBinary(t *testing.T) {
	cfg := config.Default().Adb
	cfg.Path = filepath.Join(t.TempDir(), "adb")
	_, err := InitAdb(cfg)
	assert.ErrorIs(t, err, wire.ErrServerNotAvailable)
}
