package services

import (
	"errors"
	"fmt"
	"strings"

	adb "github.com/prife/adbcheck"
	"github.com/prife/adbcheck/config"
	"github.com/prife/adbcheck/wire"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

var ErrMultipleDevices = errors.New("MultipleDevices")

// InitAdb connects to the adb server described by cfg, starting it when allowed.
func InitAdb(cfg config.AdbConfig) (cli *adb.Adb, err error) {
	serverConfig := adb.ServerConfig{
		AutoStart: cfg.AutoStart,
		Host:      cfg.Host,
		Port:      cfg.Port,
		PathToAdb: cfg.Path,
	}

	cli, err = adb.NewWithConfig(serverConfig)
	if err != nil {
		log.Errorln(err)
		return
	}

	if cfg.AutoStart {
		if err = cli.StartServer(); err != nil {
			log.Errorln(err)
			return
		}
	}

	if v, err := cli.ServerVersion(); err == nil {
		log.Debugf("adb server version %d", v)
	}

	if cfg.Connect != "" {
		if err = cli.Connect(cfg.Connect); err != nil {
			log.Errorf("adb connect %s: %v", cfg.Connect, err)
			return
		}
		log.Infof("adb connect %s", cfg.Connect)
	}
	return
}

// DeviceLister is implemented by *adb.Adb.
type DeviceLister interface {
	ListDevices() ([]*adb.DeviceInfo, error)
}

// SelectDevice picks the device to test: the one with serial, or the only online
// device when serial is empty, which is what plain `adb shell` does.
func SelectDevice(lister DeviceLister, serial string) (adb.DeviceDescriptor, error) {
	devices, err := lister.ListDevices()
	if err != nil {
		return adb.DeviceDescriptor{}, err
	}
	serial, err = pickSerial(devices, serial)
	if err != nil {
		return adb.DeviceDescriptor{}, err
	}
	log.WithField("serial", serial).Infof("selected device")
	return adb.DeviceWithSerial(serial), nil
}

func pickSerial(devices []*adb.DeviceInfo, serial string) (string, error) {
	if serial != "" {
		d, ok := lo.Find(devices, func(d *adb.DeviceInfo) bool { return d.Serial == serial })
		if !ok {
			return "", fmt.Errorf("%w: %s", wire.ErrDeviceNotFound, serial)
		}
		if d.State != adb.StateOnline.String() {
			log.Warnf("device %s is %s", serial, d.State)
		}
		return serial, nil
	}

	online := lo.Filter(devices, func(d *adb.DeviceInfo, _ int) bool {
		return d.State == adb.StateOnline.String()
	})
	switch len(online) {
	case 0:
		return "", fmt.Errorf("%w: no online device", wire.ErrDeviceNotFound)
	case 1:
		return online[0].Serial, nil
	default:
		serials := lo.Map(online, func(d *adb.DeviceInfo, _ int) string { return d.Serial })
		return "", fmt.Errorf("%w: %s, pick one with --serial", ErrMultipleDevices, strings.Join(serials, ", "))
	}
}
