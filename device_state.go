package adb

import (
	"fmt"

	"github.com/prife/adbcheck/wire"
)

// DeviceState represents one of the possible states adb will report devices.
// A device can be communicated with when it's in StateOnline.
// A USB device will make the following state transitions:
//
//	Plugged in: StateDisconnected->StateOffline->StateOnline
//	Unplugged:  StateOnline->StateDisconnected
//	Rebooting:  StateOnline->StateDisconnected->StateOffline->StateOnline
type DeviceState int8

const (
	StateInvalid DeviceState = iota
	StateUnauthorized
	StateAuthorizing
	StateDisconnected
	StateOffline
	StateOnline
	StateHost
	StateRecovery
	StateBootloader
)

var deviceStateStrings = map[string]DeviceState{
	"":             StateDisconnected,
	"offline":      StateOffline,
	"device":       StateOnline,
	"unauthorized": StateUnauthorized,
	"authorizing":  StateAuthorizing,
	"host":         StateHost,
	"recovery":     StateRecovery,
	"bootloader":   StateBootloader,
}

func (s DeviceState) String() string {
	switch s {
	case StateUnauthorized:
		return "unauthorized"
	case StateAuthorizing:
		return "authorizing"
	case StateDisconnected:
		return "disconnected"
	case StateOffline:
		return "offline"
	case StateOnline:
		return "device"
	case StateHost:
		return "host"
	case StateRecovery:
		return "recovery"
	case StateBootloader:
		return "bootloader"
	default:
		return "invalid"
	}
}

func parseDeviceState(str string) (DeviceState, error) {
	state, ok := deviceStateStrings[str]
	if !ok {
		return StateInvalid, fmt.Errorf("%w: invalid device state: %s", wire.ErrParse, str)
	}
	return state, nil
}
