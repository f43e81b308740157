package harness

import "errors"

var (
	// ErrDeviceUnreachable the device did not come back within the ready timeout.
	ErrDeviceUnreachable = errors.New("DeviceUnreachable")
	// ErrRemoteCommandFailed the interface query exited non-zero.
	ErrRemoteCommandFailed = errors.New("RemoteCommandFailed")
	// ErrMalformedInterfaceOutput the interface dump contained no interface block.
	ErrMalformedInterfaceOutput = errors.New("MalformedInterfaceOutput")

	ErrInvalidConfig = errors.New("InvalidConfig")
	ErrNoChannel     = errors.New("NoChannel")
)
