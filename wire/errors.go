package wire

import (
	"errors"
)

var (
	ErrAssertion = errors.New("AssertionError")
	ErrParse     = errors.New("ParseError")
	// ErrServerNotAvailable the server was not available on the requested port.
	ErrServerNotAvailable = errors.New("ServerNotAvailable")
	// ErrNetwork general network error communicating with the server.
	ErrNetwork = errors.New("Network")
	// ErrConnectionReset the connection to the server was reset in the middle of an operation. Server probably died.
	ErrConnectionReset = errors.New("ConnectionReset")
	// ErrAdb the server returned an error message.
	ErrAdb = errors.New("AdbError")
	// ErrDeviceNotFound the server returned a "device not found" error.
	ErrDeviceNotFound = errors.New("DeviceNotFound")
	// ErrFileNoExist the sync service reported a missing remote file.
	ErrFileNoExist = errors.New("FileNoExist")
)
