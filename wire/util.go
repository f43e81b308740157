package wire

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// deviceNotFoundMessagePattern matches all possible error messages returned by adb servers to
// report that a matching device was not found.
//
// Old servers send "device not found", newer ones "device 'serial' not found",
// and "no devices/emulators found" when the transport-any request has nothing to pick.
var deviceNotFoundMessagePattern = regexp.MustCompile(`device( '.*')? not found|no devices/emulators found`)

func adbServerError(request string, serverMsg string) error {
	if deviceNotFoundMessagePattern.MatchString(serverMsg) {
		return fmt.Errorf("%w: request %s, server error: %s", ErrDeviceNotFound, request, serverMsg)
	}
	return fmt.Errorf("%w: request %s, server error: %s", ErrAdb, request, serverMsg)
}

// IsAdbServerErrorMatching returns true if err was returned by the server (ErrAdb or
// ErrDeviceNotFound) and predicate returns true for its message.
func IsAdbServerErrorMatching(err error, predicate func(string) bool) bool {
	if err == nil {
		return false
	}
	if !errors.Is(err, ErrAdb) && !errors.Is(err, ErrDeviceNotFound) {
		return false
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, "server error: "); i >= 0 {
		msg = msg[i+len("server error: "):]
	}
	return predicate(msg)
}

func errIncompleteMessage(description string, actual int, expected int) error {
	return fmt.Errorf("%w: incomplete %s: read %d bytes, expecting %d", ErrConnectionReset, description, actual, expected)
}
