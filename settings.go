package adb

import (
	"context"
	"strings"
)

func checkNameValid(name string) bool {
	return !(name == "" || name == "null" || strings.Contains(strings.ToLower(name), "error"))
}

// GetDeviceName returns the user visible device name.
// see: https://stackoverflow.com/questions/16704597/how-do-you-get-the-user-defined-device-name-in-android
func (d *Device) GetDeviceName(ctx context.Context) (string, error) {
	tries := [][]string{
		{"settings", "get", "secure", "bluetooth_name"},
		{"settings", "get", "global", "device_name"},
	}
	for _, args := range tries {
		resp, err := d.RunCommandCtx(ctx, args[0], args[1:]...)
		if err != nil {
			return "", err
		}
		if name := strings.TrimSpace(string(resp)); checkNameValid(name) {
			return name, nil
		}
	}

	// final try
	return d.GetProperty(ctx, PropProductName)
}
