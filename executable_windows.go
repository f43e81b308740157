//go:build windows

package adb

// On windows the extension decides, LookPath already checked it.
func isExecutable(path string) error {
	return nil
}
