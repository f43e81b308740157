package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInstallFailed = errors.New("InstallFailed")
)

// ListPackages adb shell pm list packages [-3]
//
//	-3: filter to only show third party packages
func (d *Device) ListPackages(ctx context.Context, thirdParty bool) (names []string, err error) {
	args := []string{"list", "packages"}
	if thirdParty {
		args = append(args, "-3")
	}

	list, err := d.RunCommandCtx(ctx, "pm", args...)
	if err != nil {
		return nil, fmt.Errorf("pm %s: %w", strings.Join(args, " "), err)
	}
	return parsePackageList(list), nil
}

// package:com.android.settings
// package:com.tencent.mm
func parsePackageList(resp []byte) (names []string) {
	for _, line := range bytes.Split(resp, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if name, ok := bytes.CutPrefix(line, []byte("package:")); ok && len(name) > 0 {
			names = append(names, string(name))
		}
	}
	return
}

// $ adb install -r app.apk
// Performing Streamed Install
// Success
//
// Failure [INSTALL_FAILED_VERSION_DOWNGRADE: Downgrade detected: ...]
// Failure [INSTALL_PARSE_FAILED_NOT_APK: Failed to parse /data/app/vmdl.tmp/base.apk: ...]
var installFailureRegex = regexp.MustCompile(`Failure \[([A-Z_]+)(?::\s*([^\]]*))?\]`)

// InstallError carries the code adbd's package manager reported.
type InstallError struct {
	Code    string // INSTALL_FAILED_VERSION_DOWNGRADE
	Message string
}

func (e *InstallError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", ErrInstallFailed, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInstallFailed, e.Code, e.Message)
}

func (e *InstallError) Unwrap() error {
	return ErrInstallFailed
}

func parseInstallResult(resp []byte) error {
	if bytes.Contains(resp, []byte("Success")) {
		return nil
	}
	if m := installFailureRegex.FindSubmatch(resp); m != nil {
		return &InstallError{Code: string(m[1]), Message: strings.TrimSpace(string(m[2]))}
	}
	msg := strings.TrimSpace(string(resp))
	if msg == "" {
		msg = "no response from package manager"
	}
	return &InstallError{Code: "UNKNOWN", Message: msg}
}

// Install streams an apk of size bytes from r into the package manager, replacing
// an existing installation when replace is set. Devices advertising FeatureCmd use
// `cmd package install`, older ones `pm install`; both read the apk from stdin with -S.
func (d *Device) Install(ctx context.Context, r io.Reader, size int64, replace bool) error {
	args := []string{"install"}
	if replace {
		args = append(args, "-r")
	}
	args = append(args, "-S", strconv.FormatInt(size, 10))

	hasCmd, err := d.HasFeature(FeatureCmd)
	if err != nil {
		return err
	}
	cmd := "pm"
	if hasCmd {
		cmd = "cmd"
		args = append([]string{"package"}, args...)
	}

	resp, err := d.ExecIn(ctx, io.LimitReader(r, size), cmd, args...)
	if err != nil {
		return err
	}
	return wrapClientError(parseInstallResult(resp), d, "Install")
}

// UninstallPackage adb shell pm uninstall
// Failure [DELETE_FAILED_INTERNAL_ERROR]
func (d *Device) UninstallPackage(ctx context.Context, name string) error {
	resp, err := d.RunCommandCtx(ctx, "pm", "uninstall", name)
	if err != nil {
		return err
	}
	if !bytes.Contains(resp, []byte("Success")) {
		return fmt.Errorf("pm uninstall %s: %s", name, bytes.TrimSpace(resp))
	}
	return nil
}
