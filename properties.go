package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
)

const (
	PropSysBootCompleted       = "sys.boot_completed"
	PropSerial                 = "ro.serialno"
	PropProductName            = "ro.product.name"
	PropProductBrand           = "ro.product.brand"
	PropProductModel           = "ro.product.model"
	PropProductManu            = "ro.product.manufacturer"
	PropProductCpuAbi          = "ro.product.cpu.abi"
	PropBuildVersionSdk        = "ro.build.version.sdk"         // api level
	PropProductBuildVersionSdk = "ro.product.build.version.sdk" // api level
	PropBuildVersionRelease    = "ro.build.version.release"     // android os version
	PropBuildID                = "ro.build.id"
	PropBuildFingerprint       = "ro.build.fingerprint"
)

var (
	devicePropertyRegex = regexp.MustCompile(`(?m)\[(\S+)\]:\s*\[(.*)\]\s*$`)
)

var (
	ErrNotFound = errors.New("NotFound")
)

type PropertiesFilter func(k, v string) bool
type AndroidProperties map[string]string

// parseDeviceProperties
// [ro.build.id]: [QKQ1.190910.002]
// [ro.build.version.release]: [10]
func parseDeviceProperties(resp []byte, filter PropertiesFilter) AndroidProperties {
	matches := devicePropertyRegex.FindAllSubmatch(resp, -1)
	properties := make(AndroidProperties)
	for _, match := range matches {
		key := string(match[1])
		value := strings.TrimRight(string(match[2]), "\r")
		if filter == nil || filter(key, value) {
			properties[key] = value
		}
	}
	return properties
}

// PropertyKeys filters a getprop dump down to keys.
func PropertyKeys(keys ...string) PropertiesFilter {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(k, _ string) bool {
		_, ok := set[k]
		return ok
	}
}

// GetProperties adb shell getprop
func (d *Device) GetProperties(ctx context.Context, filter PropertiesFilter) (properties AndroidProperties, err error) {
	resp, err := d.RunCommandCtx(ctx, "getprop")
	if err != nil {
		return
	}

	properties = parseDeviceProperties(resp, filter)
	if len(properties) == 0 {
		err = fmt.Errorf("getprop: %w: no properties", ErrNotFound)
	}
	return
}

func (d *Device) GetProperty(ctx context.Context, name string) (value string, err error) {
	resp, err := d.RunCommandCtx(ctx, "getprop", name)
	if err != nil {
		return
	}
	value = string(bytes.TrimSpace(resp))
	return
}

// BootCompleted reports whether init has set sys.boot_completed.
func (d *Device) BootCompleted(ctx context.Context) (bool, error) {
	booted, err := d.GetProperty(ctx, PropSysBootCompleted)
	if err != nil {
		return false, err
	}
	return booted == "1", nil
}

func (a AndroidProperties) GetMapValue(key string) (string, error) {
	if v, ok := a[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("getprop %s: %w", key, ErrNotFound)
}

// Value returns the property or "" when it is missing.
func (a AndroidProperties) Value(key string) string {
	return a[key]
}

func (a AndroidProperties) Serial() (string, error) {
	return a.GetMapValue(PropSerial)
}

func (a AndroidProperties) ProductModel() (string, error) {
	return a.GetMapValue(PropProductModel)
}

func (a AndroidProperties) SdkLevel() (int, error) {
	sdkstr, err := a.GetMapValue(PropBuildVersionSdk)
	if err != nil {
		sdkstr, err = a.GetMapValue(PropProductBuildVersionSdk)
		if err != nil {
			return -1, fmt.Errorf("%w: neither %s nor %s", ErrNotFound, PropBuildVersionSdk, PropProductBuildVersionSdk)
		}
	}
	v, err := strconv.Atoi(sdkstr)
	if err != nil {
		return 0, fmt.Errorf("parse 'getprop %s': %w", PropBuildVersionSdk, err)
	}
	return v, nil
}

// BuildVersion parses ro.build.version.release, "10" and "8.1.0" are both accepted.
func (a AndroidProperties) BuildVersion() (version *semver.Version, err error) {
	versionStr, err := a.GetMapValue(PropBuildVersionRelease)
	if err != nil {
		return
	}
	return semver.NewVersion(versionStr)
}
