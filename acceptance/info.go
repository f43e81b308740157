package acceptance

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	adb "github.com/prife/adbcheck"
	log "github.com/sirupsen/logrus"
)

// DeviceInfo is the identity and hardware summary of a device.
type DeviceInfo struct {
	Serial         string        `json:"serial"`
	Manufacturer   string        `json:"manufacturer"`
	Model          string        `json:"model"`
	Name           string        `json:"name,omitempty"`
	AndroidVersion string        `json:"android_version"`
	SdkLevel       int           `json:"sdk_level,omitempty"`
	BuildID        string        `json:"build_id"`
	Fingerprint    string        `json:"fingerprint"`
	KernelVersion  string        `json:"kernel_version,omitempty"`
	RAMBytes       int64         `json:"ram_bytes"`
	StorageBytes   int64         `json:"storage_bytes"`
	Uptime         time.Duration `json:"uptime,omitempty"`
	Rooted         bool          `json:"rooted"`
	Foreground     string        `json:"foreground,omitempty"`
	ThirdPartyApps int           `json:"third_party_apps"`
}

// InfoDevice is what CollectDeviceInfo reads from, *adb.Device implements it.
type InfoDevice interface {
	Root(ctx context.Context) (string, error)
	WaitForState(ctx context.Context, want adb.DeviceState, interval time.Duration) error
	GetProperties(ctx context.Context, filter adb.PropertiesFilter) (adb.AndroidProperties, error)
	GetDeviceName(ctx context.Context) (string, error)
	MemTotal(ctx context.Context) (int64, error)
	DF(ctx context.Context) ([]adb.DfEntry, error)
	Uptime(ctx context.Context) (time.Duration, error)
	Uname(ctx context.Context) (adb.UnameInfo, error)
	ForegroundActivity(ctx context.Context) (adb.Activity, error)
	ListPackages(ctx context.Context, thirdParty bool) ([]string, error)
}

var _ InfoDevice = (*adb.Device)(nil)

type InfoOptions struct {
	// Root restarts adbd as root first, some properties are hidden otherwise.
	Root bool
	// RootWait bounds the wait for adbd to come back after the restart.
	RootWait time.Duration
}

var infoProperties = []string{
	adb.PropProductManu,
	adb.PropProductModel,
	adb.PropSerial,
	adb.PropBuildVersionRelease,
	adb.PropBuildVersionSdk,
	adb.PropBuildID,
	adb.PropBuildFingerprint,
}

// CollectDeviceInfo gathers what it can. The returned info is never nil; the error
// lists every item that could not be read, missing properties are left empty.
func CollectDeviceInfo(ctx context.Context, dev InfoDevice, opts InfoOptions) (*DeviceInfo, error) {
	info := &DeviceInfo{}
	var result *multierror.Error

	if opts.Root {
		msg, err := dev.Root(ctx)
		if err != nil {
			log.Warnf("adb root: %v", err)
		} else {
			info.Rooted = true
			log.Debugf("adb root: %s", msg)
			wait := opts.RootWait
			if wait <= 0 {
				wait = 10 * time.Second
			}
			wctx, cancel := context.WithTimeout(ctx, wait)
			if err = dev.WaitForState(wctx, adb.StateOnline, 200*time.Millisecond); err != nil {
				result = multierror.Append(result, fmt.Errorf("wait after root: %w", err))
			}
			cancel()
		}
	}

	props, err := dev.GetProperties(ctx, adb.PropertyKeys(infoProperties...))
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("properties: %w", err))
	}
	info.Manufacturer = props.Value(adb.PropProductManu)
	info.Model = props.Value(adb.PropProductModel)
	info.Serial = props.Value(adb.PropSerial)
	info.AndroidVersion = props.Value(adb.PropBuildVersionRelease)
	info.BuildID = props.Value(adb.PropBuildID)
	info.Fingerprint = props.Value(adb.PropBuildFingerprint)
	if level, err := props.SdkLevel(); err == nil {
		info.SdkLevel = level
	}

	if info.RAMBytes, err = dev.MemTotal(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("memory: %w", err))
	}

	if entries, err := dev.DF(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("storage: %w", err))
	} else if data, ok := adb.FindMount(entries, "/data"); ok {
		info.StorageBytes = int64(data.Size)
	} else {
		result = multierror.Append(result, fmt.Errorf("storage: /data: %w", adb.ErrNotFound))
	}

	// best effort, older builds lack settings or a readable /proc/version
	if name, err := dev.GetDeviceName(ctx); err == nil {
		info.Name = name
	}
	if uptime, err := dev.Uptime(ctx); err == nil {
		info.Uptime = uptime
	}
	if uname, err := dev.Uname(ctx); err == nil {
		info.KernelVersion = uname.Version
	}
	if a, err := dev.ForegroundActivity(ctx); err == nil {
		info.Foreground = a.Fullname
	}
	if pkgs, err := dev.ListPackages(ctx, true); err == nil {
		info.ThirdPartyApps = len(pkgs)
	}

	return info, result.ErrorOrNil()
}

// GB converts bytes to gibibytes, the unit the report prints.
func GB(b int64) float64 {
	return float64(b) / (1 << 30)
}
