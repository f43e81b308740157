package adb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The `/proc/uptime` file contains two values, the system's uptime and idle time in seconds.
// Idle time may exceed uptime since each core counts its own idle time.
func parseUptime(resp []byte) (uptime float64, err error) {
	list := strings.Fields(string(resp))
	if len(list) != 2 {
		err = fmt.Errorf("invalid uptime:%s", bytes.TrimSpace(resp))
		return
	}
	return strconv.ParseFloat(list[0], 64)
}

// Uptime returns the time since boot.
func (d *Device) Uptime(ctx context.Context) (time.Duration, error) {
	resp, err := d.RunCommandCtx(ctx, "cat", "/proc/uptime")
	if err != nil {
		return 0, err
	}
	secs, err := parseUptime(resp)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// $ adb shell cat /proc/meminfo
// MemTotal:        5810732 kB
// MemFree:          204056 kB
// MemAvailable:    2171744 kB
func parseMemTotal(resp []byte) (int64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(resp))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "MemTotal:" {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid MemTotal %q: %w", fields[1], err)
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemTotal: %w", ErrNotFound)
}

// MemTotal returns the total RAM in bytes.
func (d *Device) MemTotal(ctx context.Context) (int64, error) {
	resp, err := d.RunCommandCtx(ctx, "cat", "/proc/meminfo")
	if err != nil {
		return 0, err
	}
	return parseMemTotal(resp)
}

type UnameInfo struct {
	Version string    // 4.4.153
	Raw     string    // full /proc/version line
	Built   time.Time // zero when the date is not parsable
}

var unameVersionRegex = regexp.MustCompile(`Linux version (\d+(?:\.\d+)+)`)

const unameBuiltLayout = "Mon Jan 2 15:04:05 MST 2006"

// parseUname reads /proc/version, the build date is the last six fields.
func parseUname(resp []byte) (info UnameInfo, err error) {
	raw := strings.TrimSpace(string(resp))
	m := unameVersionRegex.FindStringSubmatch(raw)
	if m == nil {
		return info, fmt.Errorf("invalid kernel version:%s", raw)
	}
	info.Version = m[1]
	info.Raw = raw

	fields := strings.Fields(raw)
	if len(fields) >= 6 {
		if built, err := time.Parse(unameBuiltLayout, strings.Join(fields[len(fields)-6:], " ")); err == nil {
			info.Built = built
		}
	}
	return info, nil
}

func (d *Device) Uname(ctx context.Context) (UnameInfo, error) {
	resp, err := d.RunCommandCtx(ctx, "cat", "/proc/version")
	if err != nil {
		return UnameInfo{}, err
	}
	return parseUname(resp)
}
