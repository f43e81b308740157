package adb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
)

// VideoDevice is one card listed by v4l2-ctl.
type VideoDevice struct {
	Card  string   // "USB Camera (usb-xhci-hcd.0.auto-1)"
	Nodes []string // /dev/video0, /dev/media0
}

// $ adb shell v4l2-ctl --list-devices
// rkisp_mainpath (platform:rkisp-vir0):
//
//	/dev/video0
//	/dev/video1
//	/dev/media0
//
// USB Camera: USB Camera (usb-xhci-hcd.0.auto-1):
//
//	/dev/video8
//	/dev/video9
func parseV4l2Devices(resp []byte) (list []VideoDevice) {
	scanner := bufio.NewScanner(bytes.NewReader(resp))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case line[0] != ' ' && line[0] != '\t':
			list = append(list, VideoDevice{Card: strings.TrimSuffix(trimmed, ":")})
		case len(list) > 0 && strings.HasPrefix(trimmed, "/dev/"):
			list[len(list)-1].Nodes = append(list[len(list)-1].Nodes, trimmed)
		}
	}
	return
}

// ListVideoDevices runs `v4l2-ctl --list-devices`. A non-zero exit, eg. when the
// tool is missing or no camera is attached, is an error carrying stderr.
func (d *Device) ListVideoDevices(ctx context.Context) ([]VideoDevice, []byte, error) {
	res, err := d.RunShellV2(ctx, "v4l2-ctl", "--list-devices")
	if err != nil {
		return nil, nil, err
	}
	raw := append(res.Stdout, res.Stderr...)
	if !res.Success() {
		return nil, raw, fmt.Errorf("v4l2-ctl --list-devices: exit %d: %s", res.ExitCode, bytes.TrimSpace(res.Stderr))
	}
	return parseV4l2Devices(res.Stdout), raw, nil
}
