package adb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const v4l2DevicesOutput = "rkisp_mainpath (platform:rkisp-vir0):\n" +
	"\t/dev/video0\n" +
	"\t/dev/video1\n" +
	"\t/dev/media0\n" +
	"\n" +
	"USB Camera: USB Camera (usb-xhci-hcd.0.auto-1):\n" +
	"\t/dev/video8\n" +
	"\t/dev/video9\n"

func Test_parseV4l2Devices(t *testing.T) {
	list := parseV4l2Devices([]byte(v4l2DevicesOutput))
	require.Len(t, list, 2)
	assert.Equal(t, VideoDevice{
		Card:  "rkisp_mainpath (platform:rkisp-vir0)",
		Nodes: []string{"/dev/video0", "/dev/video1", "/dev/media0"},
	}, list[0])
	assert.Equal(t, "USB Camera: USB Camera (usb-xhci-hcd.0.auto-1)", list[1].Card)
	assert.Equal(t, []string{"/dev/video8", "/dev/video9"}, list[1].Nodes)

	assert.Empty(t, parseV4l2Devices(nil))
}

func TestDevice_ListVideoDevices(t *testing.T) {
	d, s := newMockDevice(AnyDevice(),
		okay("shell_v2"),
		deviceSession(shellV2(v4l2DevicesOutput, "", 0)),
		deviceSession(shellV2("", "Cannot open device /dev/video0, exiting.\n", 1)))

	list, raw, err := d.ListVideoDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, v4l2DevicesOutput, string(raw))
	assert.Equal(t, "shell,v2,raw:v4l2-ctl --list-devices", s.Requests()[2])

	_, raw, err = d.ListVideoDevices(context.Background())
	assert.ErrorContains(t, err, "exit 1")
	assert.Contains(t, string(raw), "Cannot open device")
}
