package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	adb "github.com/prife/adbcheck"
	"github.com/prife/adbcheck/acceptance"
	"github.com/prife/adbcheck/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *harness.Report {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &harness.Report{
		RunID:        "4f1c2b9e",
		Interface:    "eth0",
		StartedAt:    start,
		FinishedAt:   start.Add(10 * time.Minute),
		TotalCycles:  4,
		SuccessCount: 3,
		FailureCount: 1,
		Failed: []harness.TestCycle{{
			Index:            2,
			Outcome:          harness.NotConnected,
			Timestamp:        start.Add(5 * time.Minute),
			RawInterfaceDump: "2: eth0: <NO-CARRIER,BROADCAST,MULTICAST,UP> mtu 1500\n    link/ether 00:11:22:33:44:55",
		}},
	}
}

func TestRenderHarnessText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHarness(&buf, sampleReport(), "text"))
	out := buf.String()
	assert.Contains(t, out, "TestCount: 4\n")
	assert.Contains(t, out, "TestConSuccessCount: 3\n")
	assert.Contains(t, out, "TestConFailCount: 1\n")
	assert.Contains(t, out, "SuccessRate: 75.00%")
	assert.Contains(t, out, "cycle 2 not-connected")
	assert.Contains(t, out, "    2: eth0: <NO-CARRIER")
}

func TestRenderHarnessTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHarness(&buf, sampleReport(), "table"))
	out := buf.String()
	assert.Contains(t, out, "TestConSuccessCount")
	assert.Contains(t, out, "75.00%")
	assert.Contains(t, out, "not-connected")
}

func TestRenderHarnessMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHarness(&buf, sampleReport(), "markdown"))
	out := buf.String()
	assert.Contains(t, out, "### Reboot test eth0 (4f1c2b9e)")
	assert.Contains(t, out, "| Metric | Value |")
	assert.Contains(t, out, "| TestCount | 4 |")
	assert.Contains(t, out, "| TestConSuccessCount | 3 |")
	assert.Contains(t, out, "| TestConFailCount | 1 |")
	assert.Contains(t, out, "| Success rate | 75.00% |")
	assert.Contains(t, out, "| 2 | 2024-03-01 10:05:00 | not-connected |")
}

func TestRenderHarnessJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHarness(&buf, sampleReport(), "json"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.EqualValues(t, 4, got["TestCount"])
	assert.EqualValues(t, 3, got["TestConSuccessCount"])
	assert.EqualValues(t, 1, got["TestConFailCount"])
	assert.InDelta(t, 0.75, got["success_rate"], 0.0001)
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, RenderHarness(&buf, sampleReport(), "xml"), ErrUnknownFormat)
	assert.ErrorIs(t, RenderPing(&buf, nil, "xml"), ErrUnknownFormat)
	assert.ErrorIs(t, RenderDeviceInfo(&buf, &acceptance.DeviceInfo{}, "xml"), ErrUnknownFormat)
	assert.ErrorIs(t, RenderInstall(&buf, nil, "xml"), ErrUnknownFormat)
}

func pingResults() []acceptance.LatencyResult {
	return []acceptance.LatencyResult{
		{PingStats: adb.PingStats{Host: "www.baidu.com", Samples: []float64{10, 14, 12}, Transmitted: 3, Received: 3}},
		{PingStats: adb.PingStats{Host: "202.63.172.185", Transmitted: 3, LossPercent: 100}, Err: errors.New("exit status 1")},
	}
}

func TestRenderPingMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPing(&buf, pingResults(), "markdown"))
	out := buf.String()
	assert.Contains(t, out, "### www.baidu.com")
	assert.Contains(t, out, "| Statistic | Value |")
	assert.Contains(t, out, "| Mean | 12.00 ms |")
	assert.Contains(t, out, "| Median | 12.00 ms |")
	assert.Contains(t, out, "| Min | 10.00 ms |")
	assert.Contains(t, out, "| Max | 14.00 ms |")
	assert.Contains(t, out, "| Packet Loss | 100.0% |")
	assert.Contains(t, out, "| Error | exit status 1 |")
}

func TestRenderPingJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPing(&buf, pingResults(), "json"))
	var rows []pingRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 12.0, rows[0].Mean)
	assert.Equal(t, "exit status 1", rows[1].Err)
}

func TestRenderPingTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPing(&buf, pingResults(), "table"))
	assert.Contains(t, buf.String(), "202.63.172.185")
}

func TestRenderDeviceInfo(t *testing.T) {
	info := &acceptance.DeviceInfo{
		Serial:       "a1b2c3",
		Model:        "rk3588",
		RAMBytes:     8 << 30,
		StorageBytes: 3 << 29,
	}
	var buf bytes.Buffer
	require.NoError(t, RenderDeviceInfo(&buf, info, "text"))
	out := buf.String()
	assert.Contains(t, out, "Serial: a1b2c3\n")
	assert.Contains(t, out, "RAM: 8.00 GB\n")
	assert.Contains(t, out, "Storage (/data): 1.50 GB\n")

	buf.Reset()
	require.NoError(t, RenderDeviceInfo(&buf, info, "table"))
	assert.Contains(t, buf.String(), "8.00 GB")
}

func TestRenderInstall(t *testing.T) {
	results := []acceptance.InstallResult{
		{Path: "/opt/pre-apks/camera.apk", Size: 1024, Duration: 1500 * time.Millisecond},
		{Path: "/opt/pre-apks/launcher.apk", Size: 2048, Err: &adb.InstallError{Code: "INSTALL_FAILED_OLDER_SDK"}},
	}
	var buf bytes.Buffer
	require.NoError(t, RenderInstall(&buf, results, "text"))
	out := buf.String()
	assert.Contains(t, out, "camera.apk: Success (1024 bytes, 1.5s)")
	assert.Contains(t, out, "launcher.apk: Failure")
	assert.Contains(t, out, "INSTALL_FAILED_OLDER_SDK")
	assert.Contains(t, out, "installed 1/2")
}

func TestRenderCapture(t *testing.T) {
	res := &acceptance.CaptureResult{
		Devices:   []adb.VideoDevice{{Card: "USB Camera", Nodes: []string{"/dev/video8", "/dev/video9"}}},
		LocalPath: "out/capture_output.MJPEG",
		Size:      4096,
	}
	var buf bytes.Buffer
	require.NoError(t, RenderCapture(&buf, res, "text"))
	assert.Contains(t, buf.String(), "camera: USB Camera /dev/video8 /dev/video9")
	assert.Contains(t, buf.String(), "capture: out/capture_output.MJPEG, 4096 bytes")
}
