package adb

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Android 14
const psOutput = `USER           PID  PPID     VSZ    RSS WCHAN            ADDR S NAME
root             1     0   19652   1700 SyS_epoll_wait      0 S init
root             2     0       0      0 kthreadd            0 S [kthreadd]
root           845     2          0      0 0                   0 S [irq/227-q6v5 wdog]
shell         4100  1200   10892   2900 do_sys_poll         0 S sh
root          4123  4100   88212   9012 v4l2_poll           0 S ./v4l2_capture
root          4124  4123   20012   1012 0                   0 S v4l2_worker
`

func Test_unpackProccess(t *testing.T) {
	// Android 5.1
	str := `USER      PID   PPID  VSIZE  RSS   WCHAN              PC  NAME
root      1     0     17096  932   ffffffff 00000000 S /init
root      5     2     0      0     ffffffff 00000000 S kworker/0:0H`
	l := unpackProccess([]byte(str), nil)
	require.Len(t, l, 2)
	assert.Equal(t, Process{Uid: "root", Pid: 1, PPid: 0, Name: "/init"}, l[0])
	assert.Equal(t, "kworker/0:0H", l[1].Name)

	l = unpackProccess([]byte(psOutput), nil)
	require.Len(t, l, 6)
	assert.Equal(t, Process{Uid: "root", Pid: 845, PPid: 2, Name: "[irq/227-q6v5 wdog]"}, l[2])

	l = unpackProccess([]byte(psOutput), func(p Process) bool { return p.Uid == "shell" })
	require.Len(t, l, 1)
	assert.Equal(t, 4100, l[0].Pid)
}

func Test_groupProcesses(t *testing.T) {
	all := unpackProccess([]byte(psOutput), nil)
	group := groupProcesses(all, nameFilter("v4l2_capture", false))
	require.Len(t, group, 1)
	for parent, children := range group {
		assert.Equal(t, 4123, parent.Pid)
		require.Len(t, children, 1)
		assert.Equal(t, 4124, children[0].Pid)
	}

	assert.Empty(t, groupProcesses(all, nameFilter("v4l2_capture", true)))
}

func Test_parseKillOutput(t *testing.T) {
	assert.NoError(t, parseKillOutput(nil))
	assert.NoError(t, parseKillOutput([]byte("\r\n")))
	assert.ErrorIs(t, parseKillOutput([]byte("/system/bin/sh: kill: 584: Operation not permitted")), ErrNotPermitted)
	assert.ErrorIs(t, parseKillOutput([]byte("/system/bin/sh: kill: 12006: No such process")), ErrNoSuchProcess)
	assert.Error(t, parseKillOutput([]byte("kill: bad signal")))
}

// psPadding makes the listing long enough to pass the `ps -A` support check.
var psPadding = strings.Repeat("root          9999     2       0      0 0                   0 S [kworker/pad]\n", 3)

func TestDevice_KillPidGroupOf(t *testing.T) {
	d, s := newMockDevice(AnyDevice(),
		deviceSession(psOutput+psPadding),
		deviceSession(""))

	killed, err := d.KillPidGroupOf(context.Background(), "v4l2_capture", false)
	require.NoError(t, err)
	assert.Len(t, killed, 1)
	assert.Equal(t, []string{
		"host:transport-any", "shell:ps -A",
		"host:transport-any", "shell:kill -9 4123 4124",
	}, s.Requests())
}

func TestDevice_KillPidGroupOfMissing(t *testing.T) {
	d, s := newMockDevice(AnyDevice(), deviceSession(psOutput+psPadding))

	_, err := d.KillPidGroupOf(context.Background(), "v4l2_capture", true)
	assert.ErrorIs(t, err, ErrNoSuchProcess)
	assert.Equal(t, 1, s.Dials())
}

func TestDevice_ListProcessesOldPs(t *testing.T) {
	d, s := newMockDevice(AnyDevice(),
		deviceSession("bad pid '-A'\n"),
		deviceSession(psOutput))

	list, err := d.PidOf(context.Background(), "init", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Pid)
	assert.Equal(t, "shell:ps", s.Requests()[3])
}

func TestDevice_KillPidsEmpty(t *testing.T) {
	d, s := newMockDevice(AnyDevice())
	assert.NoError(t, d.KillPids(context.Background(), nil, 9))
	assert.Zero(t, s.Dials())
}
