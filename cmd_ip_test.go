package adb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ipAddrOutput = `1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN group default qlen 1000
    link/loopback 00:00:00:00:00:00 brd 00:00:00:00:00:00
    inet 127.0.0.1/8 scope host lo
       valid_lft forever preferred_lft forever
    inet6 ::1/128 scope host
       valid_lft forever preferred_lft forever
2: eth0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc mq state UP group default qlen 1000
    link/ether 02:00:00:12:34:56 brd ff:ff:ff:ff:ff:ff
    inet 192.168.1.5/24 brd 192.168.1.255 scope global eth0
       valid_lft forever preferred_lft forever
    inet6 fe80::ff:fe12:3456/64 scope link
       valid_lft forever preferred_lft forever
3: wlan0: <NO-CARRIER,BROADCAST,MULTICAST,UP> mtu 1500 qdisc mq state DOWN group default qlen 1000
    link/ether 4e:1a:2b:3c:4d:5e brd ff:ff:ff:ff:ff:ff
4: rmnet_data0@if3: <UP,LOWER_UP> mtu 1500 qdisc noqueue state UNKNOWN
    inet 10.10.0.2/30 scope global rmnet_data0
`

func TestParseIPAddr(t *testing.T) {
	list := ParseIPAddr([]byte(ipAddrOutput))
	require.Len(t, list, 4)

	assert.Equal(t, "lo", list[0].Name)
	assert.Equal(t, []string{"127.0.0.1/8"}, list[0].IPv4)
	assert.Equal(t, []string{"::1/128"}, list[0].IPv6)

	eth0 := list[1]
	assert.Equal(t, 2, eth0.Index)
	assert.Equal(t, "UP", eth0.State)
	assert.True(t, eth0.IsUp())
	assert.True(t, eth0.HasIPv4())
	assert.Equal(t, []string{"192.168.1.5/24"}, eth0.IPv4)
	assert.Equal(t, []string{"fe80::ff:fe12:3456/64"}, eth0.IPv6)

	wlan0 := list[2]
	assert.Equal(t, "DOWN", wlan0.State)
	assert.False(t, wlan0.HasIPv4())
	assert.Empty(t, wlan0.IPv6)

	assert.Equal(t, "rmnet_data0", list[3].Name)
	assert.Equal(t, "if3", list[3].Peer)
}

func TestParseIPAddrCRLF(t *testing.T) {
	list := ParseIPAddr([]byte("2: eth0: <UP> mtu 1500 state UP\r\n    inet 10.0.0.2/24 scope global eth0\r\n"))
	require.Len(t, list, 1)
	assert.Equal(t, []string{"10.0.0.2/24"}, list[0].IPv4)
}

func TestParseIPAddrMalformed(t *testing.T) {
	assert.Empty(t, ParseIPAddr(nil))
	assert.Empty(t, ParseIPAddr([]byte("/system/bin/sh: ip: not found\n")))
	// inet lines outside a block are ignored
	assert.Empty(t, ParseIPAddr([]byte("    inet 10.0.0.2/24 scope global eth0\n")))
}

func TestFindInterface(t *testing.T) {
	list := ParseIPAddr([]byte(ipAddrOutput))

	n, ok := FindInterface(list, "eth0")
	assert.True(t, ok)
	assert.Equal(t, 2, n.Index)

	n, ok = FindInterface(list, "rmnet_data0@if3")
	assert.True(t, ok)
	assert.Equal(t, 4, n.Index)

	_, ok = FindInterface(list, "eth1")
	assert.False(t, ok)
}

func TestDevice_IPAddr(t *testing.T) {
	d, s := newMockDevice(AnyDevice(), deviceSession(ipAddrOutput), deviceSession("ip: not found\n"))

	list, err := d.IPAddr(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 4)
	assert.Equal(t, "shell:ip addr", s.Requests()[1])

	_, err = d.IPAddr(context.Background())
	assert.Error(t, err)
}
