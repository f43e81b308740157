package adb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NetInterface is one block of `ip addr` output.
type NetInterface struct {
	Index int
	Name  string
	// Peer is the part after '@' in names like eth0@if5, empty otherwise.
	Peer  string
	Flags []string
	State string
	IPv4  []string // CIDR notation, e.g. 192.168.1.5/24
	IPv6  []string
}

// HasIPv4 reports whether at least one IPv4 address is bound.
func (n NetInterface) HasIPv4() bool {
	return len(n.IPv4) > 0
}

// IsUp reports the UP administrative flag.
func (n NetInterface) IsUp() bool {
	for _, f := range n.Flags {
		if f == "UP" {
			return true
		}
	}
	return false
}

/*
$ adb shell ip addr
1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN group default qlen 1000
    link/loopback 00:00:00:00:00:00 brd 00:00:00:00:00:00
    inet 127.0.0.1/8 scope host lo
       valid_lft forever preferred_lft forever
    inet6 ::1/128 scope host
       valid_lft forever preferred_lft forever
2: eth0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc mq state UP group default qlen 1000
    link/ether 02:00:00:12:34:56 brd ff:ff:ff:ff:ff:ff
    inet 192.168.1.5/24 brd 192.168.1.255 scope global eth0
       valid_lft forever preferred_lft forever
3: wlan0: <NO-CARRIER,BROADCAST,MULTICAST,UP> mtu 1500 qdisc mq state DOWN group default qlen 1000
    link/ether 4e:1a:2b:3c:4d:5e brd ff:ff:ff:ff:ff:ff
*/
var (
	//                                    2:    eth0@if5:  <BROADCAST,UP>  mtu 1500 ... state UP
	ipAddrHeaderRegex = regexp.MustCompile(`^(\d+):\s+([^:\s]+):\s+<([^>]*)>(.*)$`)
	ipAddrStateRegex  = regexp.MustCompile(`\bstate\s+(\S+)`)
	ipAddrInetRegex   = regexp.MustCompile(`^\s+(inet6?)\s+(\S+)`)
)

// ParseIPAddr splits `ip addr` output into per-interface blocks. Lines before the first
// header and lines it does not understand are ignored; an empty result means the output
// was not `ip addr` output at all.
func ParseIPAddr(resp []byte) (list []NetInterface) {
	scanner := bufio.NewScanner(bytes.NewReader(resp))
	var cur *NetInterface
	flush := func() {
		if cur != nil {
			list = append(list, *cur)
			cur = nil
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if m := ipAddrHeaderRegex.FindStringSubmatch(line); m != nil {
			flush()
			index, _ := strconv.Atoi(m[1])
			name, peer, _ := strings.Cut(m[2], "@")
			cur = &NetInterface{Index: index, Name: name, Peer: peer}
			if m[3] != "" {
				cur.Flags = strings.Split(m[3], ",")
			}
			if s := ipAddrStateRegex.FindStringSubmatch(m[4]); s != nil {
				cur.State = s[1]
			}
			continue
		}
		if cur == nil {
			continue
		}
		if m := ipAddrInetRegex.FindStringSubmatch(line); m != nil {
			if m[1] == "inet" {
				cur.IPv4 = append(cur.IPv4, m[2])
			} else {
				cur.IPv6 = append(cur.IPv6, m[2])
			}
		}
	}
	flush()
	return
}

// FindInterface returns the block named name, matching names with an @peer suffix on the part before '@'.
func FindInterface(list []NetInterface, name string) (NetInterface, bool) {
	name, _, _ = strings.Cut(name, "@")
	for _, n := range list {
		if n.Name == name {
			return n, true
		}
	}
	return NetInterface{}, false
}

// IPAddr runs `ip addr` on the device.
func (d *Device) IPAddr(ctx context.Context) ([]NetInterface, error) {
	resp, err := d.RunCommandCtx(ctx, "ip", "addr")
	if err != nil {
		return nil, err
	}
	list := ParseIPAddr(resp)
	if len(list) == 0 {
		return nil, fmt.Errorf("ip addr: %s", bytes.TrimSpace(resp))
	}
	return list, nil
}
