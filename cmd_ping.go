package adb

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/samber/lo"
)

// PingStats summarises one `ping -c N host` run on the device.
type PingStats struct {
	Host        string    `json:"host"`
	Samples     []float64 `json:"-"` // round trip times in ms, in reply order
	Transmitted int       `json:"packets_transmitted"`
	Received    int       `json:"packets_received"`
	LossPercent float64   `json:"packet_loss_percent"`
}

/*
$ adb shell ping -c 3 www.baidu.com
PING www.a.shifen.com (110.242.68.3) 56(84) bytes of data.
64 bytes from 110.242.68.3: icmp_seq=1 ttl=52 time=10.3 ms
64 bytes from 110.242.68.3: icmp_seq=2 ttl=52 time=9.87 ms
64 bytes from 110.242.68.3: icmp_seq=3 ttl=52 time=11 ms

--- www.a.shifen.com ping statistics ---
3 packets transmitted, 3 received, 0% packet loss, time 2003ms
rtt min/avg/max/mdev = 9.870/10.390/11.000/0.462 ms
*/
var (
	pingTimeRegex  = regexp.MustCompile(`time=(\d+\.?\d*) ms`)
	pingStatsRegex = regexp.MustCompile(`(\d+) packets transmitted, (\d+) received,.*?(\d+(?:\.\d+)?)% packet loss`)
)

// ParsePing extracts every reply time and the summary line. A missing summary leaves
// the counters at zero, it is not an error: the caller still gets the samples.
func ParsePing(resp []byte) (stats PingStats) {
	for _, m := range pingTimeRegex.FindAllSubmatch(resp, -1) {
		v, err := strconv.ParseFloat(string(m[1]), 64)
		if err != nil {
			continue
		}
		stats.Samples = append(stats.Samples, v)
	}

	if m := pingStatsRegex.FindSubmatch(resp); m != nil {
		stats.Transmitted, _ = strconv.Atoi(string(m[1]))
		stats.Received, _ = strconv.Atoi(string(m[2]))
		stats.LossPercent, _ = strconv.ParseFloat(string(m[3]), 64)
	}
	return
}

// Mean of the samples, 0 without samples.
func (p PingStats) Mean() float64 {
	if len(p.Samples) == 0 {
		return 0
	}
	return lo.Sum(p.Samples) / float64(len(p.Samples))
}

// Median of the samples, 0 without samples.
func (p PingStats) Median() float64 {
	n := len(p.Samples)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), p.Samples...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Min is the fastest reply, 0 without samples.
func (p PingStats) Min() float64 {
	return lo.Min(p.Samples)
}

// Max is the slowest reply, 0 without samples.
func (p PingStats) Max() float64 {
	return lo.Max(p.Samples)
}

// Ping runs `ping -c count host` on the device. ping exits non-zero when replies are
// lost, so the output is parsed whatever the status.
func (d *Device) Ping(ctx context.Context, host string, count int) (PingStats, error) {
	if count < 1 {
		return PingStats{Host: host}, fmt.Errorf("ping %s: count must be positive, got %d", host, count)
	}
	resp, err := d.RunCommandCtx(ctx, "ping", "-c", strconv.Itoa(count), host)
	stats := ParsePing(resp)
	stats.Host = host
	if err != nil {
		return stats, err
	}
	return stats, nil
}
