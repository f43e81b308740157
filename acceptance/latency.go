package acceptance

import (
	"context"

	adb "github.com/prife/adbcheck"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Pinger runs ping on the device, *adb.Device implements it.
type Pinger interface {
	Ping(ctx context.Context, host string, count int) (adb.PingStats, error)
}

var _ Pinger = (*adb.Device)(nil)

// LatencyResult is the ping outcome for one endpoint.
type LatencyResult struct {
	adb.PingStats
	Err error `json:"-"`
}

// MeasureLatency pings every endpoint count times from the device. At most concurrency
// endpoints run at once, values below 1 mean one at a time. Results keep the order
// of endpoints; a failed endpoint keeps whatever replies were parsed and its error.
// The returned error is only set when ctx is done.
func MeasureLatency(ctx context.Context, dev Pinger, endpoints []string, count, concurrency int) ([]LatencyResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]LatencyResult, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, host := range endpoints {
		i, host := i, host
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = LatencyResult{PingStats: adb.PingStats{Host: host}, Err: gctx.Err()}
				return nil
			}
			entry := log.WithField("host", host)
			entry.Infof("ping -c %d", count)
			stats, err := dev.Ping(gctx, host, count)
			if err != nil {
				entry.Errorf("ping: %v", err)
			} else {
				entry.Infof("mean %.2f ms, loss %.1f%%", stats.Mean(), stats.LossPercent)
			}
			results[i] = LatencyResult{PingStats: stats, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}
