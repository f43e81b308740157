package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RemoteResult is what a remote command produced.
type RemoteResult struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

// Channel is the control path to the device under test.
type Channel interface {
	// Reboot asks the device to restart. The transport usually drops while doing so.
	Reboot(ctx context.Context) error
	// WaitForDevice blocks until the device answers again, or fails with
	// ErrDeviceUnreachable once timeout has passed.
	WaitForDevice(ctx context.Context, timeout time.Duration) error
	// RunRemote runs cmd on the device.
	RunRemote(ctx context.Context, cmd ...string) (RemoteResult, error)
}

// Config describes one run.
type Config struct {
	Cycles int
	// BootWait is the grace period between the reboot request and the first poll.
	BootWait time.Duration
	// ReadyTimeout bounds the wait for the device and every remote call of a cycle.
	ReadyTimeout time.Duration
	// Interface is the network interface expected to come up, eg. eth0.
	Interface string
}

func (c Config) Validate() error {
	if c.Cycles < 1 {
		return fmt.Errorf("%w: cycles must be at least 1, got %d", ErrInvalidConfig, c.Cycles)
	}
	if strings.TrimSpace(c.Interface) == "" {
		return fmt.Errorf("%w: interface name is empty", ErrInvalidConfig)
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("%w: ready timeout must be positive, got %s", ErrInvalidConfig, c.ReadyTimeout)
	}
	if c.BootWait < 0 {
		return fmt.Errorf("%w: boot wait is negative: %s", ErrInvalidConfig, c.BootWait)
	}
	return nil
}

// Observer is called after every finished cycle.
type Observer func(c TestCycle)

type Option func(h *Harness)

func WithObserver(o Observer) Option {
	return func(h *Harness) { h.observer = o }
}

func WithLogger(l *log.Entry) Option {
	return func(h *Harness) { h.log = l }
}

func WithClassifyMode(m ClassifyMode) Option {
	return func(h *Harness) { h.mode = m }
}

// Harness reboots a device over and over and checks the network interface
// is up after each boot.
type Harness struct {
	ch       Channel
	mode     ClassifyMode
	observer Observer
	log      *log.Entry
	now      func() time.Time
}

func New(ch Channel, opts ...Option) *Harness {
	h := &Harness{
		ch:   ch,
		mode: ModeStructural,
		log:  log.NewEntry(log.StandardLogger()),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// state of a single cycle
type state string

const (
	stateIdle         state = "idle"
	stateRebooting    state = "rebooting"
	stateAwaitingBoot state = "awaiting-boot"
	statePolling      state = "polling"
	stateClassified   state = "classified"
)

// Run performs cfg.Cycles reboot cycles and returns their report.
// It reboots the device once per cycle.
//
// Only configuration errors are returned. Device failures are counted in the
// report. Cancelling ctx stops the run before the next cycle starts; the cycle
// in flight is still classified and the report comes back with Canceled set.
func (h *Harness) Run(ctx context.Context, cfg Config) (*Report, error) {
	if h.ch == nil {
		return nil, ErrNoChannel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Interface: cfg.Interface,
		StartedAt: h.now(),
	}
	logger := h.log.WithFields(log.Fields{"run": report.RunID, "iface": cfg.Interface})
	logger.Infof("reboot test started: %d cycles, classify %s", cfg.Cycles, h.mode)

	for i := 0; i < cfg.Cycles; i++ {
		if ctx.Err() != nil {
			report.Canceled = true
			logger.Warnf("reboot test canceled after %d cycles", report.TotalCycles)
			break
		}

		cycle := h.runCycle(ctx, i, cfg, logger.WithField("cycle", i))
		report.record(cycle)
		if h.observer != nil {
			h.observer(cycle)
		}
	}

	report.FinishedAt = h.now()
	logger.WithFields(log.Fields{
		"total":   report.TotalCycles,
		"success": report.SuccessCount,
		"fail":    report.FailureCount,
	}).Info("reboot test finished")
	return report, nil
}

func (h *Harness) runCycle(ctx context.Context, index int, cfg Config, logger *log.Entry) TestCycle {
	cycle := TestCycle{Index: index, Timestamp: h.now()}
	st := stateIdle
	enter := func(next state) {
		logger.Debugf("%s -> %s", st, next)
		st = next
	}

	// once started, a cycle runs to classification even if ctx is canceled
	cycleCtx := context.WithoutCancel(ctx)

	enter(stateRebooting)
	rctx, cancel := context.WithTimeout(cycleCtx, cfg.ReadyTimeout)
	if err := h.ch.Reboot(rctx); err != nil {
		logger.Warnf("reboot: %v", err)
	}
	cancel()

	// the grace period is part of the cycle, cancellation does not shorten it
	enter(stateAwaitingBoot)
	sleepCtx(cycleCtx, cfg.BootWait)

	finish := func(outcome Outcome, dump string, err error) TestCycle {
		enter(stateClassified)
		cycle.Outcome = outcome
		cycle.Duration = h.now().Sub(cycle.Timestamp)
		if outcome != Connected {
			cycle.RawInterfaceDump = dump
		}
		if err != nil {
			cycle.Err = err.Error()
		}
		entry := logger.WithField("outcome", outcome)
		if outcome == Connected {
			entry.Info("cycle finished")
		} else if cycle.Err != "" {
			entry.Warnf("cycle failed: %s", cycle.Err)
		} else {
			entry.Warn("cycle failed")
		}
		return cycle
	}

	if err := h.ch.WaitForDevice(cycleCtx, cfg.ReadyTimeout); err != nil {
		return finish(ChannelError, "", err)
	}

	enter(statePolling)
	qctx, cancel := context.WithTimeout(cycleCtx, cfg.ReadyTimeout)
	res, err := h.ch.RunRemote(qctx, "ip", "addr")
	cancel()
	if err != nil {
		return finish(ChannelError, res.Stdout, err)
	}
	if res.ExitStatus != 0 {
		err = fmt.Errorf("%w: ip addr exited %d: %s", ErrRemoteCommandFailed, res.ExitStatus, strings.TrimSpace(res.Stderr))
		return finish(ChannelError, res.Stdout, err)
	}

	outcome, err := h.mode.classify(res.Stdout, cfg.Interface)
	if err != nil {
		logger.Warnf("%v: %q", err, truncate(res.Stdout, 200))
	}
	return finish(outcome, res.Stdout, err)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
