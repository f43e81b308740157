package harness

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome is how one reboot cycle ended.
type Outcome int

const (
	// Connected the interface came up with an IPv4 address.
	Connected Outcome = iota
	// NotConnected the device answered but the interface had no IPv4 address.
	NotConnected
	// ChannelError the device could not be reached or the query failed.
	ChannelError
)

func (o Outcome) String() string {
	switch o {
	case Connected:
		return "connected"
	case NotConnected:
		return "not-connected"
	case ChannelError:
		return "channel-error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Success reports whether the cycle counts as a success.
func (o Outcome) Success() bool {
	return o == Connected
}

// TestCycle is one reboot iteration.
type TestCycle struct {
	Index     int       `json:"index"`
	Outcome   Outcome   `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
	// RawInterfaceDump is kept for failed cycles only.
	RawInterfaceDump string        `json:"raw_interface_dump,omitempty"`
	Err              string        `json:"error,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// Report aggregates the cycles of one run. It is only mutated through record,
// so SuccessCount + FailureCount == TotalCycles holds at every point.
type Report struct {
	RunID      string    `json:"run_id"`
	Interface  string    `json:"interface"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Canceled   bool      `json:"canceled"`

	TotalCycles  int `json:"TestCount"`
	SuccessCount int `json:"TestConSuccessCount"`
	FailureCount int `json:"TestConFailCount"`

	Failed []TestCycle `json:"failed_cycles,omitempty"`
}

func (r *Report) record(c TestCycle) {
	r.TotalCycles++
	if c.Outcome.Success() {
		r.SuccessCount++
		return
	}
	r.FailureCount++
	r.Failed = append(r.Failed, c)
}

// SuccessRate is SuccessCount / TotalCycles, 0 for an empty report.
func (r *Report) SuccessRate() float64 {
	if r.TotalCycles == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.TotalCycles)
}

// Elapsed is the wall time of the run.
func (r *Report) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.Marshal(struct {
		*plain
		SuccessRate float64 `json:"success_rate"`
	}{(*plain)(r), r.SuccessRate()})
}
