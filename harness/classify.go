package harness

import (
	"fmt"
	"strings"

	adb "github.com/prife/adbcheck"
)

// ClassifyMode selects how an interface dump is judged.
type ClassifyMode int

const (
	// ModeStructural parses the dump into interface blocks and requires an IPv4
	// address on the named interface.
	ModeStructural ClassifyMode = iota
	// ModeSubstring only requires the interface name and "inet " to appear
	// anywhere in the dump, whichever interface they belong to.
	ModeSubstring
)

func (m ClassifyMode) String() string {
	switch m {
	case ModeStructural:
		return "structural"
	case ModeSubstring:
		return "substring"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseClassifyMode accepts "structural" and "substring".
func ParseClassifyMode(s string) (ClassifyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "structural":
		return ModeStructural, nil
	case "substring":
		return ModeSubstring, nil
	}
	return ModeStructural, fmt.Errorf("%w: unknown classify mode %q", ErrInvalidConfig, s)
}

// Classify judges dump in the default structural mode.
func Classify(dump, iface string) Outcome {
	return ModeStructural.Classify(dump, iface)
}

// Classify is a pure function of dump and iface.
func (m ClassifyMode) Classify(dump, iface string) Outcome {
	outcome, _ := m.classify(dump, iface)
	return outcome
}

// classify also returns ErrMalformedInterfaceOutput when a structural parse finds no block.
func (m ClassifyMode) classify(dump, iface string) (Outcome, error) {
	if m == ModeSubstring {
		if strings.Contains(dump, iface) && strings.Contains(dump, "inet ") {
			return Connected, nil
		}
		return NotConnected, nil
	}

	list := adb.ParseIPAddr([]byte(dump))
	if len(list) == 0 {
		return NotConnected, ErrMalformedInterfaceOutput
	}
	if n, ok := adb.FindInterface(list, iface); ok && n.HasIPv4() {
		return Connected, nil
	}
	return NotConnected, nil
}
