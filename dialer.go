package adb

import (
	"context"
	"fmt"
	"net"

	"github.com/prife/adbcheck/wire"
)

// Dialer knows how to create connections to an adb server.
type Dialer interface {
	DialContext(ctx context.Context, address string) (*wire.Conn, error)
}

type tcpDialer struct{}

// DialContext connects to the adb server on the host and port set on the netDialer.
// The zero-value will connect to the default, localhost:5037.
func (tcpDialer) DialContext(ctx context.Context, address string) (*wire.Conn, error) {
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: error dialing %s: %w", wire.ErrServerNotAvailable, address, err)
	}

	return wire.NewConn(netConn), nil
}
