// Package transport provides the byte streams peer connections run on.
package transport

import (
	"context"
	"net"
	"time"
)

// Transport opens streams to peers. Streams are net.Conn so that connections can use deadlines.
type Transport interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// TCP dials peers over TCP.
type TCP struct {
	Timeout time.Duration
}

// Dial connects to addr.
func (t TCP) Dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: t.Timeout}
	return d.DialContext(ctx, "tcp", addr)
}

// Listen opens a TCP listener on addr.
func Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
