// Package tcp provides the raw TCP transport to the relay.
package tcp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// KeepAlivePeriod is applied to every dialed connection.
const KeepAlivePeriod = 30 * time.Second

// Dial opens a TCP connection to address. Nagle's algorithm is disabled so
// short chat frames reach the relay immediately.
func Dial(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout:   timeout,
		KeepAlive: KeepAlivePeriod,
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	return conn, nil
}
