// Package client implements the chat client's connection engine: it owns
// the stream to the relay, negotiates a display name and turns inbound
// frames into Bridge callbacks.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/omochice/relay-chat/internal/transport/tcp"
	"github.com/omochice/relay-chat/internal/transport/ws"
	"github.com/sirupsen/logrus"
)

// Transports understood by Dial.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// Defaults applied to a zero Config.
const (
	DefaultDialTimeout = 5 * time.Second
	DefaultQueueSize   = 64
)

// Stream is the bidirectional byte stream a Connection runs over.
// net.Conn satisfies it.
type Stream interface {
	io.ReadWriteCloser
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Config tunes a Connection. Zero values select defaults.
type Config struct {
	Address     string
	Transport   string
	DialTimeout time.Duration

	// QueueSize bounds the user text held back until the handshake
	// completes.
	QueueSize int

	// MaxNameAttempts caps username prompts. Zero means unlimited.
	MaxNameAttempts int

	Logger logrus.FieldLogger
	Clock  func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Transport == "" {
		c.Transport = TransportTCP
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Dial connects to the relay at cfg.Address and starts a Connection on the
// resulting stream. Failures are returned as *ConnectError.
func Dial(ctx context.Context, cfg Config, bridge Bridge) (*Connection, error) {
	cfg = cfg.withDefaults()

	var (
		stream Stream
		err    error
	)
	switch cfg.Transport {
	case TransportTCP:
		stream, err = tcp.Dial(ctx, cfg.Address, cfg.DialTimeout)
	case TransportWebSocket:
		stream, err = ws.Dial(ctx, "ws://"+cfg.Address+"/", cfg.DialTimeout)
	default:
		err = fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, &ConnectError{Address: cfg.Address, Err: err}
	}

	return New(stream, bridge, cfg), nil
}
