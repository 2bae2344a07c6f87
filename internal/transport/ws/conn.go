// Package ws carries the relay byte stream inside WebSocket binary messages.
package ws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn adapts a WebSocket connection to a plain byte stream. Every Write
// becomes one binary message; Read returns message payloads back to back.
type Conn struct {
	net.Conn

	state ws.State
	rd    *wsutil.Reader
	buf   []byte

	wmu       sync.Mutex
	closeOnce sync.Once
}

func newConn(conn net.Conn, r io.Reader, state ws.State) *Conn {
	c := &Conn{Conn: conn, state: state}
	c.rd = &wsutil.Reader{
		Source:         r,
		State:          state,
		OnIntermediate: c.handleControl,
	}
	return c
}

// Dial performs the client handshake against url (ws://host:port/).
func Dial(ctx context.Context, url string, timeout time.Duration) (*Conn, error) {
	dialer := ws.Dialer{Timeout: timeout}

	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	var r io.Reader = conn
	if br != nil {
		r = br
	}
	return newConn(conn, r, ws.StateClientSide), nil
}

// Upgrade performs the server handshake on conn. r must read from conn and
// may hold bytes already consumed while sniffing the protocol.
func Upgrade(conn net.Conn, r io.Reader) (*Conn, error) {
	rw := struct {
		io.Reader
		io.Writer
	}{r, conn}

	if _, err := ws.Upgrade(rw); err != nil {
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}
	return newConn(conn, r, ws.StateServerSide), nil
}

// Read implements io.Reader over the concatenated message payloads.
// A close frame from the peer is reported as io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		data, err := c.nextMessage()
		if err != nil {
			return 0, err
		}
		c.buf = data
	}

	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *Conn) nextMessage() ([]byte, error) {
	for {
		hdr, err := c.rd.NextFrame()
		if err != nil {
			return nil, err
		}

		if hdr.OpCode == ws.OpClose {
			// The peer is gone either way; the echo is best effort.
			_ = c.handleControl(hdr, c.rd)
			return nil, io.EOF
		}

		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, c.rd); err != nil {
				var closed wsutil.ClosedError
				if errors.As(err, &closed) {
					return nil, io.EOF
				}
				return nil, err
			}
			continue
		}

		if hdr.OpCode&(ws.OpBinary|ws.OpText) == 0 {
			if err := c.rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}

		return io.ReadAll(c.rd)
	}
}

// handleControl answers pings and close frames. The reply is rendered into
// a buffer first so it cannot interleave with a concurrent Write.
func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	var out bytes.Buffer
	err := wsutil.ControlFrameHandler(&out, c.state)(hdr, r)

	if out.Len() > 0 {
		c.wmu.Lock()
		_, werr := c.Conn.Write(out.Bytes())
		c.wmu.Unlock()
		if err == nil {
			err = werr
		}
	}
	return err
}

// Write sends p as a single binary message.
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := wsutil.WriteMessage(c.Conn, c.state, ws.OpBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal-closure frame when possible and closes the
// underlying connection.
func (c *Conn) Close() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteMessage(c.Conn, c.state, ws.OpClose, body)
		c.wmu.Unlock()

		err = c.Conn.Close()
	})
	return err
}
