package relay

import (
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/omochice/relay-chat/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// outgoingBuffer bounds the frames waiting for a slow peer.
const outgoingBuffer = 32

// Peer is one client connection held by the relay.
type Peer struct {
	ID        string
	Host      string
	Transport string

	rd       io.Reader
	conn     io.WriteCloser
	outgoing chan string
	done     chan struct{}
	once     sync.Once
	log      logrus.FieldLogger

	// guarded by Hub.mu
	name   string
	active bool
}

func newPeer(rd io.Reader, conn io.WriteCloser, remote net.Addr, transport string, log logrus.FieldLogger) *Peer {
	id := uuid.NewString()
	host := remote.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return &Peer{
		ID:        id,
		Host:      host,
		Transport: transport,
		rd:        rd,
		conn:      conn,
		outgoing:  make(chan string, outgoingBuffer),
		done:      make(chan struct{}),
		log: log.WithFields(logrus.Fields{
			"peer":      id,
			"remote":    remote.String(),
			"transport": transport,
		}),
	}
}

// enqueue hands frame to the writer without blocking. It reports false
// when the peer is closed or its queue is full.
func (p *Peer) enqueue(frame string) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.outgoing <- frame:
		return true
	default:
		return false
	}
}

func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.outgoing:
			if err := protocol.WriteFrame(p.conn, frame); err != nil {
				p.log.WithError(err).Debug("Write failed")
				p.close()
				return
			}
		}
	}
}

func (p *Peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}
