package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/relay-chat/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// pending is user text held back during the handshake.
type pending struct {
	text string
	at   time.Time
	user bool
}

// Connection is one session with the relay.
type Connection struct {
	stream     Stream
	bridge     Bridge
	negotiator Negotiator
	log        logrus.FieldLogger
	clock      func() time.Time
	queueSize  int

	// wmu serializes frames on the write half. It is always taken before mu.
	wmu sync.Mutex

	mu       sync.RWMutex
	state    State
	username string
	queue    []pending
	err      error

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// New starts a Connection on an established stream. The receive loop runs
// until the stream fails or Close is called.
func New(stream Stream, bridge Bridge, cfg Config) *Connection {
	cfg = cfg.withDefaults()

	log := cfg.Logger.WithFields(logrus.Fields{
		"session": uuid.NewString(),
		"peer":    stream.RemoteAddr().String(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		stream:     stream,
		bridge:     bridge,
		negotiator: Negotiator{MaxAttempts: cfg.MaxNameAttempts, Log: log},
		log:        log,
		clock:      cfg.Clock,
		queueSize:  cfg.QueueSize,
		state:      StateConnecting,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	log.Info("Connected to relay")
	go c.receiveLoop()

	return c
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Username returns the confirmed display name, or "" before one is set.
func (c *Connection) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// Err returns why the connection closed. It is nil while open and after a
// local Close.
func (c *Connection) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Done is closed once the receive loop has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the receive loop has exited and returns Err.
func (c *Connection) Wait() error {
	<-c.done
	return c.Err()
}

// Send writes text verbatim. Before the connection is active the text is
// queued and flushed, in order, right after the join announcement.
func (c *Connection) Send(text string) error {
	return c.submit(pending{text: text})
}

// SendUserText sends text attributed to the local user, e.g.
// "07/3/18 14:05 alice: hello". Blank text is ignored.
func (c *Connection) SendUserText(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.submit(pending{text: text, at: c.clock(), user: true})
}

func (c *Connection) submit(p pending) error {
	c.mu.Lock()
	// Before a name is assigned this is a lower bound; the flush after the
	// handshake skips anything that still does not fit.
	if n := protocol.EncodedLen(c.render(p, c.username)); n > protocol.MaxFrameSize {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d bytes", protocol.ErrFrameTooLarge, n)
	}

	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateHandshaking:
		defer c.mu.Unlock()
		if len(c.queue) >= c.queueSize {
			return ErrQueueFull
		}
		c.queue = append(c.queue, p)
		return nil
	}
	name := c.username
	c.mu.Unlock()

	return c.writeFrame(c.render(p, name))
}

func (c *Connection) render(p pending, name string) string {
	if !p.user {
		return p.text
	}
	return protocol.ChatLine(p.at, name, p.text)
}

// RequestDisconnect announces the departure to the relay, when the
// connection is active, and closes it.
func (c *Connection) RequestDisconnect() error {
	c.mu.RLock()
	active, name := c.state == StateActive, c.username
	c.mu.RUnlock()

	if active {
		err := c.writeFrame(protocol.LeaveAnnouncement(c.clock(), name))
		if err == nil {
			err = c.writeFrame(protocol.Departure(name))
		}
		if err != nil {
			c.log.WithError(err).Warn("Failed to announce departure")
		}
	}
	return c.Close()
}

// Close releases the stream. It is safe to call from any goroutine and any
// number of times; only the first call can return an error.
func (c *Connection) Close() error {
	return c.shutdown(nil)
}

func (c *Connection) shutdown(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		prev := c.state
		c.state = StateClosed
		c.err = cause
		dropped := len(c.queue)
		c.queue = nil
		c.mu.Unlock()

		c.cancel()
		err = c.stream.Close()

		entry := c.log.WithFields(logrus.Fields{"state": prev, "dropped": dropped})
		switch {
		case cause == nil:
			entry.Info("Connection closed")
		case errors.Is(cause, io.EOF):
			entry.Info("Relay closed the connection")
		default:
			entry.WithError(cause).Warn("Connection lost")
		}

		c.bridge.OnClosed(cause)
	})
	return err
}

// writeFrame sends one frame. Transport failures close the connection.
func (c *Connection) writeFrame(s string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.writeLocked(s)
}

func (c *Connection) writeLocked(s string) error {
	if c.State() == StateClosed {
		return ErrClosed
	}

	if err := protocol.WriteFrame(c.stream, s); err != nil {
		var te *protocol.TransportError
		if errors.As(err, &te) {
			c.shutdown(err)
		}
		return err
	}
	return nil
}

// advance moves the state forward to next. It never leaves StateClosed.
func (c *Connection) advance(next State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state >= next {
		return false
	}
	c.state = next
	return true
}

func (c *Connection) receiveLoop() {
	defer close(c.done)

	for {
		frame, err := protocol.ReadFrame(c.stream)
		var pe *protocol.ProtocolError
		if err != nil && !errors.As(err, &pe) {
			c.shutdown(err)
			return
		}

		// A complete frame starts the handshake even if it cannot be decoded.
		if c.advance(StateHandshaking) {
			c.log.Debug("Handshake started")
		}
		if err != nil {
			c.log.WithError(err).Warn("Dropping undecodable frame")
			continue
		}

		ev, err := protocol.Classify(frame)
		if err != nil {
			c.log.WithError(err).Warn("Dropping frame")
			continue
		}

		if err := c.dispatch(ev); err != nil {
			var pe *protocol.ProtocolError
			if errors.As(err, &pe) {
				c.log.WithError(err).WithField("kind", ev.Kind()).Warn("Dropping frame")
				continue
			}
			c.shutdown(err)
			return
		}
	}
}

func (c *Connection) dispatch(ev protocol.Event) error {
	state := c.State()

	switch ev := ev.(type) {
	case protocol.UsernameRosterOffer:
		if state != StateHandshaking {
			return outOfPhase(ev, state)
		}
		name, err := c.negotiator.Negotiate(c.ctx, ev, c.bridge.PromptUsername)
		if err != nil {
			return fmt.Errorf("username negotiation failed: %w", err)
		}
		return c.register(name, true)

	case protocol.ReturningUser:
		if state != StateHandshaking {
			return outOfPhase(ev, state)
		}
		if ev.AssignedName == "" {
			return &protocol.ProtocolError{Err: errors.New("empty assigned name")}
		}
		return c.register(ev.AssignedName, false)

	case protocol.ActiveUserRoster:
		if state != StateActive {
			return outOfPhase(ev, state)
		}
		c.bridge.OnRosterUpdated(ev.Text)

	case protocol.ChatText:
		if state != StateActive {
			return outOfPhase(ev, state)
		}
		c.bridge.OnChatLine(ev.Text)
	}
	return nil
}

// register confirms name with the relay and activates the connection. New
// users also send their address so the relay can remember them.
func (c *Connection) register(name string, newUser bool) error {
	c.mu.Lock()
	c.username = name
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"name": name, "returning": !newUser}).Info("Username assigned")
	c.bridge.OnUsernameAssigned(name)

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if newUser {
		if err := c.writeLocked(protocol.Registration(c.stream.LocalAddr().String(), name)); err != nil {
			return err
		}
	}
	if err := c.writeLocked(protocol.Ack(name)); err != nil {
		return err
	}
	if err := c.writeLocked(protocol.JoinAnnouncement(c.clock(), name)); err != nil {
		return err
	}

	// Holding wmu keeps sends that see StateActive behind the backlog.
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state = StateActive
	backlog := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, p := range backlog {
		if err := c.writeLocked(c.render(p, name)); err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				c.log.WithError(err).Warn("Dropping queued message")
				continue
			}
			return err
		}
	}
	if len(backlog) > 0 {
		c.log.WithField("count", len(backlog)).Debug("Flushed queued messages")
	}
	return nil
}

func outOfPhase(ev protocol.Event, state State) error {
	return &protocol.ProtocolError{Err: fmt.Errorf("%s not expected while %s", ev.Kind(), state)}
}
