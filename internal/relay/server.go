// Package relay is a small chat relay speaking the client's frame protocol
// over raw TCP and WebSocket on a single port. It is used for local
// development and end-to-end tests.
package relay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/omochice/relay-chat/internal/transport/ws"
	"github.com/omochice/relay-chat/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// Transport names used in peer log fields.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// DefaultSniffTimeout is how long the relay waits for an HTTP request line
// before treating a silent connection as a raw TCP client.
const DefaultSniffTimeout = 250 * time.Millisecond

// Options configures a Server.
type Options struct {
	Address string

	// RememberHosts greets a host with its previous name instead of an
	// offer.
	RememberHosts bool
	RegistryTTL   time.Duration
	RegistryFile  string

	SniffTimeout time.Duration
	Logger       logrus.FieldLogger
}

// Server accepts peers and relays their frames.
type Server struct {
	opts     Options
	hub      *Hub
	registry *Registry
	log      logrus.FieldLogger

	mu       sync.Mutex
	listener net.Listener
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Server. Call Listen and Serve, or Start.
func New(opts Options) *Server {
	if opts.SniffTimeout <= 0 {
		opts.SniffTimeout = DefaultSniffTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Server{
		opts:     opts,
		hub:      NewHub(opts.Logger),
		registry: NewRegistry(opts.RegistryTTL),
		log:      opts.Logger,
		quit:     make(chan struct{}),
	}
}

// Listen binds the listening socket and loads the registry snapshot.
func (s *Server) Listen() error {
	if s.opts.RegistryFile != "" {
		if err := s.registry.LoadFile(s.opts.RegistryFile); err != nil {
			return err
		}
	}

	l, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.log.WithField("addr", l.Addr().String()).Info("Relay listening")
	return nil
}

// Serve accepts connections until Stop is called.
func (s *Server) Serve() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("relay: Serve called before Listen")
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.WithError(err).Warn("Failed to accept connection")
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Serve()
	}()
	return nil
}

// Stop closes the listener and every peer, waits for their goroutines and
// writes the registry snapshot when one is configured.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.quit)

		s.mu.Lock()
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.mu.Unlock()

		s.hub.closeAll()
		s.wg.Wait()

		if s.opts.RegistryFile != "" {
			if serr := s.registry.SaveFile(s.opts.RegistryFile); serr != nil && err == nil {
				err = serr
			}
		}
		s.log.Info("Relay stopped")
	})
	return err
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	return s.hub.Count()
}

// Registry exposes the remembered-host table.
func (s *Server) Registry() *Registry {
	return s.registry
}

var httpMethods = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"),
	[]byte("PATC"),
	[]byte("DELE"),
	[]byte("CONN"),
}

func looksLikeHTTP(prefix []byte) bool {
	for _, m := range httpMethods {
		if bytes.HasPrefix(prefix, m) {
			return true
		}
	}
	return false
}

// bufferedConn keeps bytes read while sniffing in front of the connection.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}

// handleConnection detects the protocol from the first bytes. Raw TCP
// clients wait for the greeting, so silence past the sniff timeout means
// raw TCP.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	br := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.SniffTimeout))
	prefix, _ := br.Peek(4)
	_ = conn.SetReadDeadline(time.Time{})

	if looksLikeHTTP(prefix) {
		wsConn, err := ws.Upgrade(conn, br)
		if err != nil {
			s.log.WithError(err).WithField("remote", conn.RemoteAddr().String()).Warn("WebSocket upgrade failed")
			_ = conn.Close()
			return
		}
		s.servePeer(newPeer(wsConn, wsConn, conn.RemoteAddr(), TransportWebSocket, s.log))
		return
	}

	s.servePeer(newPeer(br, &bufferedConn{Conn: conn, reader: br}, conn.RemoteAddr(), TransportTCP, s.log))
}

func (s *Server) servePeer(p *Peer) {
	s.hub.add(p)
	select {
	case <-s.quit:
		// Stop already swept the hub.
		p.close()
	default:
	}
	p.log.Info("Peer connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		p.writeLoop()
	}()

	defer func() {
		p.close()
		<-writerDone
		if s.hub.remove(p) {
			s.hub.Broadcast(s.hub.Roster())
		}
		p.log.Info("Peer disconnected")
	}()

	p.enqueue(s.greeting(p))

	for {
		frame, err := protocol.ReadFrame(p.rd)
		if err != nil {
			var perr *protocol.ProtocolError
			if errors.As(err, &perr) {
				p.log.WithError(err).Warn("Dropping invalid frame")
				continue
			}
			return
		}
		s.handleFrame(p, frame)
	}
}

// greeting returns the returning-user assignment for a remembered host
// whose name is free, and the roster offer otherwise.
func (s *Server) greeting(p *Peer) string {
	if s.opts.RememberHosts {
		if name, ok := s.registry.Lookup(p.Host); ok && !s.hub.Taken(name) {
			return string(rune(protocol.PrefixReturningUser)) + name
		}
	}
	return s.hub.Offer()
}

func (s *Server) handleFrame(p *Peer, frame string) {
	name, active := s.hub.state(p)

	if active {
		if frame == protocol.Departure(name) {
			s.hub.depart(p)
			p.log.WithField("name", name).Info("Peer left")
			s.hub.Broadcast(s.hub.Roster())
			return
		}
		s.hub.Broadcast(frame)
		return
	}

	switch {
	case frame != "" && frame[0] == protocol.PrefixAck && !strings.ContainsAny(frame, " \t\n"):
		s.join(p, frame[1:])
	case isRegistration(frame):
		s.register(p, frame[strings.LastIndexByte(frame, ' ')+1:])
	default:
		p.log.WithField("frame", frame).Debug("Ignoring frame from peer that has not joined")
	}
}

// isRegistration reports whether frame has the "<host:port> <name>" shape
// clients send after picking a name.
func isRegistration(frame string) bool {
	i := strings.LastIndexByte(frame, ' ')
	if i <= 0 {
		return false
	}
	host, port, err := net.SplitHostPort(frame[:i])
	if err != nil || strings.ContainsAny(host, " \t") {
		return false
	}
	_, err = strconv.ParseUint(port, 10, 16)
	return err == nil
}

func (s *Server) register(p *Peer, name string) {
	if !s.hub.claim(p, name) {
		p.log.WithField("name", name).Info("Name refused, re-sending offer")
		p.enqueue(s.hub.Offer())
		return
	}
	p.log.WithField("name", name).Debug("Name registered")
}

func (s *Server) join(p *Peer, name string) {
	if !s.hub.activate(p, name) {
		p.log.WithField("name", name).Warn("Ack for a name held by another peer")
		return
	}
	if s.opts.RememberHosts {
		s.registry.Remember(p.Host, name)
	}
	p.log.WithField("name", name).Info("Peer joined")
	s.hub.Broadcast(s.hub.Roster())
}
