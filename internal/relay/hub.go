package relay

import (
	"slices"
	"strings"
	"sync"

	"github.com/omochice/relay-chat/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// RosterHeader starts every roster blob sent with the u prefix.
const RosterHeader = "Active users:"

// Hub tracks the connected peers, the names they hold and who has joined.
// TCP and WebSocket peers share one Hub.
type Hub struct {
	mu    sync.RWMutex
	peers map[*Peer]struct{}
	log   logrus.FieldLogger
}

// NewHub creates an empty Hub.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		peers: make(map[*Peer]struct{}),
		log:   log,
	}
}

func (h *Hub) add(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = struct{}{}
}

// remove drops p and reports whether it had joined.
func (h *Hub) remove(p *Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; !ok {
		return false
	}
	delete(h.peers, p)
	return p.active
}

// Count returns the number of connected peers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// takenLocked reports whether a peer other than self holds name.
func (h *Hub) takenLocked(name string, self *Peer) bool {
	for p := range h.peers {
		if p != self && p.name == name {
			return true
		}
	}
	return false
}

// Taken reports whether any peer holds name.
func (h *Hub) Taken(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.takenLocked(name, nil)
}

// claim reserves name for p. Empty or held names are refused.
func (h *Hub) claim(p *Peer, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if name == "" || h.takenLocked(name, p) {
		return false
	}
	p.name = name
	return true
}

// activate marks p as joined under name, claiming the name if the peer
// skipped registration.
func (h *Hub) activate(p *Peer, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if name == "" || h.takenLocked(name, p) {
		return false
	}
	p.name = name
	p.active = true
	return true
}

// depart releases p's name and removes it from the roster.
func (h *Hub) depart(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p.name = ""
	p.active = false
}

func (h *Hub) state(p *Peer) (name string, active bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return p.name, p.active
}

// Names returns every held name, sorted.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.namesLocked(false)
}

func (h *Hub) namesLocked(activeOnly bool) []string {
	var names []string
	for p := range h.peers {
		if p.name == "" || (activeOnly && !p.active) {
			continue
		}
		names = append(names, p.name)
	}
	slices.Sort(names)
	return names
}

// Offer builds the n frame listing the names in use.
func (h *Hub) Offer() string {
	return string(rune(protocol.PrefixRosterOffer)) + strings.Join(h.Names(), " ")
}

// Roster builds the u frame listing the joined peers.
func (h *Hub) Roster() string {
	h.mu.RLock()
	names := h.namesLocked(true)
	h.mu.RUnlock()

	var b strings.Builder
	b.WriteByte(protocol.PrefixActiveRoster)
	b.WriteString(RosterHeader)
	for _, n := range names {
		b.WriteByte('\n')
		b.WriteString(n)
	}
	return b.String()
}

// Broadcast queues frame for every joined peer. A peer whose queue is full
// misses the frame.
func (h *Hub) Broadcast(frame string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for p := range h.peers {
		if !p.active {
			continue
		}
		if !p.enqueue(frame) {
			p.log.Warn("Peer queue full, skipping frame")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		p.close()
	}
}
