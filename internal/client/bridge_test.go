package client_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/pkg/protocol"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var fixedTime = time.Date(2018, time.March, 7, 14, 5, 0, 0, time.UTC)

// fakeBridge records every callback. PromptUsername answers from names.
type fakeBridge struct {
	names  chan string
	chat   chan string
	roster chan string
	closed chan error

	mu       sync.Mutex
	prompts  int
	assigned []string
}

func newFakeBridge(names ...string) *fakeBridge {
	b := &fakeBridge{
		names:  make(chan string, len(names)+1),
		chat:   make(chan string, 16),
		roster: make(chan string, 16),
		closed: make(chan error, 1),
	}
	for _, n := range names {
		b.names <- n
	}
	return b
}

func (b *fakeBridge) PromptUsername(ctx context.Context) (string, error) {
	b.mu.Lock()
	b.prompts++
	b.mu.Unlock()

	select {
	case n := <-b.names:
		return n, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *fakeBridge) OnUsernameAssigned(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assigned = append(b.assigned, name)
}

func (b *fakeBridge) OnChatLine(text string)      { b.chat <- text }
func (b *fakeBridge) OnRosterUpdated(text string) { b.roster <- text }
func (b *fakeBridge) OnClosed(err error)          { b.closed <- err }

func (b *fakeBridge) Prompts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prompts
}

func (b *fakeBridge) Assigned() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.assigned...)
}

var _ client.Bridge = (*fakeBridge)(nil)

// startPipe returns a Connection running over one end of a net.Pipe and
// the relay end of the pipe.
func startPipe(t *testing.T, bridge client.Bridge, cfg client.Config) (*client.Connection, net.Conn) {
	t.Helper()

	relay, local := net.Pipe()
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return fixedTime }
	}
	if cfg.Logger == nil {
		logger, _ := test.NewNullLogger()
		logger.SetLevel(logrus.DebugLevel)
		cfg.Logger = logger
	}

	conn := client.New(local, bridge, cfg)
	t.Cleanup(func() {
		conn.Close()
		relay.Close()
	})
	return conn, relay
}

func relaySend(t *testing.T, relay net.Conn, frames ...string) {
	t.Helper()
	relay.SetWriteDeadline(time.Now().Add(2 * time.Second))
	for _, f := range frames {
		if err := protocol.WriteFrame(relay, f); err != nil {
			t.Fatalf("relay WriteFrame(%q) error = %v", f, err)
		}
	}
}

func relayRecv(t *testing.T, relay net.Conn, n int) []string {
	t.Helper()
	relay.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]string, 0, n)
	for i := 0; i < n; i++ {
		f, err := protocol.ReadFrame(relay)
		if err != nil {
			t.Fatalf("relay ReadFrame() #%d error = %v (got so far %q)", i, err, got)
		}
		got = append(got, f)
	}
	return got
}

func waitState(t *testing.T, conn *client.Connection, want client.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("State() = %v, want %v", conn.State(), want)
}

func waitDone(t *testing.T, conn *client.Connection) {
	t.Helper()
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for receive loop to exit")
	}
}
