package console_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/console"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes made by
// bridge callbacks.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeSession closes the console the way a Connection would.
type fakeSession struct {
	c *console.Console

	mu           sync.Mutex
	sent         []string
	disconnected int
	sendErr      error
}

func (s *fakeSession) SendUserText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *fakeSession) RequestDisconnect() error {
	s.mu.Lock()
	s.disconnected++
	s.mu.Unlock()
	s.c.OnClosed(nil)
	return nil
}

func (s *fakeSession) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func runConsole(t *testing.T, c *console.Console, s client.Session) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), s) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for Run to return")
		return nil
	}
}

func TestConsole_SendsLinesAndQuits(t *testing.T) {
	var out syncBuffer
	c := console.New(strings.NewReader("hello\n\nsecond line\n/quit\nnot sent\n"), &out)
	s := &fakeSession{c: c}

	if err := waitRun(t, runConsole(t, c, s)); err != nil {
		t.Errorf("Run() error = %v", err)
	}

	want := []string{"hello", "", "second line"}
	if diff := cmp.Diff(want, s.Sent()); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if s.disconnected != 1 {
		t.Errorf("RequestDisconnect calls = %d, want 1", s.disconnected)
	}
	if !strings.Contains(out.String(), "Disconnected.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsole_EOFLeaves(t *testing.T) {
	c := console.New(strings.NewReader(""), io.Discard)
	s := &fakeSession{c: c}

	if err := waitRun(t, runConsole(t, c, s)); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if s.disconnected != 1 {
		t.Errorf("RequestDisconnect calls = %d, want 1", s.disconnected)
	}
}

func TestConsole_PromptTakesNextLine(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()

	var out syncBuffer
	c := console.New(in, &out)
	s := &fakeSession{c: c}
	done := runConsole(t, c, s)

	names := make(chan string, 1)
	go func() {
		name, err := c.PromptUsername(context.Background())
		if err != nil {
			t.Errorf("PromptUsername() error = %v", err)
		}
		names <- name
	}()

	// Wait for the prompt to be registered before typing.
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "Enter a username") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	io.WriteString(w, "alice\n")
	select {
	case name := <-names:
		if name != "alice" {
			t.Errorf("PromptUsername() = %q, want %q", name, "alice")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("prompt not answered")
	}

	io.WriteString(w, "hi\n/quit\n")
	if err := waitRun(t, done); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"hi"}, s.Sent()); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestConsole_PromptCanceled(t *testing.T) {
	c := console.New(strings.NewReader(""), io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.PromptUsername(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("PromptUsername() error = %v, want context.Canceled", err)
	}
}

func TestConsole_ConnectionLost(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()

	var out syncBuffer
	c := console.New(in, &out)
	done := runConsole(t, c, &fakeSession{c: c})

	lost := errors.New("connection reset by peer")
	c.OnClosed(lost)

	if err := waitRun(t, done); !errors.Is(err, lost) {
		t.Errorf("Run() error = %v, want %v", err, lost)
	}
	if !strings.Contains(out.String(), "Connection closed: connection reset by peer") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsole_SendErrorIsReported(t *testing.T) {
	var out syncBuffer
	c := console.New(strings.NewReader("hello\n"), &out)
	s := &fakeSession{c: c, sendErr: client.ErrQueueFull}

	if err := waitRun(t, runConsole(t, c, s)); err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "Not sent: "+client.ErrQueueFull.Error()) {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsole_Events(t *testing.T) {
	var out syncBuffer
	c := console.New(strings.NewReader(""), &out)

	c.OnUsernameAssigned("alice")
	c.OnChatLine("07/3/18 14:05 bob: hi")
	c.OnRosterUpdated("Active users:\nalice\nbob")

	want := "Signed in as alice. Type /quit to leave.\n" +
		"07/3/18 14:05 bob: hi\n" +
		"---\nActive users:\nalice\nbob\n---\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}
