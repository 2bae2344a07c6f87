package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/omochice/relay-chat/internal/client"
)

type fakeSession struct {
	mu           sync.Mutex
	sent         []string
	disconnected bool
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
	defer s.mu.Unlock()
	s.disconnected = true
	return nil
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update() returned %T, want Model", next)
	}
	return model, cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func chatModel(t *testing.T, session client.Session) Model {
	t.Helper()
	m := NewModel("relay-chat", nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, connectedMsg{session: session})
	m, _ = update(t, m, assignedMsg{name: "alice"})
	return m
}

func TestModel_Prompt(t *testing.T) {
	m := NewModel("relay-chat", nil)

	reply := make(chan string, 1)
	m, _ = update(t, m, promptMsg{reply: reply})
	if m.mode != modePrompt {
		t.Fatalf("mode = %v, want prompt", m.mode)
	}

	m = typeText(t, m, "al ice")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	select {
	case got := <-reply:
		if got != "al ice" {
			t.Errorf("reply = %q, want %q", got, "al ice")
		}
	default:
		t.Fatal("Enter did not answer the prompt")
	}
	if m.input.Value() != "" {
		t.Errorf("input = %q, want cleared", m.input.Value())
	}

	// A second prompt means the first answer was refused.
	m, _ = update(t, m, promptMsg{reply: make(chan string, 1)})
	if !strings.Contains(m.View(), "empty or taken") {
		t.Errorf("View() lacks the retry hint:\n%s", m.View())
	}
}

func TestModel_ChatAndRoster(t *testing.T) {
	m := chatModel(t, &fakeSession{})

	m, _ = update(t, m, chatLineMsg{text: "07/3/18 14:05 Server: alice has joined the chat."})
	m, _ = update(t, m, chatLineMsg{text: "07/3/18 14:06 bob: hi alice"})
	m, _ = update(t, m, rosterMsg{text: "Active users:\nalice\nbob"})
	m, _ = update(t, m, rosterMsg{text: "Active users:\nalice"})

	want := []string{
		"07/3/18 14:05 Server: alice has joined the chat.",
		"07/3/18 14:06 bob: hi alice",
	}
	if diff := cmp.Diff(want, m.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if m.roster != "Active users:\nalice" {
		t.Errorf("roster = %q, want replaced roster", m.roster)
	}

	view := m.View()
	for _, s := range []string{"signed in as alice", "hi alice", "Active users:"} {
		if !strings.Contains(view, s) {
			t.Errorf("View() missing %q", s)
		}
	}
}

func TestModel_Send(t *testing.T) {
	session := &fakeSession{}
	m := chatModel(t, session)

	m = typeText(t, m, "hello")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("Enter returned no command")
	}
	if msg := cmd(); msg != nil {
		t.Fatalf("send command returned %#v", msg)
	}
	if diff := cmp.Diff([]string{"hello"}, session.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if m.input.Value() != "" {
		t.Errorf("input = %q, want cleared", m.input.Value())
	}

	// Blank input is not sent.
	m = typeText(t, m, "   ")
	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("blank input produced a command")
	}
}

func TestModel_SendError(t *testing.T) {
	session := &fakeSession{sendErr: client.ErrQueueFull}
	m := chatModel(t, session)

	m = typeText(t, m, "hello")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())

	if !errors.Is(m.err, client.ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", m.err)
	}
	if !strings.Contains(m.View(), client.ErrQueueFull.Error()) {
		t.Errorf("View() does not show the send error")
	}
}

func TestModel_Quit(t *testing.T) {
	t.Run("disconnects first", func(t *testing.T) {
		session := &fakeSession{}
		m := chatModel(t, session)

		m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
		if cmd == nil {
			t.Fatal("Ctrl+C returned no command")
		}
		if _, ok := cmd().(tea.QuitMsg); ok {
			t.Fatal("Ctrl+C quit without leaving the chat")
		}
		if !session.disconnected {
			t.Error("RequestDisconnect was not called")
		}

		_, cmd = update(t, m, closedMsg{})
		if !isQuit(cmd) {
			t.Error("clean close did not quit the program")
		}
	})

	t.Run("no session", func(t *testing.T) {
		m := NewModel("relay-chat", nil)
		if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc}); !isQuit(cmd) {
			t.Error("Esc before connecting did not quit")
		}
	})
}

func TestModel_ClosedWithError(t *testing.T) {
	m := chatModel(t, &fakeSession{})

	m, cmd := update(t, m, closedMsg{err: errors.New("connection reset by peer")})
	if cmd != nil {
		t.Error("closing with an error should keep the program open")
	}
	if m.mode != modeClosed {
		t.Errorf("mode = %v, want closed", m.mode)
	}
	if !strings.Contains(m.View(), "connection reset by peer") {
		t.Errorf("View() does not show the close error")
	}

	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc}); !isQuit(cmd) {
		t.Error("Esc after close did not quit")
	}
}

func TestBridge_PromptUsername(t *testing.T) {
	msgs := make(chan tea.Msg, 1)
	b := NewBridge(func(msg tea.Msg) { msgs <- msg })

	done := make(chan string, 1)
	go func() {
		name, _ := b.PromptUsername(context.Background())
		done <- name
	}()

	select {
	case msg := <-msgs:
		p, ok := msg.(promptMsg)
		if !ok {
			t.Fatalf("got %T, want promptMsg", msg)
		}
		p.reply <- "alice"
	case <-time.After(time.Second):
		t.Fatal("no prompt message")
	}

	select {
	case name := <-done:
		if name != "alice" {
			t.Errorf("PromptUsername() = %q, want %q", name, "alice")
		}
	case <-time.After(time.Second):
		t.Fatal("PromptUsername() did not return")
	}
}

func TestBridge_PromptCanceled(t *testing.T) {
	b := NewBridge(func(tea.Msg) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.PromptUsername(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("PromptUsername() error = %v, want context.Canceled", err)
	}
}
