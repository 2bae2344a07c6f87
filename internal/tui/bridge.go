package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/omochice/relay-chat/internal/client"
)

type (
	connectedMsg struct{ session client.Session }
	promptMsg    struct{ reply chan<- string }
	assignedMsg  struct{ name string }
	chatLineMsg  struct{ text string }
	rosterMsg    struct{ text string }
	closedMsg    struct{ err error }
	sendErrMsg   struct{ err error }
)

// Bridge forwards connection callbacks into a running bubbletea program.
// Callbacks arrive on the connection's receive goroutine, never on the
// program's event loop.
type Bridge struct {
	send func(tea.Msg)
}

var _ client.Bridge = (*Bridge)(nil)

// NewBridge returns a Bridge delivering messages through send, usually
// (*tea.Program).Send.
func NewBridge(send func(tea.Msg)) *Bridge {
	return &Bridge{send: send}
}

// PromptUsername switches the UI to the name prompt and waits for the
// user's answer.
func (b *Bridge) PromptUsername(ctx context.Context) (string, error) {
	reply := make(chan string, 1)
	b.send(promptMsg{reply: reply})

	select {
	case name := <-reply:
		return name, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *Bridge) OnUsernameAssigned(name string) { b.send(assignedMsg{name: name}) }
func (b *Bridge) OnChatLine(text string)         { b.send(chatLineMsg{text: text}) }
func (b *Bridge) OnRosterUpdated(text string)    { b.send(rosterMsg{text: text}) }
func (b *Bridge) OnClosed(err error)             { b.send(closedMsg{err: err}) }
