package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/omochice/relay-chat/internal/client"
)

// DialFunc opens a connection that reports to bridge.
type DialFunc func(ctx context.Context, bridge client.Bridge) (*client.Connection, error)

// Run starts the terminal UI, dials from inside the program and blocks
// until the user quits. The connection is closed on return.
func Run(ctx context.Context, title string, dial DialFunc, opts ...tea.ProgramOption) error {
	bridge := &Bridge{}

	var conn *client.Connection
	connected := make(chan struct{})
	connect := func() tea.Msg {
		defer close(connected)
		c, err := dial(ctx, bridge)
		if err != nil {
			return closedMsg{err: err}
		}
		conn = c
		return connectedMsg{session: c}
	}

	p := tea.NewProgram(NewModel(title, connect), append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)
	bridge.send = p.Send

	_, err := p.Run()

	select {
	case <-connected:
		if conn != nil {
			conn.Close()
		}
	default:
	}
	return err
}
