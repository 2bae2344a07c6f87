// Package tui is the terminal front end of the chat client.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/pkg/protocol"
)

type mode int

const (
	modeConnecting mode = iota
	modePrompt
	modeChat
	modeClosed
)

const (
	rosterWidth  = 24
	headerHeight = 1
	inputHeight  = 3
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#874BFD")).
			Padding(0, 1)

	rosterStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(lipgloss.Color("#383838")).
			PaddingLeft(1)

	serverLineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	inputStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)
)

// Model is the bubbletea model for one chat session.
type Model struct {
	viewport viewport.Model
	input    textinput.Model

	title   string
	connect tea.Cmd
	session client.Session

	mode     mode
	reply    chan<- string
	prompts  int
	username string
	lines    []string
	roster   string
	err      error

	width  int
	height int
}

// NewModel returns a Model that runs connect on start. connect must
// return a connected or closed message; see Run.
func NewModel(title string, connect tea.Cmd) Model {
	input := textinput.New()
	input.Placeholder = "Connecting..."
	input.CharLimit = 1000
	input.Focus()

	width, height := 80, 24
	vp := viewport.New(width-rosterWidth-2, height-headerHeight-inputHeight-1)

	return Model{
		viewport: vp,
		input:    input,
		title:    title,
		connect:  connect,
		width:    width,
		height:   height,
	}
}

func (m Model) Init() tea.Cmd {
	if m.connect == nil {
		return textinput.Blink
	}
	return tea.Batch(textinput.Blink, m.connect)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m.quit()
		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case connectedMsg:
		m.session = msg.session

	case promptMsg:
		m.mode = modePrompt
		m.reply = msg.reply
		m.prompts++
		m.input.Reset()
		m.input.Placeholder = "Choose a username"

	case assignedMsg:
		m.username = msg.name
		m.mode = modeChat
		m.input.Placeholder = "Type a message..."

	case chatLineMsg:
		m.lines = append(m.lines, msg.text)
		m.refresh()

	case rosterMsg:
		m.roster = msg.text

	case sendErrMsg:
		m.err = msg.err

	case closedMsg:
		m.mode = modeClosed
		m.reply = nil
		m.input.Blur()
		if msg.err == nil {
			return m, tea.Quit
		}
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	value := m.input.Value()

	switch m.mode {
	case modePrompt:
		if m.reply == nil {
			return m, nil
		}
		m.reply <- value
		m.reply = nil
		m.mode = modeConnecting
		m.input.Reset()
		m.input.Placeholder = "Joining..."
		return m, nil

	case modeChat:
		if strings.TrimSpace(value) == "" || m.session == nil {
			return m, nil
		}
		m.input.Reset()
		m.err = nil
		return m, sendCmd(m.session, value)
	}
	return m, nil
}

// quit leaves the chat politely when a session exists. The program exits
// once the connection reports it is closed.
func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.session == nil || m.mode == modeClosed {
		return m, tea.Quit
	}
	return m, disconnectCmd(m.session)
}

func sendCmd(s client.Session, text string) tea.Cmd {
	return func() tea.Msg {
		if err := s.SendUserText(text); err != nil {
			return sendErrMsg{err: err}
		}
		return nil
	}
}

func disconnectCmd(s client.Session) tea.Cmd {
	return func() tea.Msg {
		if err := s.RequestDisconnect(); err != nil && !errors.Is(err, client.ErrClosed) {
			return closedMsg{err: err}
		}
		return nil
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = max(width-rosterWidth-2, 10)
	m.viewport.Height = max(height-headerHeight-inputHeight-1, 1)
	m.input.Width = max(width-8, 10)
	m.refresh()
}

func (m *Model) refresh() {
	var sb strings.Builder
	for i, line := range m.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if isServerLine(line) {
			line = serverLineStyle.Render(line)
		}
		sb.WriteString(line)
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func isServerLine(line string) bool {
	return strings.Contains(line, " "+protocol.ServerSender+": ")
}

func (m Model) header() string {
	status := "connecting"
	switch m.mode {
	case modePrompt:
		status = "choose a username"
	case modeChat:
		status = "signed in as " + m.username
	case modeClosed:
		status = "disconnected"
	}
	return headerStyle.Render(fmt.Sprintf("%s · %s", m.title, status))
}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(m.header())
	sb.WriteString("\n")

	roster := rosterStyle.
		Width(rosterWidth).
		Height(m.viewport.Height).
		Render(m.roster)
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.viewport.View(), roster))
	sb.WriteString("\n")

	switch {
	case m.err != nil:
		sb.WriteString(errorStyle.Render(m.err.Error()))
	case m.mode == modePrompt && m.prompts > 1:
		sb.WriteString(errorStyle.Render("That name is empty or taken, try another."))
	}
	sb.WriteString("\n")

	if m.mode != modeClosed {
		sb.WriteString(inputStyle.Render(m.input.View()))
	} else {
		sb.WriteString("Press Esc to exit.")
	}
	return sb.String()
}
