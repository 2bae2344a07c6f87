// Package console is a line-oriented front end for terminals without
// full-screen support and for scripting.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/omochice/relay-chat/internal/client"
)

// QuitCommand leaves the chat.
const QuitCommand = "/quit"

// Console reads user input line by line and prints every event.
type Console struct {
	in  io.Reader
	out io.Writer
	omu sync.Mutex

	prompts chan chan<- string

	closeOnce sync.Once
	closed    chan struct{}
	err       error
}

var _ client.Bridge = (*Console)(nil)

// New returns a Console reading from in and writing to out.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:      in,
		out:     out,
		prompts: make(chan chan<- string),
		closed:  make(chan struct{}),
	}
}

func (c *Console) printf(format string, args ...any) {
	c.omu.Lock()
	defer c.omu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// PromptUsername asks for a name; the next input line answers it.
func (c *Console) PromptUsername(ctx context.Context) (string, error) {
	reply := make(chan string, 1)
	c.printf("Enter a username: ")

	select {
	case c.prompts <- reply:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case name := <-reply:
		return name, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Console) OnUsernameAssigned(name string) {
	c.printf("Signed in as %s. Type %s to leave.\n", name, QuitCommand)
}

func (c *Console) OnChatLine(text string) {
	c.printf("%s\n", text)
}

func (c *Console) OnRosterUpdated(text string) {
	c.printf("---\n%s\n---\n", text)
}

func (c *Console) OnClosed(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		if err != nil {
			c.printf("Connection closed: %v\n", err)
		} else {
			c.printf("Disconnected.\n")
		}
		close(c.closed)
	})
}

// Run feeds input lines to session until the user quits, input ends, the
// connection closes or ctx is done. It returns the connection's close
// cause, which is nil for a clean exit.
func (c *Console) Run(ctx context.Context, session client.Session) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-c.closed:
				return
			}
		}
	}()

	var pending chan<- string
	for {
		select {
		case reply := <-c.prompts:
			pending = reply

		case line, ok := <-lines:
			if !ok {
				return c.leave(session)
			}
			if pending != nil {
				pending <- line
				pending = nil
				continue
			}
			if strings.TrimSpace(line) == QuitCommand {
				return c.leave(session)
			}
			if err := session.SendUserText(line); err != nil {
				if errors.Is(err, client.ErrClosed) {
					<-c.closed
					return c.err
				}
				c.printf("Not sent: %v\n", err)
			}

		case <-c.closed:
			return c.err

		case <-ctx.Done():
			_ = c.leave(session)
			return ctx.Err()
		}
	}
}

func (c *Console) leave(session client.Session) error {
	if err := session.RequestDisconnect(); err != nil && !errors.Is(err, client.ErrClosed) {
		return err
	}
	<-c.closed
	return c.err
}
