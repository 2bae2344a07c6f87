package client

import "context"

// Bridge is implemented by whatever presents the chat to the user.
// Callbacks are invoked from the connection's receive goroutine, except
// OnClosed which runs on the goroutine that ended the connection.
type Bridge interface {
	// PromptUsername asks the user for a display name. It must return
	// when ctx is done.
	PromptUsername(ctx context.Context) (string, error)

	// OnUsernameAssigned reports the name the relay will know us by.
	OnUsernameAssigned(name string)

	// OnChatLine appends one chat line, in arrival order.
	OnChatLine(text string)

	// OnRosterUpdated replaces the displayed roster.
	OnRosterUpdated(text string)

	// OnClosed reports the end of the connection. err is nil when the
	// connection was closed locally.
	OnClosed(err error)
}

// Session is the part of a Connection a Bridge drives.
type Session interface {
	SendUserText(text string) error
	RequestDisconnect() error
}

var _ Session = (*Connection)(nil)
