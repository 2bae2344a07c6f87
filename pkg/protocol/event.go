package protocol

import (
	"slices"
	"strings"
)

// Reserved first characters of frames received from the relay.
const (
	PrefixRosterOffer   = 'n'
	PrefixReturningUser = '_'
	PrefixActiveRoster  = 'u'
)

// EventKind represents the type of a classified frame
type EventKind int

const (
	KindChatText EventKind = iota
	KindRosterOffer
	KindReturningUser
	KindActiveRoster
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case KindChatText:
		return "CHAT_TEXT"
	case KindRosterOffer:
		return "ROSTER_OFFER"
	case KindReturningUser:
		return "RETURNING_USER"
	case KindActiveRoster:
		return "ACTIVE_ROSTER"
	default:
		return "UNKNOWN"
	}
}

// Event is a frame received from the relay after classification.
// The set of implementations is closed to this package.
type Event interface {
	Kind() EventKind
	event()
}

// UsernameRosterOffer is sent by the relay to a connection it has no name
// for. ExistingNames lists the names already taken.
type UsernameRosterOffer struct {
	ExistingNames []string
}

// Taken reports whether name exactly matches one of the offered names.
func (o UsernameRosterOffer) Taken(name string) bool {
	return slices.Contains(o.ExistingNames, name)
}

// ReturningUser is sent by the relay to a connection it recognizes.
type ReturningUser struct {
	AssignedName string
}

// ActiveUserRoster carries the relay's current roster, ready for display.
type ActiveUserRoster struct {
	Text string
}

// ChatText is an ordinary, already formatted chat line.
type ChatText struct {
	Text string
}

func (UsernameRosterOffer) Kind() EventKind { return KindRosterOffer }
func (ReturningUser) Kind() EventKind       { return KindReturningUser }
func (ActiveUserRoster) Kind() EventKind    { return KindActiveRoster }
func (ChatText) Kind() EventKind            { return KindChatText }

func (UsernameRosterOffer) event() {}
func (ReturningUser) event()       {}
func (ActiveUserRoster) event()    {}
func (ChatText) event()            {}

// Classify maps a frame to its event. Every non-empty frame classifies;
// frames without a reserved prefix are ChatText carrying the whole frame.
func Classify(frame string) (Event, error) {
	if frame == "" {
		return nil, &ProtocolError{Err: ErrEmptyFrame}
	}

	switch frame[0] {
	case PrefixRosterOffer:
		return UsernameRosterOffer{ExistingNames: strings.Fields(frame[1:])}, nil
	case PrefixReturningUser:
		return ReturningUser{AssignedName: frame[1:]}, nil
	case PrefixActiveRoster:
		return ActiveUserRoster{Text: frame[1:]}, nil
	default:
		return ChatText{Text: frame}, nil
	}
}
