package protocol

import "time"

// Reserved first characters of frames sent to the relay.
const (
	PrefixAck       = 'a'
	PrefixDeparture = 'i'
)

// TimestampLayout is the relay's chat line timestamp, e.g. "07/3/18 14:05".
const TimestampLayout = "02/1/06 15:04"

// ServerSender attributes announcements generated on behalf of the relay.
const ServerSender = "Server"

// Registration asks the relay to bind name to the connection at localAddr.
func Registration(localAddr, name string) string {
	return localAddr + " " + name
}

// Ack confirms a registered or assigned name.
func Ack(name string) string {
	return string(rune(PrefixAck)) + name
}

// Departure tells the relay name is leaving.
func Departure(name string) string {
	return string(rune(PrefixDeparture)) + name
}

// ChatLine formats text the way the relay displays it.
func ChatLine(at time.Time, sender, text string) string {
	return at.Format(TimestampLayout) + " " + sender + ": " + text
}

// JoinAnnouncement is broadcast once a name has been confirmed.
func JoinAnnouncement(at time.Time, name string) string {
	return ChatLine(at, ServerSender, name+" has joined the chat.")
}

// LeaveAnnouncement is broadcast before a named connection goes away.
func LeaveAnnouncement(at time.Time, name string) string {
	return ChatLine(at, ServerSender, name+" has left the chat.")
}
