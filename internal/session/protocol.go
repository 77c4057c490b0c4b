package session

import (
	"strconv"
	"time"
)

const (
	// ClientInfoCommand asks the server for the session's slot and connect time.
	ClientInfoCommand = "/clientinfo"

	// EchoPrefix precedes the echoed message for any other input.
	EchoPrefix = "Your message: "

	// RejectMessage is written to connections refused for lack of a free slot.
	RejectMessage = "Max clients reached!"

	// ConnectedSinceLayout renders MM/dd/yyyy HH:mm.
	ConnectedSinceLayout = "01/02/2006 15:04"
)

// Reply returns the response to a single received message.
// Only an exact match of ClientInfoCommand is a command; everything else,
// including "/clientinfo\n", is echoed back verbatim.
func Reply(slot int, connectedAt time.Time, msg string) string {
	if msg == ClientInfoCommand {
		return ClientInfo(slot, connectedAt)
	}
	return EchoPrefix + msg
}

// ClientInfo formats the /clientinfo response.
func ClientInfo(slot int, connectedAt time.Time) string {
	return "client id: " + strconv.Itoa(slot) + ", connected since: " + connectedAt.Format(ConnectedSinceLayout)
}
