package hub

import (
	"time"

	"github.com/google/uuid"
)

// ShutdownText is broadcast once when the process is asked to terminate.
const ShutdownText = "server shutdown"

// Message is an immutable broadcast payload. Origin is the id of the
// publishing session, empty for messages the server itself publishes.
type Message struct {
	ID          string
	Origin      string
	Text        string
	PublishedAt time.Time
}

// NewMessage creates a message published by origin.
func NewMessage(origin, text string) Message {
	return Message{
		ID:          uuid.NewString(),
		Origin:      origin,
		Text:        text,
		PublishedAt: time.Now().UTC(),
	}
}

// ServerMessage creates a message with no originating session.
func ServerMessage(text string) Message {
	return NewMessage("", text)
}

// ShutdownMessage is the notice every subscriber receives before the hub closes.
func ShutdownMessage() Message {
	return ServerMessage(ShutdownText)
}
