// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"encoding/json"
	"time"
)

// Message kinds pushed to dashboard clients.
const (
	KindStreamStatus = "stream_status"
	KindSettings     = "settings"
)

// Envelope is the JSON shape of every message.
type Envelope struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Message is an encoded envelope ready for fan-out.
type Message struct {
	Kind string
	Data []byte

	// Retain keeps the message and replays it to clients that connect
	// later, replacing any earlier retained message of the same Kind.
	Retain bool
}

// NewMessage encodes an envelope of the given kind.
func NewMessage(kind string, at time.Time, data any, retain bool) (Message, error) {
	b, err := json.Marshal(Envelope{Type: kind, At: at, Data: data})
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: kind, Data: b, Retain: retain}, nil
}
