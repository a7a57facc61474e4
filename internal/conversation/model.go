package conversation

import (
	"context"
	"encoding/json"
	"errors"

	"chattour/internal/reactive"
)

const (
	// ListQuery is the live query the controller subscribes to.
	ListQuery = "messages:list"
	// SendCommand is the mutation issued by Submit.
	SendCommand = "messages:send"
)

var (
	ErrSubmitInFlight = errors.New("a message is already being sent")
	ErrClosed         = errors.New("conversation closed")
)

// Message is one chat message. The id is assigned by the server.
type Message struct {
	ID     string `json:"_id"`
	Author string `json:"author"`
	Body   string `json:"body"`
}

// Sentinel replaces the whole list when the live subscription fails.
var Sentinel = Message{ID: "id", Author: "None", Body: "None"}

// Mode reports whether the controller follows the backend or shows a fixed list.
type Mode int

const (
	Subscribed Mode = iota
	Seeded
)

func (m Mode) String() string {
	if m == Seeded {
		return "seeded"
	}
	return "subscribed"
}

// Backend is the part of the remote data port the conversation needs.
// Subscribe pushes the full result of the query on every change until ctx is
// done. Mutate resolves with the created record, if any.
type Backend interface {
	Subscribe(ctx context.Context, query string) <-chan reactive.Update[json.RawMessage]
	Mutate(ctx context.Context, command string, args map[string]string) (json.RawMessage, error)
}

func decodeMessages(raw json.RawMessage) ([]Message, error) {
	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// IsSentinel reports whether msgs is the fallback list.
func IsSentinel(msgs []Message) bool {
	return len(msgs) == 1 && msgs[0] == Sentinel
}
