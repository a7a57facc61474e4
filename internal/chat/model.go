package chat

import (
	"context"
	"time"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

// Message is a stored chat message. The id is assigned here, never by the
// client, and is exposed under "_id".
type Message struct {
	ID        string    `json:"_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists messages.
type Store interface {
	SaveMessage(ctx context.Context, msg *Message) error
	// ListMessages returns the newest limit messages, oldest first.
	ListMessages(ctx context.Context, limit int) ([]Message, error)
}

// Notifier carries invalidations between server instances.
// Every instance, including the publisher, receives each published topic.
type Notifier interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context) <-chan string
}

// ---------------------------------------------
// ⚡ Internal Hub Models
// ---------------------------------------------

// Caller identifies who opened a websocket. The zero value is anonymous.
type Caller struct {
	UserID   int
	Username string
}

func (c Caller) Anonymous() bool {
	return c.UserID == 0
}

// subscription ties a client-chosen id to a live query.
type subscription struct {
	client *Client
	id     int64
	query  string
}

// outbound is a frame addressed to one client. Only the hub writes to
// Client.Send so a closed channel is never written to.
type outbound struct {
	client  *Client
	payload []byte
}
