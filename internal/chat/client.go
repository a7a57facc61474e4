package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"chattour/internal/metrics"
	"chattour/internal/wire"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 8192                // Maximum frame size allowed from peer.
	mutateTimeout  = 10 * time.Second
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte // Buffered channel of outbound frames, closed by the hub.
	Caller Caller
}

// ReadPump decodes client frames and routes them: live queries to the hub,
// mutations straight to the function set.
func (c *Client) ReadPump() {
	defer func() {
		send(c.Hub, c.Hub.Unregister, c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	log := c.Hub.log.With().Int("user_id", c.Caller.UserID).Logger()

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var frame wire.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		switch frame.Type {
		case wire.TypeSubscribe:
			if !c.Hub.functions.HasQuery(frame.Query) {
				err := fmt.Errorf("%w: %s", ErrUnknownQuery, frame.Query)
				send(c.Hub, c.Hub.reply, outbound{client: c, payload: encode(wire.QueryError(frame.ID, err))})
				continue
			}
			if !send(c.Hub, c.Hub.subscribe, subscription{client: c, id: frame.ID, query: frame.Query}) {
				return
			}

		case wire.TypeUnsubscribe:
			send(c.Hub, c.Hub.unsubscribe, subscription{client: c, id: frame.ID})

		case wire.TypeMutate:
			if !send(c.Hub, c.Hub.reply, outbound{client: c, payload: c.mutate(frame)}) {
				return
			}

		default:
			log.Warn().Str("type", frame.Type).Msg("dropping unknown frame type")
		}
	}
}

func (c *Client) mutate(frame wire.ClientFrame) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), mutateTimeout)
	defer cancel()

	value, err := c.Hub.functions.Mutate(ctx, c.Caller, frame.Command, frame.Args)
	if err != nil {
		metrics.Mutations.WithLabelValues(frame.Command, "error").Inc()
		c.Hub.log.Warn().Err(err).Str("command", frame.Command).Msg("mutation failed")
		return encode(wire.MutationError(frame.ID, err))
	}
	metrics.Mutations.WithLabelValues(frame.Command, "ok").Inc()
	return encode(wire.MutationResult(frame.ID, value))
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Frames queued meanwhile go into the same websocket message,
			// newline separated.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
