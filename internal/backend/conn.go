package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"chattour/internal/reactive"
	"chattour/internal/session"
	"chattour/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// link is one live websocket connection.
type link struct {
	conn  *websocket.Conn
	token string
	send  chan []byte
	done  chan struct{}

	// redial is set when the client closed the link itself to dial again.
	redial    atomic.Bool
	closeOnce sync.Once
}

func newLink(conn *websocket.Conn, token string, buffer int) *link {
	return &link{conn: conn, token: token, send: make(chan []byte, buffer), done: make(chan struct{})}
}

// enqueue hands a frame to the write pump without blocking. A full buffer
// means the server stopped reading, so the link is dropped and the client
// reconnects. Frames for a dead link are dropped.
func (l *link) enqueue(b []byte) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.send <- b:
	default:
		l.drop()
	}
}

func (l *link) drop() {
	l.closeOnce.Do(func() { l.conn.Close() })
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0

	for {
		conn, token, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := b.NextBackOff()
			c.log.Warn().Err(err).Dur("retry_in", wait).Msg("dial failed")
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-c.kick:
				timer.Stop()
				b.Reset()
			case <-ctx.Done():
				timer.Stop()
				return
			}
			continue
		}

		b.Reset()
		c.serve(ctx, newLink(conn, token, sendBuffer))
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, string, error) {
	c.mu.Lock()
	token := c.creds.AccessToken
	c.mu.Unlock()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL(c.baseURL), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized && token != "" {
			c.rejectToken(token)
		}
		return nil, "", err
	}
	return conn, token, nil
}

// rejectToken drops a token the server refused and reports it on the auth
// stream. The next dial is anonymous.
func (c *Client) rejectToken(token string) {
	c.mu.Lock()
	stale := c.creds.AccessToken == token
	if stale {
		c.creds = session.Credentials{}
	}
	c.mu.Unlock()
	if stale {
		c.log.Warn().Msg("access token rejected, signing out")
		c.auth.Set(reactive.Update[session.AuthState]{Err: ErrUnauthorized})
	}
}

// serve runs one connection until it drops or a reconnect is requested.
func (c *Client) serve(ctx context.Context, l *link) {
	go c.writePump(l)

	c.attach(l)
	c.log.Info().Bool("authenticated", l.token != "").Msg("connected")

	go func() {
		select {
		case <-c.kick:
			l.redial.Store(true)
		case <-ctx.Done():
		case <-l.done:
		}
		l.drop()
	}()

	c.readPump(l)
	close(l.done)
	c.detach(l)
	c.log.Info().Msg("disconnected")
}

// attach makes l the current link, replays every live subscription on it and
// wakes the callers waiting for a link that carries l's token.
func (c *Client) attach(l *link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link = l
	for _, sub := range c.subs {
		l.enqueue(encode(wire.ClientFrame{Type: wire.TypeSubscribe, ID: sub.id, Query: sub.query}))
	}
	waiting := c.waiters[:0]
	for _, w := range c.waiters {
		if w.token == l.token {
			close(w.ready)
			continue
		}
		waiting = append(waiting, w)
	}
	c.waiters = waiting
}

// detach fails pending mutations. Subscriptions are told the data is stale
// unless the client dropped the link to redial, in which case attach
// resubscribes them on the next link.
func (c *Client) detach(l *link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != l {
		return
	}
	c.link = nil
	for id, ch := range c.pending {
		ch <- result{err: ErrDisconnected}
		delete(c.pending, id)
	}
	if l.redial.Load() {
		return
	}
	for _, sub := range c.subs {
		sub.box.push(reactive.Update[json.RawMessage]{Err: ErrDisconnected})
	}
}

func (c *Client) readPump(l *link) {
	l.conn.SetReadLimit(maxMessageSize)
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		// The server batches queued frames into one message.
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var frame wire.ServerFrame
			if err := json.Unmarshal(line, &frame); err != nil {
				c.log.Warn().Err(err).Msg("dropping malformed frame")
				continue
			}
			c.route(frame)
		}
	}
}

func (c *Client) route(frame wire.ServerFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch frame.Type {
	case wire.TypeQueryResult, wire.TypeQueryError:
		sub, ok := c.subs[frame.ID]
		if !ok {
			return
		}
		if frame.Type == wire.TypeQueryError {
			sub.box.push(reactive.Update[json.RawMessage]{Err: &RemoteError{Message: frame.Error}})
			return
		}
		sub.box.push(reactive.Update[json.RawMessage]{Value: frame.Value})

	case wire.TypeMutationResult, wire.TypeMutationError:
		ch, ok := c.pending[frame.ID]
		if !ok {
			return
		}
		delete(c.pending, frame.ID)
		if frame.Type == wire.TypeMutationError {
			ch <- result{err: &RemoteError{Message: frame.Error}}
			return
		}
		ch <- result{value: frame.Value}

	default:
		c.log.Warn().Str("type", frame.Type).Msg("dropping unknown frame type")
	}
}

func (c *Client) writePump(l *link) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				l.drop()
				return
			}
		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.drop()
				return
			}
		case <-l.done:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// wsURL maps the HTTP base to the websocket endpoint.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}
