// Package backend talks to the chattour server: HTTP for accounts and one
// websocket for live queries and mutations.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chattour/internal/reactive"
	"chattour/internal/session"
	"chattour/internal/wire"
)

var (
	ErrNotConnected  = errors.New("not connected to the server")
	ErrDisconnected  = errors.New("connection to the server lost")
	ErrNoCredentials = errors.New("no username or password set")
	ErrUnauthorized  = errors.New("server rejected the access token")
)

// RemoteError is an error reported by the server for a query or mutation.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

type Options struct {
	// URL is the server's HTTP base, e.g. http://localhost:8080.
	URL        string
	HTTPClient *http.Client
	// MaxBackoff caps the delay between reconnect attempts.
	MaxBackoff time.Duration
}

type subscription struct {
	id    int64
	query string
	box   *mailbox[reactive.Update[json.RawMessage]]
}

type result struct {
	value json.RawMessage
	err   error
}

// waiter is released when a link dialed with token attaches.
type waiter struct {
	token string
	ready chan struct{}
}

// Client implements session.AuthProvider and conversation.Backend.
type Client struct {
	baseURL    string
	http       *http.Client
	maxBackoff time.Duration
	log        zerolog.Logger

	auth *reactive.Value[reactive.Update[session.AuthState]]
	kick chan struct{}

	mu       sync.Mutex
	username string
	password string
	creds    session.Credentials
	link     *link
	subs     map[int64]*subscription
	pending  map[int64]chan result
	waiters  []waiter
	nextID   int64

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(opts Options, logger zerolog.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.URL, "/"),
		http:       hc,
		maxBackoff: opts.MaxBackoff,
		log:        logger.With().Str("component", "backend").Logger(),
		auth:       reactive.NewValue(reactive.Update[session.AuthState]{Value: session.AuthState{Phase: session.Unauthenticated}}),
		kick:       make(chan struct{}, 1),
		subs:       make(map[int64]*subscription),
		pending:    make(map[int64]chan result),
		cancel:     func() {},
		done:       make(chan struct{}),
	}
}

// Start connects in the background and keeps reconnecting until ctx is done
// or Close is called.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.cancel = cancel
		c.mu.Unlock()
		go c.run(ctx)
	})
}

// Close stops the connection manager. Open subscriptions stay registered but
// receive nothing further.
func (c *Client) Close() {
	c.startOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	cancel()
	<-c.done
}

// Connected reports whether the websocket is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// SetCredentials stores the username and password used by Login.
func (c *Client) SetCredentials(username, password string) {
	c.mu.Lock()
	c.username = username
	c.password = password
	c.mu.Unlock()
}

// AuthState pushes the current auth state and then every change until ctx
// is done.
func (c *Client) AuthState(ctx context.Context) <-chan reactive.Update[session.AuthState] {
	out := make(chan reactive.Update[session.AuthState])
	box := newMailbox[reactive.Update[session.AuthState]]()
	cancel := c.auth.Subscribe(box.push)
	go func() {
		defer cancel()
		box.drain(ctx, out)
	}()
	return out
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, username, password, name string) error {
	body := map[string]string{"username": username, "password": password, "name": name}
	return c.postJSON(ctx, "/register", body, nil)
}

// Login signs in with the stored credentials. Authenticated is published once
// the websocket has reconnected with the new access token, or after
// writeWait if the server cannot be reached, so subscriptions opened in
// response already ride the authenticated link.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	username, password := c.username, c.password
	c.mu.Unlock()
	if username == "" || password == "" {
		c.setAuth(session.AuthState{Phase: session.Unauthenticated})
		return ErrNoCredentials
	}

	c.setAuth(session.AuthState{Phase: session.Loading})

	var res struct {
		AccessToken string `json:"access_token"`
		IDToken     string `json:"id_token"`
	}
	err := c.postJSON(ctx, "/login", map[string]string{"username": username, "password": password}, &res)
	if err != nil {
		c.setAuth(session.AuthState{Phase: session.Unauthenticated})
		return fmt.Errorf("login: %w", err)
	}

	creds := session.Credentials{AccessToken: res.AccessToken, IDToken: res.IDToken}
	ready := make(chan struct{})
	c.mu.Lock()
	c.creds = creds
	c.waiters = append(c.waiters, waiter{token: creds.AccessToken, ready: ready})
	c.mu.Unlock()

	c.reconnect()
	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
		c.log.Warn().Msg("websocket not back after login, continuing")
	case <-ctx.Done():
		c.dropWaiter(ready)
		c.mu.Lock()
		if c.creds.AccessToken == creds.AccessToken {
			c.creds = session.Credentials{}
		}
		c.mu.Unlock()
		c.reconnect()
		c.setAuth(session.AuthState{Phase: session.Unauthenticated})
		return fmt.Errorf("login: %w", ctx.Err())
	}
	c.dropWaiter(ready)

	c.log.Info().Str("username", username).Msg("logged in")
	c.setAuth(session.AuthState{Phase: session.Authenticated, Credentials: creds})
	return nil
}

// Logout drops the tokens and reconnects anonymously.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.creds = session.Credentials{}
	c.mu.Unlock()

	c.setAuth(session.AuthState{Phase: session.Unauthenticated})
	c.reconnect()
	return nil
}

// Subscribe registers a live query. The subscription survives reconnects and
// is dropped when ctx is done.
func (c *Client) Subscribe(ctx context.Context, query string) <-chan reactive.Update[json.RawMessage] {
	out := make(chan reactive.Update[json.RawMessage])
	sub := &subscription{query: query, box: newMailbox[reactive.Update[json.RawMessage]]()}

	c.mu.Lock()
	c.nextID++
	sub.id = c.nextID
	c.subs[sub.id] = sub
	if c.link != nil {
		c.link.enqueue(encode(wire.ClientFrame{Type: wire.TypeSubscribe, ID: sub.id, Query: query}))
	}
	c.mu.Unlock()

	go func() {
		sub.box.drain(ctx, out)

		c.mu.Lock()
		delete(c.subs, sub.id)
		if c.link != nil {
			c.link.enqueue(encode(wire.ClientFrame{Type: wire.TypeUnsubscribe, ID: sub.id}))
		}
		c.mu.Unlock()
	}()
	return out
}

// Mutate runs a server mutation and waits for its result.
func (c *Client) Mutate(ctx context.Context, command string, args map[string]string) (json.RawMessage, error) {
	ch := make(chan result, 1)

	c.mu.Lock()
	if c.link == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.link.enqueue(encode(wire.ClientFrame{Type: wire.TypeMutate, ID: id, Command: command, Args: args}))
	c.mu.Unlock()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Client) setAuth(s session.AuthState) {
	c.auth.Set(reactive.Update[session.AuthState]{Value: s})
}

func (c *Client) dropWaiter(ready chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w.ready == ready {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// reconnect asks the connection manager to redial now.
func (c *Client) reconnect() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) != nil || e.Error == "" {
			e.Error = resp.Status
		}
		return &RemoteError{Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func encode(f wire.ClientFrame) []byte {
	b, _ := json.Marshal(f)
	return b
}
