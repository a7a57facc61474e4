// Package conversation keeps a live view of the remote message list and sends
// the outgoing draft.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"chattour/internal/reactive"
)

var ErrNoBackend = errors.New("no backend configured")

// Controller owns the message list, the outgoing draft and the in-flight flag.
// All three are only mutated on the dispatcher.
type Controller struct {
	backend  Backend
	dispatch reactive.Dispatcher
	log      zerolog.Logger
	author   string
	mode     Mode

	messages *reactive.Value[[]Message]
	draft    *reactive.Value[string]
	sending  *reactive.Value[bool]

	closed atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Controller)

// WithSeed shows msgs and never subscribes. Used for previews and tests.
func WithSeed(msgs []Message) Option {
	return func(c *Controller) {
		c.mode = Seeded
		c.messages = reactive.NewValue(append([]Message{}, msgs...))
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// NewController subscribes to ListQuery unless WithSeed is given. author is
// the identity label attached to every submitted message.
func NewController(b Backend, d reactive.Dispatcher, author string, opts ...Option) *Controller {
	c := &Controller{
		backend:  b,
		dispatch: d,
		log:      zerolog.Nop(),
		author:   author,
		mode:     Subscribed,
		messages: reactive.NewValue([]Message{}),
		draft:    reactive.NewValue(""),
		sending:  reactive.NewValue(false),
		cancel:   func() {},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "conversation").Str("author", author).Logger()

	if c.mode == Seeded || b == nil {
		close(c.done)
		return c
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.follow(ctx, b.Subscribe(ctx, ListQuery))
	return c
}

func (c *Controller) Mode() Mode {
	return c.mode
}

func (c *Controller) Author() string {
	return c.author
}

// CurrentMessages returns the latest list. Callers must not modify it.
func (c *Controller) CurrentMessages() []Message {
	return c.messages.Get()
}

// OnMessagesChanged calls fn with the current list now and on every replacement.
func (c *Controller) OnMessagesChanged(fn func([]Message)) (cancel func()) {
	return c.messages.Subscribe(fn)
}

func (c *Controller) Draft() string {
	return c.draft.Get()
}

func (c *Controller) OnDraftChanged(fn func(string)) (cancel func()) {
	return c.draft.Subscribe(fn)
}

// SetDraft replaces the draft. Rapid calls are last-write-wins.
func (c *Controller) SetDraft(text string) {
	c.dispatch.Dispatch(func() {
		c.draft.Set(text)
	})
}

func (c *Controller) Sending() bool {
	return c.sending.Get()
}

func (c *Controller) OnSendingChanged(fn func(bool)) (cancel func()) {
	return c.sending.Subscribe(fn)
}

// Submit sends the current draft as one SendCommand mutation.
//
// The draft is captured when the submit reaches the dispatcher, so it sees
// every SetDraft issued before it. On success the draft is cleared only if it
// still equals what was sent; on failure it is kept. A submit while another is
// in flight resolves with ErrSubmitInFlight and sends nothing.
func (c *Controller) Submit() *reactive.Task {
	if c.closed.Load() {
		return reactive.Failed(ErrClosed)
	}
	if c.backend == nil {
		return reactive.Failed(ErrNoBackend)
	}

	task, resolve := reactive.NewTask()
	accepted := c.dispatch.Dispatch(func() {
		if c.sending.Get() {
			resolve(ErrSubmitInFlight)
			return
		}
		body := c.draft.Get()
		args := map[string]string{"author": c.author, "body": body}
		c.sending.Set(true)

		go func() {
			_, err := c.backend.Mutate(context.Background(), SendCommand, args)
			ok := c.dispatch.Dispatch(func() {
				c.sending.Set(false)
				if err != nil {
					c.log.Warn().Err(err).Msg("send failed, keeping draft")
					resolve(err)
					return
				}
				if c.draft.Get() == body {
					c.draft.Set("")
				}
				resolve(nil)
			})
			if !ok {
				// No dispatcher left to clear the draft.
				c.sending.Set(false)
				resolve(ErrClosed)
			}
		}()
	})
	if !accepted {
		resolve(ErrClosed)
	}
	return task
}

// Close drops the live subscription.
func (c *Controller) Close() {
	c.closed.Store(true)
	c.cancel()
	<-c.done
}

func (c *Controller) follow(ctx context.Context, updates <-chan reactive.Update[json.RawMessage]) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			c.dispatch.Dispatch(func() { c.apply(u) })
		}
	}
}

func (c *Controller) apply(u reactive.Update[json.RawMessage]) {
	if u.Err != nil {
		c.log.Warn().Err(u.Err).Msg("message subscription failed")
		c.messages.Set([]Message{Sentinel})
		return
	}

	msgs, err := decodeMessages(u.Value)
	if err != nil {
		c.log.Warn().Err(err).Msg("undecodable message list")
		c.messages.Set([]Message{Sentinel})
		return
	}
	c.messages.Set(msgs)
}
