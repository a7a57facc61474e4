// Package session tracks the authentication lifecycle and proxies login and
// logout to the remote auth provider.
package session

import (
	"context"

	"github.com/rs/zerolog"

	"chattour/internal/reactive"
)

// Controller owns the current State. Transitions come exclusively from the
// provider's auth-state stream; Login and Logout only forward the request.
type Controller struct {
	provider AuthProvider
	dispatch reactive.Dispatcher
	log      zerolog.Logger

	state *reactive.Value[State]

	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Controller)

// WithInitialPhase sets the phase reported before the provider's first
// element arrives. Only Unauthenticated and Loading are meaningful.
func WithInitialPhase(p Phase) Option {
	return func(c *Controller) {
		if p == Authenticated {
			return
		}
		c.state = reactive.NewValue(State{Phase: p})
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// NewController starts following the provider's auth-state stream. Every
// element is applied on d.
func NewController(provider AuthProvider, d reactive.Dispatcher, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		dispatch: d,
		log:      zerolog.Nop(),
		state:    reactive.NewValue(State{Phase: Unauthenticated}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "session").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.follow(ctx, provider.AuthState(ctx))

	return c
}

// CurrentPhase returns the latest state.
func (c *Controller) CurrentPhase() State {
	return c.state.Get()
}

// OnPhaseChanged calls fn with the current state now and on every transition.
func (c *Controller) OnPhaseChanged(fn func(State)) (cancel func()) {
	return c.state.Subscribe(fn)
}

// Login asks the provider to sign in. The outcome is only visible through the
// next phase emission; the returned task is for callers that want to wait.
func (c *Controller) Login() *reactive.Task {
	return reactive.Go(func() error {
		if err := c.provider.Login(context.Background()); err != nil {
			c.log.Warn().Err(err).Msg("login failed")
			return err
		}
		return nil
	})
}

// Logout asks the provider to sign out. Same contract as Login.
func (c *Controller) Logout() *reactive.Task {
	return reactive.Go(func() error {
		if err := c.provider.Logout(context.Background()); err != nil {
			c.log.Warn().Err(err).Msg("logout failed")
			return err
		}
		return nil
	})
}

// Close stops following the auth-state stream.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}

func (c *Controller) follow(ctx context.Context, updates <-chan reactive.Update[AuthState]) {
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

func (c *Controller) apply(u reactive.Update[AuthState]) {
	if u.Err != nil {
		c.log.Warn().Err(u.Err).Msg("auth state stream failed, falling back to unauthenticated")
		c.state.Set(State{Phase: Unauthenticated})
		return
	}

	switch u.Value.Phase {
	case Authenticated:
		id := Identity{
			Name:        DisplayName(u.Value.Credentials.IDToken),
			Credentials: u.Value.Credentials,
		}
		c.log.Debug().Str("name", id.Name).Msg("authenticated")
		c.state.Set(State{Phase: Authenticated, Identity: id})
	case Loading:
		c.state.Set(State{Phase: Loading})
	default:
		c.state.Set(State{Phase: Unauthenticated})
	}
}
