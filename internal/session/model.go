package session

import (
	"context"

	"chattour/internal/reactive"
)

// Phase is the tri-state session status.
type Phase int

const (
	Unauthenticated Phase = iota
	Loading
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Unauthenticated:
		return "unauthenticated"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// UnknownName is shown when the identity token carries no usable name claim.
const UnknownName = "unknown"

// Credentials are the tokens handed out by the identity provider.
type Credentials struct {
	AccessToken string
	IDToken     string
}

// AuthState is one element of the provider's auth-state stream.
type AuthState struct {
	Phase       Phase
	Credentials Credentials
}

// Identity describes the signed-in user.
type Identity struct {
	Name        string
	Credentials Credentials
}

// State is what the controller exposes. Identity is only set when Phase is
// Authenticated.
type State struct {
	Phase    Phase
	Identity Identity
}

// AuthenticatedAs returns the identity when the state is Authenticated.
func (s State) AuthenticatedAs() (Identity, bool) {
	if s.Phase != Authenticated {
		return Identity{}, false
	}
	return s.Identity, true
}

// AuthProvider is the part of the remote data port the session needs.
// AuthState must push the provider's current state first and then every
// change until ctx is done.
type AuthProvider interface {
	AuthState(ctx context.Context) <-chan reactive.Update[AuthState]
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
}
