// Package session gates protected operations on the presence of an auth
// session. The guard resolves the current session once per check, tracks
// changes through the store's subscription, and treats any failure to
// resolve as signed out rather than blocking.
package session

import (
	"context"
	"sync"

	"taskdeck/internal/utils"
	"taskdeck/store"
)

// Guard resolves and tracks the current auth session.
type Guard struct {
	auth store.Auth

	mu      sync.RWMutex
	current *store.Session

	unsubscribe func()
	onSignOut   func()
}

// Option configures a Guard.
type Option func(*Guard)

// WithSignOutHandler registers a callback invoked whenever the session
// transitions to signed out, from any source.
func WithSignOutHandler(fn func()) Option {
	return func(g *Guard) {
		g.onSignOut = fn
	}
}

// NewGuard creates a guard subscribed to the store's session changes.
// Close releases the subscription.
func NewGuard(auth store.Auth, opts ...Option) *Guard {
	g := &Guard{auth: auth}
	for _, opt := range opts {
		opt(g)
	}

	g.unsubscribe = auth.OnSessionChange(func(event store.Event, session *store.Session) {
		g.mu.Lock()
		g.current = session
		g.mu.Unlock()

		if event == store.EventSignedOut && g.onSignOut != nil {
			g.onSignOut()
		}
	})

	return g
}

// Require returns the current session, resolving it from the store. It
// returns an auth error when no session exists or the session cannot be
// determined. A resolution failure is reported as signed out, never as a
// hang or a transient state.
func (g *Guard) Require(ctx context.Context) (*store.Session, error) {
	session, err := g.auth.GetSession(ctx)
	if err != nil {
		utils.Debugf("session resolution failed: %v", err)
		if utils.IsAuth(err) {
			return nil, err
		}
		return nil, utils.ErrNotSignedIn()
	}
	if session == nil {
		return nil, utils.ErrNotSignedIn()
	}

	g.mu.Lock()
	g.current = session
	g.mu.Unlock()

	return session, nil
}

// Current returns the last known session without touching the store.
// It can be stale; Require is the authoritative check.
func (g *Guard) Current() *store.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// SignedIn reports whether a session is currently known.
func (g *Guard) SignedIn() bool {
	return g.Current() != nil
}

// Close releases the session-change subscription.
func (g *Guard) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
		g.unsubscribe = nil
	}
}
