// Package store defines the client interface for the remote row store that
// holds all taskdeck data: authentication plus generic per-table CRUD. The
// supabase subpackage talks to a real backend over HTTP; the memory
// subpackage implements the same contract in-process for tests and offline
// use.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// User identifies an authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the credential object issued by the auth service. Its presence
// is the sole gate for protected operations.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Event describes a session state change delivered to subscribers.
type Event string

const (
	EventSignedIn  Event = "SIGNED_IN"
	EventSignedOut Event = "SIGNED_OUT"
)

// Filter is an equality condition on a column.
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

// Query holds the optional select parameters: equality filters, ordering and
// a result-count limit. A zero Query selects everything in store order.
type Query struct {
	Filters   []Filter
	OrderBy   string
	Ascending bool
	Limit     int
}

// Auth defines the authentication operations of the remote store.
type Auth interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	GetUser(ctx context.Context) (*User, error)
	GetSession(ctx context.Context) (*Session, error)

	// SetSession installs a previously issued session, typically one
	// restored from persisted credentials.
	SetSession(session *Session)

	// OnSessionChange subscribes to session state changes. The returned
	// function unsubscribes; calling it more than once is harmless.
	OnSessionChange(fn func(Event, *Session)) (unsubscribe func())
}

// Table defines the generic row operations, parameterized by table name.
// Rows cross this boundary as raw JSON; typed decoding belongs to callers.
type Table interface {
	Select(ctx context.Context, table string, q Query) ([]json.RawMessage, error)
	Insert(ctx context.Context, table string, rows any) ([]json.RawMessage, error)
	Update(ctx context.Context, table string, fields map[string]any, filters []Filter) ([]json.RawMessage, error)
	Delete(ctx context.Context, table string, filters []Filter) error
}

// Client is the full remote row store contract.
type Client interface {
	Auth
	Table

	Close() error
}

// Notifier implements session-change fan-out for Client implementations.
// Subscribe and Notify are safe for concurrent use.
type Notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Event, *Session)
}

// Subscribe registers a callback and returns its unsubscribe function.
func (n *Notifier) Subscribe(fn func(Event, *Session)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listeners == nil {
		n.listeners = make(map[int]func(Event, *Session))
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// Notify invokes every subscribed callback with the given event.
func (n *Notifier) Notify(event Event, session *Session) {
	n.mu.Lock()
	fns := make([]func(Event, *Session), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(event, session)
	}
}
