// Package memory provides an in-memory store.Client. It backs the test
// suites for the repository and CLI layers, and doubles as an offline
// backend when no remote store is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/utils"
	"taskdeck/store"
)

// Store is an in-memory implementation of store.Client.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]account          // email -> account
	tables   map[string][]map[string]any // table -> rows
	session  *store.Session
	notifier store.Notifier

	// Error injection for testing
	SignInErr  error
	SignUpErr  error
	SignOutErr error
	GetUserErr error
	SelectErr  error
	InsertErr  error
	UpdateErr  error
	DeleteErr  error
}

type account struct {
	user     store.User
	password string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]account),
		tables:   make(map[string][]map[string]any),
	}
}

// AddAccount registers a user so SignIn can succeed without SignUp.
func (s *Store) AddAccount(email, password string) store.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := store.User{ID: uuid.New().String(), Email: email}
	s.accounts[email] = account{user: user, password: password}
	return user
}

// AddRow inserts a row directly, bypassing auth. The id column is
// filled in when missing.
func (s *Store) AddRow(table string, row map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := row["id"].(string)
	if !ok || id == "" {
		id = uuid.New().String()
		row["id"] = id
	}
	s.tables[table] = append(s.tables[table], row)
	return id
}

// Rows returns a copy of a table's rows, for assertions.
func (s *Store) Rows(table string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]map[string]any, len(s.tables[table]))
	copy(rows, s.tables[table])
	return rows
}

// =============================================================================
// Auth
// =============================================================================

func (s *Store) SignIn(ctx context.Context, email, password string) (*store.Session, error) {
	if s.SignInErr != nil {
		return nil, s.SignInErr
	}
	s.mu.Lock()
	acct, ok := s.accounts[email]
	if !ok || acct.password != password {
		s.mu.Unlock()
		return nil, utils.ErrAuthenticationFailed("invalid login credentials")
	}
	session := &store.Session{
		AccessToken:  uuid.New().String(),
		RefreshToken: uuid.New().String(),
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         acct.user,
	}
	s.session = session
	s.mu.Unlock()

	s.notifier.Notify(store.EventSignedIn, session)
	return session, nil
}

func (s *Store) SignUp(ctx context.Context, email, password string) (*store.User, error) {
	if s.SignUpErr != nil {
		return nil, s.SignUpErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[email]; ok {
		return nil, utils.ErrAuthenticationFailed("user already registered")
	}
	user := store.User{ID: uuid.New().String(), Email: email}
	s.accounts[email] = account{user: user, password: password}
	return &user, nil
}

func (s *Store) SignOut(ctx context.Context) error {
	if s.SignOutErr != nil {
		return s.SignOutErr
	}
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	s.notifier.Notify(store.EventSignedOut, nil)
	return nil
}

func (s *Store) GetUser(ctx context.Context) (*store.User, error) {
	if s.GetUserErr != nil {
		return nil, s.GetUserErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, utils.ErrNotSignedIn()
	}
	user := s.session.User
	return &user, nil
}

func (s *Store) GetSession(ctx context.Context) (*store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, nil
	}
	session := *s.session
	return &session, nil
}

// SetSession installs a session directly, as when restoring from disk.
func (s *Store) SetSession(session *store.Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	if session != nil {
		s.notifier.Notify(store.EventSignedIn, session)
	}
}

func (s *Store) OnSessionChange(fn func(store.Event, *store.Session)) func() {
	return s.notifier.Subscribe(fn)
}

// =============================================================================
// Table Operations
// =============================================================================

func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]json.RawMessage, error) {
	if s.SelectErr != nil {
		return nil, s.SelectErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []map[string]any
	for _, row := range s.tables[table] {
		if rowMatches(row, q.Filters) {
			matched = append(matched, row)
		}
	}

	if q.OrderBy != "" {
		col := q.OrderBy
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := fmt.Sprint(matched[i][col]), fmt.Sprint(matched[j][col])
			if q.Ascending {
				return a < b
			}
			return a > b
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	return encodeRows(matched)
}

func (s *Store) Insert(ctx context.Context, table string, rows any) ([]json.RawMessage, error) {
	if s.InsertErr != nil {
		return nil, s.InsertErr
	}

	// Round-trip through JSON so callers can pass structs or maps,
	// mirroring what a wire client accepts.
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		var single map[string]any
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("insert into %s: rows must be objects: %w", table, err)
		}
		decoded = []map[string]any{single}
	}

	s.mu.Lock()
	for _, row := range decoded {
		if id, ok := row["id"].(string); !ok || id == "" {
			row["id"] = uuid.New().String()
		}
		if _, ok := row["created_at"]; !ok {
			row["created_at"] = time.Now().UTC().Format(time.RFC3339)
		}
		s.tables[table] = append(s.tables[table], row)
	}
	s.mu.Unlock()

	return encodeRows(decoded)
}

func (s *Store) Update(ctx context.Context, table string, fields map[string]any, filters []store.Filter) ([]json.RawMessage, error) {
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("update on %s requires at least one filter", table)
	}

	s.mu.Lock()
	var updated []map[string]any
	for _, row := range s.tables[table] {
		if rowMatches(row, filters) {
			for k, v := range fields {
				row[k] = v
			}
			updated = append(updated, row)
		}
	}
	s.mu.Unlock()

	return encodeRows(updated)
}

func (s *Store) Delete(ctx context.Context, table string, filters []store.Filter) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	if len(filters) == 0 {
		return fmt.Errorf("delete on %s requires at least one filter", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tables[table][:0]
	for _, row := range s.tables[table] {
		if !rowMatches(row, filters) {
			kept = append(kept, row)
		}
	}
	s.tables[table] = kept
	return nil
}

func (s *Store) Close() error {
	return nil
}

func rowMatches(row map[string]any, filters []store.Filter) bool {
	for _, f := range filters {
		if fmt.Sprint(row[f.Column]) != f.Value {
			return false
		}
	}
	return true
}

func encodeRows(rows []map[string]any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

var _ store.Client = (*Store)(nil)
