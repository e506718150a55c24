// Package credentials persists the auth session between CLI invocations
// using the OS-native keyring, with a file fallback for systems where no
// keyring service is available.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taskdeck/internal/utils"
	"taskdeck/store"
)

const (
	keyringService = "taskdeck"
	keyringAccount = "session"
	sessionFile    = "session.json"
)

// Source indicates where a session was loaded from
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceFile    Source = "file"
	SourceNone    Source = "none"
)

// Manager handles session persistence
type Manager struct {
	keyring  Keyring
	fallback string // directory for the file fallback
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithFallbackDir sets the directory used when the keyring is unavailable
func WithFallbackDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.fallback = dir
	}
}

// NewManager creates a new session manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save persists a session. The keyring is tried first; when it is
// unavailable the session is written to a 0600 file in the fallback
// directory instead.
func (m *Manager) Save(ctx context.Context, session *store.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := m.keyring.Set(keyringService, keyringAccount, string(data)); err == nil {
		return nil
	}

	return m.saveToFile(data)
}

// Load retrieves the persisted session and reports where it came from.
// A missing session is not an error: it returns (nil, SourceNone, nil).
func (m *Manager) Load(ctx context.Context) (*store.Session, Source, error) {
	if data, err := m.keyring.Get(keyringService, keyringAccount); err == nil && data != "" {
		session, err := decodeSession([]byte(data))
		if err != nil {
			return nil, SourceNone, err
		}
		return session, SourceKeyring, nil
	}

	data, err := os.ReadFile(m.sessionPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, SourceNone, nil
		}
		return nil, SourceNone, fmt.Errorf("failed to read session file: %w", err)
	}
	session, err := decodeSession(data)
	if err != nil {
		return nil, SourceNone, err
	}
	return session, SourceFile, nil
}

// Delete removes the persisted session from every source. Missing
// sessions are ignored so sign-out is idempotent.
func (m *Manager) Delete(ctx context.Context) error {
	if err := m.keyring.Delete(keyringService, keyringAccount); err != nil {
		if !strings.Contains(err.Error(), "not found") {
			utils.Debugf("keyring delete failed: %v", err)
		}
	}

	if err := os.Remove(m.sessionPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func (m *Manager) saveToFile(data []byte) error {
	dir := m.fallbackDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sessionFile), data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func (m *Manager) sessionPath() string {
	return filepath.Join(m.fallbackDir(), sessionFile)
}

func (m *Manager) fallbackDir() string {
	if m.fallback != "" {
		return m.fallback
	}
	return defaultFallbackDir()
}

func defaultFallbackDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskdeck")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "state", "taskdeck")
	}
	return filepath.Join(home, ".local", "state", "taskdeck")
}

func decodeSession(data []byte) (*store.Session, error) {
	session := &store.Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("corrupt session data: %w", err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("corrupt session data: missing access token")
	}
	return session, nil
}
