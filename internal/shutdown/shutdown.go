// Package shutdown coordinates resource release on exit: the session
// guard's subscription, the sqlite cache, the store client and the
// background log file all register here and are closed in LIFO order.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"taskdeck/internal/utils"
)

// CleanupFunc releases one resource. The context is cancelled when the
// shutdown deadline passes.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager collects cleanup functions and runs them once on shutdown.
type Manager struct {
	mu       sync.Mutex
	cleanups []cleanupEntry

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewManager creates a shutdown manager.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{ctx: ctx, cancel: cancel}
}

// Register adds a named cleanup. Cleanups run in LIFO order, so register
// foundational resources first.
func (m *Manager) Register(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// RegisterCloser adds a cleanup for a plain io.Closer-shaped function.
func (m *Manager) RegisterCloser(name string, close func() error) {
	m.Register(name, func(context.Context) error { return close() })
}

// Context is cancelled when shutdown begins; long operations should
// derive from it.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Shutdown cancels the manager context and runs all cleanups in LIFO
// order. Cleanup failures are logged and do not stop the remaining
// cleanups. Safe to call more than once; only the first call runs.
func (m *Manager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		m.cancel()

		m.mu.Lock()
		cleanups := make([]cleanupEntry, len(m.cleanups))
		copy(cleanups, m.cleanups)
		m.mu.Unlock()

		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i].fn(ctx); err != nil {
				utils.Warnf("cleanup %s failed: %v", cleanups[i].name, err)
			}
			if ctx.Err() != nil {
				utils.Warnf("shutdown deadline passed, %d cleanups skipped", i)
				return
			}
		}
	})
}

// IsShutdown reports whether shutdown has started.
func (m *Manager) IsShutdown() bool {
	select {
	case <-m.ctx.Done():
		return true
	default:
		return false
	}
}

// NotifySignals runs Shutdown when SIGINT or SIGTERM arrives. The
// returned stop function releases the signal handler.
func (m *Manager) NotifySignals() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		if _, ok := <-ch; ok {
			m.Shutdown(context.Background())
			os.Exit(1)
		}
	}()

	return func() {
		signal.Stop(ch)
		close(ch)
	}
}
