package capture

import (
	"context"
	"sync"

	"github.com/fpang/flipbook-booth/internal/camera"
	"github.com/fpang/flipbook-booth/internal/style"
	"github.com/rs/zerolog/log"
)

// Manager keeps at most one session active. Starting a session stops the
// previous one and waits for its camera to be released first.
type Manager struct {
	opts Options

	mu      sync.Mutex
	current *Session
}

// NewManager returns a Manager whose sessions share opts. The provider is
// wrapped in an exclusive guard unless it already is one.
func NewManager(opts Options) *Manager {
	if _, ok := opts.Provider.(*camera.Exclusive); !ok && opts.Provider != nil {
		opts.Provider = camera.NewExclusive(opts.Provider)
	}
	return &Manager{opts: opts}
}

// Start validates the style, tears down any active session and starts a new
// one with the given hooks.
func (m *Manager) Start(ctx context.Context, s style.Spec, hooks Hooks) (*Session, error) {
	opts := m.opts
	opts.Hooks = hooks
	session, err := NewSession(s, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev := m.current; prev != nil {
		select {
		case <-prev.Done():
		default:
			log.Info().Str("session_id", prev.ID()).Msg("Stopping active session before starting a new one")
		}
		prev.Stop()
	}

	m.current = session
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// Current returns the most recently started session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Stop tears down the active session, if any, and forgets it.
func (m *Manager) Stop() {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
}
