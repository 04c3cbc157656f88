package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	arberrors "github.com/sweetpotato0/arborflow/errors"
	"github.com/sweetpotato0/arborflow/pkg/logging"
	"github.com/sweetpotato0/arborflow/specialist"
	"github.com/sweetpotato0/arborflow/store"
)

// Manager tracks the live sessions of one orchestrator process. The domain is
// single-operator field work, so there is no cross-session sharing; the
// manager only hands out and retires session objects.
type Manager struct {
	mu          sync.RWMutex
	specialists specialist.Set
	reports     store.ReportStore
	sessions    map[string]*Session
	opts        []Option
	logger      *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStore sets the report store passed to every session.
func WithStore(rs store.ReportStore) ManagerOption {
	return func(m *Manager) {
		m.reports = rs
	}
}

// WithSessionOptions appends options applied to every created session.
func WithSessionOptions(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.opts = append(m.opts, opts...)
	}
}

// WithManagerLogger overrides the manager logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a session manager bound to one specialist set.
func NewManager(set specialist.Set, opts ...ManagerOption) (*Manager, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		specialists: set,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("session_manager")
	}
	return m, nil
}

// Create creates a new session. An empty id is replaced with a generated
// UUID; a duplicate id is rejected.
func (m *Manager) Create(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[id]; exists {
		return nil, arberrors.ErrAlreadyExists
	}

	opts := m.opts
	if m.reports != nil {
		opts = append(append([]Option(nil), m.opts...), WithReportStore(m.reports))
	}
	sess, err := New(id, m.specialists, opts...)
	if err != nil {
		return nil, err
	}
	m.sessions[id] = sess
	m.logger.Info("session created", "id", id)
	return sess, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, arberrors.ErrNotFound
	}
	return sess, nil
}

// Close closes a session and removes it from the manager. The final snapshot
// is persisted first when a store is configured and the session finished.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return arberrors.ErrNotFound
	}

	if m.reports != nil && sess.IsComplete() {
		if err := m.reports.Save(ctx, sess.Snapshot()); err != nil {
			m.logger.Error("failed to persist session on close", "id", id, "error", err)
		}
	}
	m.logger.Info("session closed", "id", id)
	return sess.Close()
}

// List returns the ids of all live sessions.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
