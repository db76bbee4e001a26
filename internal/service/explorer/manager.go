package explorer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns the live explorer sessions. Sessions are created on demand,
// looked up by id, and reaped after sitting idle past the configured TTL.
type Manager struct {
	fetcher       Fetcher
	bus           Publisher
	logger        *zap.Logger
	subjectPrefix string
	idleTTL       time.Duration
	sweepInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	cancelFunc context.CancelFunc
	running    bool
}

// ManagerConfig carries the manager's tunables
type ManagerConfig struct {
	SubjectPrefix string
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// NewManager creates a session manager
func NewManager(fetcher Fetcher, bus Publisher, logger *zap.Logger, cfg ManagerConfig) *Manager {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "explorer"
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	return &Manager{
		fetcher:       fetcher,
		bus:           bus,
		logger:        logger,
		subjectPrefix: cfg.SubjectPrefix,
		idleTTL:       cfg.IdleTTL,
		sweepInterval: cfg.SweepInterval,
		sessions:      make(map[string]*Session),
	}
}

// Start launches the idle-session reaper
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	m.mu.Unlock()

	go m.sweepLoop(ctx)
	return nil
}

// Stop halts the reaper and closes every session
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	m.cancelFunc()

	for id, session := range m.sessions {
		session.Close()
		delete(m.sessions, id)
	}
}

// Create opens a new session with default criteria and starts its first
// fetch
func (m *Manager) Create() *Session {
	id := uuid.New().String()
	subject := ViewSubject(m.subjectPrefix, id)
	session := newSession(id, subject, m.fetcher, m.bus, m.logger)

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	m.logger.Info("explorer session created", zap.String("session", id))
	return session
}

// Get returns the session for id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete closes and removes a session
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	session.Close()
	m.logger.Info("explorer session deleted", zap.String("session", id))
	return nil
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

// sweep drops sessions idle past the TTL
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	var expired []*Session
	for id, session := range m.sessions {
		if session.idleFor(now) > m.idleTTL {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range expired {
		session.Close()
		m.logger.Info("explorer session expired", zap.String("session", session.ID()))
	}
}
