package session

import (
	"context"
	"sync"
)

// Manager keeps at most one open session per learner.
type Manager struct {
	next     NextCarder
	recorder Recorder
	limit    int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a manager whose sessions end after limit answers.
func NewManager(next NextCarder, rec Recorder, limit int) *Manager {
	return &Manager{
		next:     next,
		recorder: rec,
		limit:    limit,
		sessions: make(map[string]*Session),
	}
}

// Start opens a new session for the learner, abandoning any open one.
// An abandoned session records nothing further.
func (m *Manager) Start(ctx context.Context, learnerID string) (*Session, error) {
	s, err := Start(ctx, learnerID, m.next, m.recorder, m.limit)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[learnerID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the learner's open session.
func (m *Manager) Get(learnerID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[learnerID]
	return s, ok
}

// End drops the learner's session.
func (m *Manager) End(learnerID string) {
	m.mu.Lock()
	delete(m.sessions, learnerID)
	m.mu.Unlock()
}
