package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/zailonsoft/carbot/internal/models"
)

// SessionStore maps conversation ids to sessions. It is safe for concurrent use.
// Values are copied on the way in and out, so a caller may mutate what it got
// from Get without affecting the stored session until it calls Set.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*models.Session)}
}

// Get returns a copy of the stored session.
func (s *SessionStore) Get(id string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// GetOrCreate returns a copy of the stored session, or a fresh idle session
// when none exists. The fresh session is not stored until Set is called.
func (s *SessionStore) GetOrCreate(id string, now time.Time) *models.Session {
	if sess, ok := s.Get(id); ok {
		return sess
	}
	return models.NewSession(id, now)
}

// Set stores a copy of sess under sess.ID.
func (s *SessionStore) Set(sess *models.Session) {
	if sess == nil || sess.ID == "" {
		return
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess.Clone()
	s.mu.Unlock()
}

// Delete removes the session for id. Missing ids are ignored.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep deletes every session for which stale returns true and returns copies
// of the removed sessions. stale runs under the store lock and must not call
// back into the store.
func (s *SessionStore) Sweep(stale func(*models.Session) bool) []*models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []*models.Session
	for id, sess := range s.sessions {
		if stale(sess) {
			removed = append(removed, sess.Clone())
			delete(s.sessions, id)
		}
	}
	if len(removed) > 0 {
		slog.Debug("SessionStore swept sessions", "removed", len(removed), "remaining", len(s.sessions))
	}
	return removed
}
