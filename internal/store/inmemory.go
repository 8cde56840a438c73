package store

import (
	"log/slog"
	"sync"

	"github.com/clinicbot/margot/internal/models"
)

// InMemoryStore keeps sessions in a map. Contents are lost on restart.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewInMemoryStore creates an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	slog.Debug("InMemoryStore created")
	return &InMemoryStore{sessions: make(map[string]*models.Session)}
}

// GetSession returns a copy of the stored session, or (nil, nil) when the
// sender has no session.
func (s *InMemoryStore) GetSession(sender string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sender]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

// SaveSession stores a copy of the session keyed by its sender.
func (s *InMemoryStore) SaveSession(session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.Sender] = &cp
	slog.Debug("InMemoryStore.SaveSession: session saved", "sender", session.Sender, "state", session.SchedulingStatus)
	return nil
}

// DeleteSession removes the sender's session. Deleting a missing session is
// not an error.
func (s *InMemoryStore) DeleteSession(sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sender)
	slog.Debug("InMemoryStore.DeleteSession: session deleted", "sender", sender)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
