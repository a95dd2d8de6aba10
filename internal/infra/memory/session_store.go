package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/session"
)

// SessionStore keeps live attempts in process, keyed by session id.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Session),
	}
}

func (s *SessionStore) Put(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
	return nil
}

func (s *SessionStore) Get(id string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Remove drops the session from the registry. It does not stop it.
func (s *SessionStore) Remove(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Live reports a registered session; only this process is visible.
func (s *SessionStore) Live(_ context.Context, id string) (session.Registration, bool, error) {
	sess, ok := s.Get(id)
	if !ok {
		return session.Registration{}, false, nil
	}
	return session.Registration{SessionID: sess.ID(), UserID: sess.UserID(), QuizID: sess.QuizID()}, true, nil
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
