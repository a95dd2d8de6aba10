package memory

import (
	"context"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
)

type resetEntry struct {
	userID    int64
	expiresAt time.Time
}

// ResetTokenStore holds one-time password reset tokens in process.
type ResetTokenStore struct {
	mu     sync.Mutex
	tokens map[string]resetEntry
	clock  func() time.Time
}

func NewResetTokenStore() *ResetTokenStore {
	return &ResetTokenStore{
		tokens: make(map[string]resetEntry),
		clock:  time.Now,
	}
}

func (s *ResetTokenStore) Save(_ context.Context, token string, userID int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = resetEntry{userID: userID, expiresAt: s.clock().Add(ttl)}
	return nil
}

// Consume returns the token's user and deletes it, whether or not it expired.
func (s *ResetTokenStore) Consume(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok {
		return 0, domain.ErrResetTokenInvalid
	}
	delete(s.tokens, token)
	if !s.clock().Before(entry.expiresAt) {
		return 0, domain.ErrResetTokenInvalid
	}
	return entry.userID, nil
}
