package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/session"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps live attempts in process and publishes a liveness marker
// per attempt in Redis, so other instances can see who is mid-quiz.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*session.Session),
	}
}

func (s *SessionStore) Put(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	k := sessionKey(sess.ID())
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, "user_id", sess.UserID(), "quiz_id", sess.QuizID())
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) Get(id string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *SessionStore) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	// best effort; the marker expires on its own
	_ = s.client.Del(ctx, sessionKey(id)).Err()
}

// Live reads the liveness marker, which any instance may have written.
func (s *SessionStore) Live(ctx context.Context, id string) (session.Registration, bool, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return session.Registration{}, false, fmt.Errorf("%w: read session marker: %w", domain.ErrPersistence, err)
	}
	if len(fields) == 0 {
		return session.Registration{}, false, nil
	}
	userID, err := strconv.ParseInt(fields["user_id"], 10, 64)
	if err != nil {
		return session.Registration{}, false, fmt.Errorf("%w: session marker user_id: %w", domain.ErrPersistence, err)
	}
	quizID, err := strconv.ParseInt(fields["quiz_id"], 10, 64)
	if err != nil {
		return session.Registration{}, false, fmt.Errorf("%w: session marker quiz_id: %w", domain.ErrPersistence, err)
	}
	return session.Registration{SessionID: id, UserID: userID, QuizID: quizID}, true, nil
}

func sessionKey(id string) string {
	return "quiz:session:" + id
}
