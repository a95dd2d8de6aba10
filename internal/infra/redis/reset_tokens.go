package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"quiz-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ResetTokenStore keeps one-time password reset tokens with a TTL.
type ResetTokenStore struct {
	client *redis.Client
}

func NewResetTokenStore(client *redis.Client) *ResetTokenStore {
	return &ResetTokenStore{client: client}
}

func (s *ResetTokenStore) Save(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, resetKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	return nil
}

// Consume atomically reads and deletes the token.
func (s *ResetTokenStore) Consume(ctx context.Context, token string) (int64, error) {
	raw, err := s.client.GetDel(ctx, resetKey(token)).Result()
	if isNil(err) {
		return 0, domain.ErrResetTokenInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("consume reset token: %w", err)
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.ErrResetTokenInvalid
	}
	return userID, nil
}

func resetKey(token string) string {
	return "quiz:reset:" + token
}
