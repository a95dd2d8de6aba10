package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
	"github.com/google/uuid"
)

// UserStore is the account side of the persistence gateway.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, user domain.User) (bool, error)
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) (bool, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)
	GetQuizzesByCreator(ctx context.Context, creatorID int64) ([]domain.Quiz, error)
}

// PasswordHasher is the credential service.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
}

// ResetTokenStore keeps one-time password reset tokens.
type ResetTokenStore interface {
	Save(ctx context.Context, token string, userID int64, ttl time.Duration) error
	Consume(ctx context.Context, token string) (int64, error)
}

type UserService struct {
	store    UserStore
	cache    QuizRepository
	hasher   PasswordHasher
	tokens   ResetTokenStore
	tokenTTL time.Duration
	newToken func() string
	log      *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewUserService wires account use cases. cache is the quiz cache cleared when
// a user's quizzes are removed with the account.
func NewUserService(store UserStore, cache QuizRepository, hasher PasswordHasher, tokens ResetTokenStore, tokenTTL time.Duration, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	return &UserService{
		store:    store,
		cache:    cache,
		hasher:   hasher,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		newToken: uuid.NewString,
		log:      log,
	}
}

// Register validates and stores a new account.
func (s *UserService) Register(ctx context.Context, username, email, password string, admin bool) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, domain.ErrBlankText
	}
	if err := domain.ValidateEmail(email); err != nil {
		return domain.User{}, err
	}
	if err := domain.ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.store.CreateUser(ctx, domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Admin:        admin,
	})
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("user registered", "user_id", user.ID, "admin", user.Admin)
	return user, nil
}

// Authenticate returns the user when the password matches. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		// Equal timing with the wrong-password path.
		_, _ = s.hasher.Verify(password, s.dummyDigest())
		return domain.User{}, domain.ErrInvalidCredentials
	}
	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return *user, nil
}

func (s *UserService) dummyDigest() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			s.log.Error("dummy hash failed", "err", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *UserService) GetUser(ctx context.Context, id int64) (domain.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.store.ListUsers(ctx)
}

// UpdateUser replaces username, email and admin flag.
func (s *UserService) UpdateUser(ctx context.Context, user domain.User) error {
	if strings.TrimSpace(user.Username) == "" {
		return domain.ErrBlankText
	}
	if err := domain.ValidateEmail(user.Email); err != nil {
		return err
	}
	ok, err := s.store.UpdateUser(ctx, user)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes the account. Its quizzes and results go with it, so their
// cached copies are dropped as well.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	owned, err := s.store.GetQuizzesByCreator(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.store.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUserNotFound
	}
	s.log.Info("user deleted", "user_id", id, "quizzes", len(owned))

	var firstErr error
	for _, quiz := range owned {
		if err := s.cache.Invalidate(ctx, quiz.ID); err != nil {
			s.log.Warn("quiz cache invalidation failed", "quiz_id", quiz.ID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// IssuePasswordReset creates a single-use token for userID. The caller must
// re-authenticate as an administrator.
func (s *UserService) IssuePasswordReset(ctx context.Context, adminUsername, adminPassword string, userID int64) (string, error) {
	admin, err := s.Authenticate(ctx, adminUsername, adminPassword)
	if err != nil {
		return "", err
	}
	if !admin.Admin {
		return "", domain.ErrNotAdmin
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return "", err
	}
	token := s.newToken()
	if err := s.tokens.Save(ctx, token, userID, s.tokenTTL); err != nil {
		return "", err
	}
	s.log.Info("password reset issued", "user_id", userID, "admin_id", admin.ID, "ttl", s.tokenTTL.String())
	return token, nil
}

// ResetPassword consumes token and stores the new password.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}
	userID, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	ok, err := s.store.UpdatePasswordHash(ctx, userID, hash)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUserNotFound
	}
	s.log.Info("password reset", "user_id", userID)
	return nil
}
