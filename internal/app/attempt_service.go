package app

import (
	"context"
	"log/slog"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/session"
	"github.com/google/uuid"
)

// SessionRegistry tracks live attempts (in-memory, Redis-marked, etc).
type SessionRegistry interface {
	Put(ctx context.Context, sess *session.Session) error
	Get(id string) (*session.Session, bool)
	Remove(ctx context.Context, id string)
	Live(ctx context.Context, id string) (session.Registration, bool, error)
}

// ResultStore is the result side of the persistence gateway.
type ResultStore interface {
	session.ResultSaver
	GetQuizResultsByUser(ctx context.Context, userID int64) ([]domain.QuizResult, error)
	GetQuizResultsByQuiz(ctx context.Context, quizID int64) ([]domain.QuizResult, error)
	GetQuizResultByID(ctx context.Context, id int64) (*domain.QuizResult, error)
	DeleteQuizResult(ctx context.Context, id int64) (bool, error)
	GetUserStats(ctx context.Context, userID int64) (domain.UserStats, error)
}

// UserFinder resolves respondents.
type UserFinder interface {
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
}

// AttemptService starts quiz sessions and serves completed results.
type AttemptService struct {
	quizzes  QuizRepository
	users    UserFinder
	results  ResultStore
	sessions SessionRegistry
	opts     session.Options
	newID    func() string
	log      *slog.Logger
}

func NewAttemptService(quizzes QuizRepository, users UserFinder, results ResultStore, sessions SessionRegistry, opts session.Options) *AttemptService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &AttemptService{
		quizzes:  quizzes,
		users:    users,
		results:  results,
		sessions: sessions,
		opts:     opts,
		newID:    uuid.NewString,
		log:      opts.Logger,
	}
}

// StartAttempt creates and starts a session for userID on quizID. The session
// leaves the registry on its own once it ends.
func (s *AttemptService) StartAttempt(ctx context.Context, quizID, userID int64) (*session.Session, session.Snapshot, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, session.Snapshot{}, err
	}
	if user == nil {
		return nil, session.Snapshot{}, domain.ErrUserNotFound
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, session.Snapshot{}, err
	}

	sess := session.New(s.newID(), userID, quiz, s.results, s.opts)
	snap, err := sess.Start(ctx)
	if err != nil {
		sess.Close()
		return nil, session.Snapshot{}, err
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		s.log.Warn("session registry write failed", "session_id", sess.ID(), "err", err)
	}
	go func() {
		<-sess.Done()
		s.sessions.Remove(context.Background(), sess.ID())
	}()
	return sess, snap, nil
}

func (s *AttemptService) Session(id string) (*session.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// LiveSession reports an attempt registered by any instance sharing the registry.
func (s *AttemptService) LiveSession(ctx context.Context, id string) (session.Registration, error) {
	reg, ok, err := s.sessions.Live(ctx, id)
	if err != nil {
		return session.Registration{}, err
	}
	if !ok {
		return session.Registration{}, domain.ErrSessionNotFound
	}
	return reg, nil
}

// Leaderboard lists a quiz's results, best score first and faster first on ties.
func (s *AttemptService) Leaderboard(ctx context.Context, quizID int64) ([]domain.QuizResult, error) {
	return s.results.GetQuizResultsByQuiz(ctx, quizID)
}

func (s *AttemptService) UserResults(ctx context.Context, userID int64) ([]domain.QuizResult, error) {
	return s.results.GetQuizResultsByUser(ctx, userID)
}

func (s *AttemptService) UserStats(ctx context.Context, userID int64) (domain.UserStats, error) {
	return s.results.GetUserStats(ctx, userID)
}

func (s *AttemptService) Result(ctx context.Context, id int64) (domain.QuizResult, error) {
	result, err := s.results.GetQuizResultByID(ctx, id)
	if err != nil {
		return domain.QuizResult{}, err
	}
	if result == nil {
		return domain.QuizResult{}, domain.ErrResultNotFound
	}
	return *result, nil
}

func (s *AttemptService) DeleteResult(ctx context.Context, id int64) error {
	ok, err := s.results.DeleteQuizResult(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrResultNotFound
	}
	return nil
}
