package app

import (
	"context"
	"log/slog"

	"quiz-session-service/internal/domain"
)

// QuizStore is the authoring side of the persistence gateway.
type QuizStore interface {
	CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	AddQuestionToQuiz(ctx context.Context, quizID int64, question domain.Question) (domain.Question, error)
	AddOptionToQuestion(ctx context.Context, questionID int64, option domain.Option) (domain.Option, error)
	GetQuizByID(ctx context.Context, id int64) (*domain.Quiz, error)
	GetAllQuizzes(ctx context.Context) ([]domain.Quiz, error)
	GetQuizzesByCreator(ctx context.Context, creatorID int64) ([]domain.Quiz, error)
	UpdateQuiz(ctx context.Context, quiz domain.Quiz) (bool, error)
	UpdateQuestion(ctx context.Context, question domain.Question) (bool, error)
	UpdateOption(ctx context.Context, option domain.Option) (bool, error)
	DeleteQuiz(ctx context.Context, id int64) (bool, error)
	DeleteQuestion(ctx context.Context, id int64) (bool, error)
	DeleteOption(ctx context.Context, id int64) (bool, error)
	QuizIDForQuestion(ctx context.Context, questionID int64) (int64, bool, error)
	QuizIDForOption(ctx context.Context, optionID int64) (int64, bool, error)
}

// QuizRepository loads quiz content through a cache.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID int64) error
}

// QuizService contains the authoring use cases. Every write to a quiz drops
// its cached copy so new attempts see the edit.
type QuizService struct {
	store QuizStore
	cache QuizRepository
	log   *slog.Logger
}

func NewQuizService(store QuizStore, cache QuizRepository, log *slog.Logger) *QuizService {
	if log == nil {
		log = slog.Default()
	}
	return &QuizService{store: store, cache: cache, log: log}
}

func (s *QuizService) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if err := domain.ValidateQuiz(quiz); err != nil {
		return domain.Quiz{}, err
	}
	created, err := s.store.CreateQuiz(ctx, quiz)
	if err != nil {
		return domain.Quiz{}, err
	}
	s.log.Info("quiz created", "quiz_id", created.ID, "creator_id", created.CreatorID, "questions", len(created.Questions))
	return created, nil
}

// GetQuiz returns the full hierarchy, answer key included.
func (s *QuizService) GetQuiz(ctx context.Context, id int64) (domain.Quiz, error) {
	return s.cache.GetQuiz(ctx, id)
}

func (s *QuizService) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return s.store.GetAllQuizzes(ctx)
}

func (s *QuizService) ListQuizzesByCreator(ctx context.Context, creatorID int64) ([]domain.Quiz, error) {
	return s.store.GetQuizzesByCreator(ctx, creatorID)
}

// UpdateQuiz replaces title, description and time limit.
func (s *QuizService) UpdateQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := domain.ValidateQuizHeader(quiz); err != nil {
		return err
	}
	ok, err := s.store.UpdateQuiz(ctx, quiz)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrQuizNotFound
	}
	return s.invalidate(ctx, quiz.ID)
}

func (s *QuizService) DeleteQuiz(ctx context.Context, id int64) error {
	ok, err := s.store.DeleteQuiz(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrQuizNotFound
	}
	s.log.Info("quiz deleted", "quiz_id", id)
	return s.invalidate(ctx, id)
}

func (s *QuizService) AddQuestion(ctx context.Context, quizID int64, question domain.Question) (domain.Question, error) {
	if err := domain.ValidateQuestion(question); err != nil {
		return domain.Question{}, err
	}
	existing, err := s.store.GetQuizByID(ctx, quizID)
	if err != nil {
		return domain.Question{}, err
	}
	if existing == nil {
		return domain.Question{}, domain.ErrQuizNotFound
	}
	created, err := s.store.AddQuestionToQuiz(ctx, quizID, question)
	if err != nil {
		return domain.Question{}, err
	}
	return created, s.invalidate(ctx, quizID)
}

// UpdateQuestion replaces text and points; options are edited separately.
func (s *QuizService) UpdateQuestion(ctx context.Context, question domain.Question) error {
	if err := domain.ValidateQuestionHeader(question); err != nil {
		return err
	}
	quizID, err := s.questionOwner(ctx, question.ID)
	if err != nil {
		return err
	}
	ok, err := s.store.UpdateQuestion(ctx, question)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrQuestionNotFound
	}
	return s.invalidate(ctx, quizID)
}

func (s *QuizService) DeleteQuestion(ctx context.Context, questionID int64) error {
	quizID, err := s.questionOwner(ctx, questionID)
	if err != nil {
		return err
	}
	ok, err := s.store.DeleteQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrQuestionNotFound
	}
	return s.invalidate(ctx, quizID)
}

func (s *QuizService) AddOption(ctx context.Context, questionID int64, option domain.Option) (domain.Option, error) {
	if err := domain.ValidateOption(option); err != nil {
		return domain.Option{}, err
	}
	quizID, err := s.questionOwner(ctx, questionID)
	if err != nil {
		return domain.Option{}, err
	}
	created, err := s.store.AddOptionToQuestion(ctx, questionID, option)
	if err != nil {
		return domain.Option{}, err
	}
	return created, s.invalidate(ctx, quizID)
}

func (s *QuizService) UpdateOption(ctx context.Context, option domain.Option) error {
	if err := domain.ValidateOption(option); err != nil {
		return err
	}
	quizID, err := s.optionOwner(ctx, option.ID)
	if err != nil {
		return err
	}
	ok, err := s.store.UpdateOption(ctx, option)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrOptionNotFound
	}
	return s.invalidate(ctx, quizID)
}

func (s *QuizService) DeleteOption(ctx context.Context, optionID int64) error {
	quizID, err := s.optionOwner(ctx, optionID)
	if err != nil {
		return err
	}
	ok, err := s.store.DeleteOption(ctx, optionID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrOptionNotFound
	}
	return s.invalidate(ctx, quizID)
}

func (s *QuizService) questionOwner(ctx context.Context, questionID int64) (int64, error) {
	quizID, ok, err := s.store.QuizIDForQuestion(ctx, questionID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrQuestionNotFound
	}
	return quizID, nil
}

func (s *QuizService) optionOwner(ctx context.Context, optionID int64) (int64, error) {
	quizID, ok, err := s.store.QuizIDForOption(ctx, optionID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrOptionNotFound
	}
	return quizID, nil
}

func (s *QuizService) invalidate(ctx context.Context, quizID int64) error {
	if err := s.cache.Invalidate(ctx, quizID); err != nil {
		s.log.Warn("quiz cache invalidation failed", "quiz_id", quizID, "err", err)
		return err
	}
	return nil
}
