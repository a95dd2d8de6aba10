package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quiz-session-service/internal/domain"
	"github.com/uptrace/bun"
)

// Store persists the quiz and result hierarchies. Every multi-row write runs in
// a single transaction; cascading deletes are left to the schema.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *bun.DB {
	return s.db
}

// CreateQuiz inserts the quiz, its questions and their options atomically and
// returns a copy carrying the generated ids.
func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	var created domain.Quiz
	err := runInTx(ctx, s.db, "create quiz", func(ctx context.Context, tx bun.Tx) error {
		row := quizRow{
			Title:       quiz.Title,
			Description: quiz.Description,
			CreatorID:   quiz.CreatorID,
			TimeLimit:   quiz.TimeLimitMinutes,
			CreatedAt:   s.now().UTC(),
		}
		if _, err := tx.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		if row.ID == 0 {
			return domain.ErrMissingGeneratedID
		}

		created = quiz.WithID(row.ID)
		created.CreatedAt = row.CreatedAt
		for i, question := range created.Questions {
			stored, err := insertQuestion(ctx, tx, row.ID, question)
			if err != nil {
				return err
			}
			created.Questions[i] = stored
		}
		return nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return created, nil
}

// AddQuestionToQuiz inserts one question with its options atomically.
func (s *Store) AddQuestionToQuiz(ctx context.Context, quizID int64, question domain.Question) (domain.Question, error) {
	var created domain.Question
	err := runInTx(ctx, s.db, "add question", func(ctx context.Context, tx bun.Tx) error {
		stored, err := insertQuestion(ctx, tx, quizID, question)
		if err != nil {
			return err
		}
		created = stored
		return nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return created, nil
}

// AddOptionToQuestion inserts one option.
func (s *Store) AddOptionToQuestion(ctx context.Context, questionID int64, option domain.Option) (domain.Option, error) {
	var created domain.Option
	err := runInTx(ctx, s.db, "add option", func(ctx context.Context, tx bun.Tx) error {
		stored, err := insertOption(ctx, tx, questionID, option)
		if err != nil {
			return err
		}
		created = stored
		return nil
	})
	if err != nil {
		return domain.Option{}, err
	}
	return created, nil
}

func insertQuestion(ctx context.Context, tx bun.Tx, quizID int64, question domain.Question) (domain.Question, error) {
	row := questionRow{QuizID: quizID, Text: question.Text, Points: question.Points}
	if _, err := tx.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return domain.Question{}, fmt.Errorf("insert question: %w", err)
	}
	if row.ID == 0 {
		return domain.Question{}, domain.ErrMissingGeneratedID
	}

	stored := question.WithID(row.ID, quizID)
	for i, option := range stored.Options {
		created, err := insertOption(ctx, tx, row.ID, option)
		if err != nil {
			return domain.Question{}, err
		}
		stored.Options[i] = created
	}
	return stored, nil
}

func insertOption(ctx context.Context, tx bun.Tx, questionID int64, option domain.Option) (domain.Option, error) {
	row := optionRow{QuestionID: questionID, Text: option.Text, IsCorrect: option.Correct}
	if _, err := tx.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return domain.Option{}, fmt.Errorf("insert option: %w", err)
	}
	if row.ID == 0 {
		return domain.Option{}, domain.ErrMissingGeneratedID
	}
	return option.WithID(row.ID, questionID), nil
}

// GetQuizByID loads the quiz with its questions and options in insertion order.
// A missing quiz yields (nil, nil).
func (s *Store) GetQuizByID(ctx context.Context, id int64) (*domain.Quiz, error) {
	var row quizRow
	err := s.quizSelect(&row).Where("q.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, readErr("get quiz", err)
	}

	quiz := row.toDomain()
	questions, err := s.loadQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	quiz.Questions = questions
	return &quiz, nil
}

// LoadQuiz adapts GetQuizByID to the quiz cache loader contract.
func (s *Store) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	quiz, err := s.GetQuizByID(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz == nil {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return *quiz, nil
}

// GetAllQuizzes lists quiz headers with the creator's name; questions are not loaded.
func (s *Store) GetAllQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return s.listQuizzes(ctx, nil)
}

// GetQuizzesByCreator lists the headers of quizzes authored by creatorID.
func (s *Store) GetQuizzesByCreator(ctx context.Context, creatorID int64) ([]domain.Quiz, error) {
	return s.listQuizzes(ctx, &creatorID)
}

func (s *Store) listQuizzes(ctx context.Context, creatorID *int64) ([]domain.Quiz, error) {
	var rows []quizRow
	query := s.quizSelect(&rows).Order("q.id ASC")
	if creatorID != nil {
		query = query.Where("q.creator_id = ?", *creatorID)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, readErr("list quizzes", err)
	}

	quizzes := make([]domain.Quiz, 0, len(rows))
	for _, row := range rows {
		quizzes = append(quizzes, row.toDomain())
	}
	return quizzes, nil
}

func (s *Store) quizSelect(model interface{}) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(model).
		ColumnExpr("q.*").
		ColumnExpr("u.username AS creator_name").
		Join("JOIN users AS u ON u.id = q.creator_id")
}

func (s *Store) loadQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	var questionRows []questionRow
	err := s.db.NewSelect().
		Model(&questionRows).
		Where("quiz_id = ?", quizID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, readErr("load questions", err)
	}
	if len(questionRows) == 0 {
		return []domain.Question{}, nil
	}

	ids := make([]int64, len(questionRows))
	for i, row := range questionRows {
		ids[i] = row.ID
	}
	var optionRows []optionRow
	err = s.db.NewSelect().
		Model(&optionRows).
		Where("question_id IN (?)", bun.In(ids)).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, readErr("load options", err)
	}

	byQuestion := make(map[int64][]domain.Option, len(questionRows))
	for _, row := range optionRows {
		byQuestion[row.QuestionID] = append(byQuestion[row.QuestionID], row.toDomain())
	}

	questions := make([]domain.Question, 0, len(questionRows))
	for _, row := range questionRows {
		question := row.toDomain()
		question.Options = byQuestion[row.ID]
		if question.Options == nil {
			question.Options = []domain.Option{}
		}
		questions = append(questions, question)
	}
	return questions, nil
}

// UpdateQuiz replaces the mutable header fields. False means no such quiz.
func (s *Store) UpdateQuiz(ctx context.Context, quiz domain.Quiz) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*quizRow)(nil)).
		Set("title = ?", quiz.Title).
		Set("description = ?", quiz.Description).
		Set("time_limit = ?", quiz.TimeLimitMinutes).
		Where("id = ?", quiz.ID).
		Exec(ctx)
	return affected("update quiz", res, err)
}

// UpdateQuestion replaces text and points. False means no such question.
func (s *Store) UpdateQuestion(ctx context.Context, question domain.Question) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*questionRow)(nil)).
		Set("text = ?", question.Text).
		Set("points = ?", question.Points).
		Where("id = ?", question.ID).
		Exec(ctx)
	return affected("update question", res, err)
}

// UpdateOption replaces text and correctness. False means no such option.
// The edit is rolled back when it would leave the question without a correct
// option.
func (s *Store) UpdateOption(ctx context.Context, option domain.Option) (bool, error) {
	return s.editOption(ctx, "update option", option.ID, func(ctx context.Context, tx bun.Tx) (sql.Result, error) {
		return tx.NewUpdate().
			Model((*optionRow)(nil)).
			Set("text = ?", option.Text).
			Set("is_correct = ?", option.Correct).
			Where("id = ?", option.ID).
			Exec(ctx)
	})
}

// DeleteQuiz removes the quiz; questions, options and results cascade.
func (s *Store) DeleteQuiz(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.NewDelete().Model((*quizRow)(nil)).Where("id = ?", id).Exec(ctx)
	return affected("delete quiz", res, err)
}

// DeleteQuestion removes the question; its options cascade.
func (s *Store) DeleteQuestion(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.NewDelete().Model((*questionRow)(nil)).Where("id = ?", id).Exec(ctx)
	return affected("delete question", res, err)
}

// DeleteOption removes one option unless the question would be left with
// fewer than two options or none correct.
func (s *Store) DeleteOption(ctx context.Context, id int64) (bool, error) {
	return s.editOption(ctx, "delete option", id, func(ctx context.Context, tx bun.Tx) (sql.Result, error) {
		return tx.NewDelete().Model((*optionRow)(nil)).Where("id = ?", id).Exec(ctx)
	})
}

// editOption applies write and re-checks the owning question's option set in
// the same transaction.
func (s *Store) editOption(ctx context.Context, op string, optionID int64, write func(ctx context.Context, tx bun.Tx) (sql.Result, error)) (bool, error) {
	err := runInTx(ctx, s.db, op, func(ctx context.Context, tx bun.Tx) error {
		var questionID int64
		err := tx.NewSelect().
			Model((*optionRow)(nil)).
			Column("question_id").
			Where("id = ?", optionID).
			Scan(ctx, &questionID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNoRowsAffected
		}
		if err != nil {
			return fmt.Errorf("resolve option: %w", err)
		}

		res, err := write(ctx, tx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNoRowsAffected
		}

		var rows []optionRow
		if err := tx.NewSelect().Model(&rows).Where("question_id = ?", questionID).Scan(ctx); err != nil {
			return fmt.Errorf("reload options: %w", err)
		}
		return checkOptionSet(rows)
	})
	if errors.Is(err, domain.ErrNoRowsAffected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func checkOptionSet(rows []optionRow) error {
	if len(rows) < 2 {
		return domain.ErrEmptyOptionSet
	}
	for _, row := range rows {
		if row.IsCorrect {
			return nil
		}
	}
	return domain.ErrNoCorrectOption
}

// QuizIDForQuestion resolves the owning quiz; false means no such question.
func (s *Store) QuizIDForQuestion(ctx context.Context, questionID int64) (int64, bool, error) {
	var quizID int64
	err := s.db.NewSelect().
		Model((*questionRow)(nil)).
		Column("quiz_id").
		Where("id = ?", questionID).
		Scan(ctx, &quizID)
	return ownerID("resolve question", quizID, err)
}

// QuizIDForOption resolves the quiz owning an option's question.
func (s *Store) QuizIDForOption(ctx context.Context, optionID int64) (int64, bool, error) {
	var quizID int64
	err := s.db.NewSelect().
		Model((*optionRow)(nil)).
		ColumnExpr("qs.quiz_id").
		Join("JOIN questions AS qs ON qs.id = o.question_id").
		Where("o.id = ?", optionID).
		Scan(ctx, &quizID)
	return ownerID("resolve option", quizID, err)
}

func ownerID(op string, id int64, err error) (int64, bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, readErr(op, err)
	}
	return id, true, nil
}
