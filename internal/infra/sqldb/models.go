package sqldb

import (
	"time"

	"quiz-session-service/internal/domain"
	"github.com/uptrace/bun"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64  `bun:"id,pk,autoincrement"`
	Username     string `bun:"username,notnull"`
	PasswordHash string `bun:"password_hash,notnull"`
	Email        string `bun:"email,notnull"`
	IsAdmin      bool   `bun:"is_admin,notnull"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Title       string    `bun:"title,notnull"`
	Description string    `bun:"description,notnull"`
	CreatorID   int64     `bun:"creator_id,notnull"`
	TimeLimit   int       `bun:"time_limit,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	CreatorName string    `bun:"creator_name,scanonly"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qs"`

	ID     int64  `bun:"id,pk,autoincrement"`
	QuizID int64  `bun:"quiz_id,notnull"`
	Text   string `bun:"text,notnull"`
	Points int    `bun:"points,notnull"`
}

type optionRow struct {
	bun.BaseModel `bun:"table:options,alias:o"`

	ID         int64  `bun:"id,pk,autoincrement"`
	QuestionID int64  `bun:"question_id,notnull"`
	Text       string `bun:"text,notnull"`
	IsCorrect  bool   `bun:"is_correct,notnull"`
}

type quizResultRow struct {
	bun.BaseModel `bun:"table:quiz_results,alias:qr"`

	ID              int64     `bun:"id,pk,autoincrement"`
	UserID          int64     `bun:"user_id,notnull"`
	QuizID          int64     `bun:"quiz_id,notnull"`
	Score           int       `bun:"score,notnull"`
	MaxScore        int       `bun:"max_score,notnull"`
	DurationSeconds int64     `bun:"duration_seconds,notnull"`
	CompletedAt     time.Time `bun:"completed_at,notnull"`
	QuizTitle       string    `bun:"quiz_title,scanonly"`
	Username        string    `bun:"username,scanonly"`
}

type questionResultRow struct {
	bun.BaseModel `bun:"table:question_results,alias:qres"`

	ID           int64  `bun:"id,pk,autoincrement"`
	QuizResultID int64  `bun:"quiz_result_id,notnull"`
	QuestionID   int64  `bun:"question_id,notnull"`
	IsCorrect    bool   `bun:"is_correct,notnull"`
	QuestionText string `bun:"question_text,scanonly"`
	Points       int    `bun:"points,scanonly"`
}

type selectedOptionRow struct {
	bun.BaseModel `bun:"table:selected_options,alias:so"`

	ID               int64 `bun:"id,pk,autoincrement"`
	QuestionResultID int64 `bun:"question_result_id,notnull"`
	OptionID         int64 `bun:"option_id,notnull"`
}

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Admin:        r.IsAdmin,
	}
}

func (r quizRow) toDomain() domain.Quiz {
	return domain.Quiz{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		CreatorID:        r.CreatorID,
		CreatorName:      r.CreatorName,
		TimeLimitMinutes: r.TimeLimit,
		CreatedAt:        r.CreatedAt,
	}
}

func (r questionRow) toDomain() domain.Question {
	return domain.Question{ID: r.ID, QuizID: r.QuizID, Text: r.Text, Points: r.Points}
}

func (r optionRow) toDomain() domain.Option {
	return domain.Option{ID: r.ID, QuestionID: r.QuestionID, Text: r.Text, Correct: r.IsCorrect}
}

func (r quizResultRow) toDomain() domain.QuizResult {
	return domain.QuizResult{
		ID:              r.ID,
		UserID:          r.UserID,
		Username:        r.Username,
		QuizID:          r.QuizID,
		QuizTitle:       r.QuizTitle,
		Score:           r.Score,
		MaxScore:        r.MaxScore,
		CompletedAt:     r.CompletedAt,
		DurationSeconds: r.DurationSeconds,
	}
}
