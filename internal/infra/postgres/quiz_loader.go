package postgres

import (
	"context"
	"fmt"
	"time"

	"quiz-session-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader reads a quiz hierarchy from Postgres in one round trip. It backs
// the quiz cache on the session start path.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

// Connect opens a pgx pool and verifies it answers.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConnectionFailure, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrConnectionFailure, err)
	}
	return pool, nil
}

const loadQuizSQL = `
SELECT q.id, q.title, q.description, q.creator_id, u.username, q.time_limit, q.created_at,
       qs.id, qs.text, qs.points,
       o.id, o.text, o.is_correct
FROM quizzes q
JOIN users u ON u.id = q.creator_id
LEFT JOIN questions qs ON qs.quiz_id = q.id
LEFT JOIN options o ON o.question_id = qs.id
WHERE q.id = $1
ORDER BY qs.id, o.id`

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	rows, err := l.pool.Query(ctx, loadQuizSQL, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz %d: %w", quizID, err)
	}
	defer rows.Close()

	var (
		quiz  domain.Quiz
		found bool
	)
	quiz.Questions = []domain.Question{}
	for rows.Next() {
		var (
			createdAt    time.Time
			questionID   *int64
			questionText *string
			points       *int
			optionID     *int64
			optionText   *string
			correct      *bool
		)
		err := rows.Scan(
			&quiz.ID, &quiz.Title, &quiz.Description, &quiz.CreatorID, &quiz.CreatorName, &quiz.TimeLimitMinutes, &createdAt,
			&questionID, &questionText, &points,
			&optionID, &optionText, &correct,
		)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("scan quiz %d: %w", quizID, err)
		}
		found = true
		quiz.CreatedAt = createdAt.UTC()
		if questionID == nil {
			continue
		}

		n := len(quiz.Questions)
		if n == 0 || quiz.Questions[n-1].ID != *questionID {
			quiz.Questions = append(quiz.Questions, domain.Question{
				ID:      *questionID,
				QuizID:  quiz.ID,
				Text:    *questionText,
				Points:  *points,
				Options: []domain.Option{},
			})
			n++
		}
		if optionID == nil {
			continue
		}
		q := &quiz.Questions[n-1]
		q.Options = append(q.Options, domain.Option{
			ID:         *optionID,
			QuestionID: q.ID,
			Text:       *optionText,
			Correct:    *correct,
		})
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz %d: %w", quizID, err)
	}
	if !found {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}
