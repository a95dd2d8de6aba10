package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quiz-session-service/internal/domain"
	"github.com/uptrace/bun"
)

// SaveQuizResult inserts the result, one row per question result and one link
// row per selected option, all in one transaction.
func (s *Store) SaveQuizResult(ctx context.Context, result domain.QuizResult) (domain.QuizResult, error) {
	var saved domain.QuizResult
	err := runInTx(ctx, s.db, "save quiz result", func(ctx context.Context, tx bun.Tx) error {
		completedAt := result.CompletedAt
		if completedAt.IsZero() {
			completedAt = s.now()
		}
		row := quizResultRow{
			UserID:          result.UserID,
			QuizID:          result.QuizID,
			Score:           result.Score,
			MaxScore:        result.MaxScore,
			DurationSeconds: result.DurationSeconds,
			CompletedAt:     completedAt.UTC(),
		}
		if _, err := tx.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert quiz result: %w", err)
		}
		if row.ID == 0 {
			return domain.ErrMissingGeneratedID
		}

		saved = result.WithID(row.ID)
		saved.CompletedAt = row.CompletedAt
		for i, qr := range saved.QuestionResults {
			qrRow := questionResultRow{
				QuizResultID: row.ID,
				QuestionID:   qr.QuestionID,
				IsCorrect:    qr.Correct,
			}
			if _, err := tx.NewInsert().Model(&qrRow).Returning("id").Exec(ctx); err != nil {
				return fmt.Errorf("insert question result: %w", err)
			}
			if qrRow.ID == 0 {
				return domain.ErrMissingGeneratedID
			}
			saved.QuestionResults[i] = qr.WithID(qrRow.ID, row.ID)

			for _, optionID := range qr.SelectedOptionIDs {
				link := selectedOptionRow{QuestionResultID: qrRow.ID, OptionID: optionID}
				if _, err := tx.NewInsert().Model(&link).Returning("id").Exec(ctx); err != nil {
					return fmt.Errorf("insert selected option: %w", err)
				}
				if link.ID == 0 {
					return domain.ErrMissingGeneratedID
				}
			}
		}
		return nil
	})
	if err != nil {
		return domain.QuizResult{}, err
	}
	return saved, nil
}

// GetQuizResultsByUser lists a user's results, most recent first.
func (s *Store) GetQuizResultsByUser(ctx context.Context, userID int64) ([]domain.QuizResult, error) {
	var rows []quizResultRow
	err := s.resultSelect(&rows).
		Where("qr.user_id = ?", userID).
		Order("qr.completed_at DESC", "qr.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, readErr("list results by user", err)
	}
	return resultsFromRows(rows), nil
}

// GetQuizResultsByQuiz is the leaderboard: highest score first, faster
// attempts first among equal scores.
func (s *Store) GetQuizResultsByQuiz(ctx context.Context, quizID int64) ([]domain.QuizResult, error) {
	var rows []quizResultRow
	err := s.resultSelect(&rows).
		ColumnExpr("ru.username AS username").
		Join("JOIN users AS ru ON ru.id = qr.user_id").
		Where("qr.quiz_id = ?", quizID).
		Order("qr.score DESC", "qr.duration_seconds ASC", "qr.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, readErr("list results by quiz", err)
	}
	return resultsFromRows(rows), nil
}

// GetQuizResultByID reconstructs a result with question results and selected
// option ids. A missing result yields (nil, nil).
func (s *Store) GetQuizResultByID(ctx context.Context, id int64) (*domain.QuizResult, error) {
	var row quizResultRow
	err := s.resultSelect(&row).Where("qr.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, readErr("get quiz result", err)
	}
	result := row.toDomain()

	var qrRows []questionResultRow
	err = s.db.NewSelect().
		Model(&qrRows).
		ColumnExpr("qres.*").
		ColumnExpr("COALESCE(qs.text, '') AS question_text").
		ColumnExpr("COALESCE(qs.points, 0) AS points").
		Join("LEFT JOIN questions AS qs ON qs.id = qres.question_id").
		Where("qres.quiz_result_id = ?", id).
		Order("qres.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, readErr("load question results", err)
	}

	selected := map[int64][]int64{}
	if len(qrRows) > 0 {
		ids := make([]int64, len(qrRows))
		for i, r := range qrRows {
			ids[i] = r.ID
		}
		var links []selectedOptionRow
		err = s.db.NewSelect().
			Model(&links).
			Where("question_result_id IN (?)", bun.In(ids)).
			Order("id ASC").
			Scan(ctx)
		if err != nil {
			return nil, readErr("load selected options", err)
		}
		for _, link := range links {
			selected[link.QuestionResultID] = append(selected[link.QuestionResultID], link.OptionID)
		}
	}

	result.QuestionResults = make([]domain.QuestionResult, 0, len(qrRows))
	for _, r := range qrRows {
		optionIDs := selected[r.ID]
		if optionIDs == nil {
			optionIDs = []int64{}
		}
		result.QuestionResults = append(result.QuestionResults, domain.QuestionResult{
			ID:                r.ID,
			QuizResultID:      r.QuizResultID,
			QuestionID:        r.QuestionID,
			QuestionText:      r.QuestionText,
			Correct:           r.IsCorrect,
			SelectedOptionIDs: optionIDs,
			Points:            r.Points,
		})
	}
	return &result, nil
}

// DeleteQuizResult removes a result; question results and selected options cascade.
func (s *Store) DeleteQuizResult(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.NewDelete().Model((*quizResultRow)(nil)).Where("id = ?", id).Exec(ctx)
	return affected("delete quiz result", res, err)
}

// GetUserStats summarizes a user's attempts.
func (s *Store) GetUserStats(ctx context.Context, userID int64) (domain.UserStats, error) {
	results, err := s.GetQuizResultsByUser(ctx, userID)
	if err != nil {
		return domain.UserStats{}, err
	}
	stats := domain.UserStats{UserID: userID, Attempts: len(results)}
	if len(results) == 0 {
		return stats, nil
	}
	var total float64
	for _, r := range results {
		pct := r.Percentage()
		total += pct
		if pct > stats.BestPercentage {
			stats.BestPercentage = pct
		}
	}
	stats.AveragePercentage = total / float64(len(results))
	return stats, nil
}

func (s *Store) resultSelect(model interface{}) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(model).
		ColumnExpr("qr.*").
		ColumnExpr("q.title AS quiz_title").
		Join("JOIN quizzes AS q ON q.id = qr.quiz_id")
}

func resultsFromRows(rows []quizResultRow) []domain.QuizResult {
	results := make([]domain.QuizResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.toDomain())
	}
	return results
}
