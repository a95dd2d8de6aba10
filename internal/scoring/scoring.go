// Package scoring grades selections against a quiz's answer key. It performs
// no I/O and is deterministic for a given input.
package scoring

import (
	"sort"

	"quiz-session-service/internal/domain"
)

// EvaluateAnswer reports whether selected is exactly the set of correct option
// ids of the question. Duplicates in selected are ignored; an empty selection
// is correct only for a question without correct options.
func EvaluateAnswer(question domain.Question, selected []int64) bool {
	correct := make(map[int64]struct{})
	for _, id := range question.CorrectOptionIDs() {
		correct[id] = struct{}{}
	}

	chosen := make(map[int64]struct{}, len(selected))
	for _, id := range selected {
		if _, ok := correct[id]; !ok {
			return false
		}
		chosen[id] = struct{}{}
	}
	return len(chosen) == len(correct)
}

// ComputeResult grades every question of the quiz in order. Questions missing
// from answers count as an empty selection. The returned result carries the
// quiz identity and per-question detail; user, timing and ids are left to the
// caller.
func ComputeResult(quiz domain.Quiz, answers map[int64][]int64) domain.QuizResult {
	result := domain.QuizResult{
		QuizID:          quiz.ID,
		QuizTitle:       quiz.Title,
		QuestionResults: make([]domain.QuestionResult, 0, len(quiz.Questions)),
	}

	for _, question := range quiz.Questions {
		selected := normalize(answers[question.ID])
		correct := EvaluateAnswer(question, selected)
		if correct {
			result.Score += question.Points
		}
		result.MaxScore += question.Points

		result.QuestionResults = append(result.QuestionResults, domain.QuestionResult{
			QuestionID:        question.ID,
			QuestionText:      question.Text,
			Correct:           correct,
			SelectedOptionIDs: selected,
			Points:            question.Points,
		})
	}
	return result
}

// Percentage returns score as a share of maxScore, 0 when nothing was at stake.
func Percentage(result domain.QuizResult) float64 {
	return result.Percentage()
}

// normalize returns a sorted copy of ids without duplicates.
func normalize(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
