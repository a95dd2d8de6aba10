package domain

import "time"

// Option is one selectable answer of a question.
type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
}

// Question models a multiple-choice question. A question with more than one
// correct option is answered as a multi-select.
type Question struct {
	ID      int64    `json:"id"`
	QuizID  int64    `json:"quizId"`
	Text    string   `json:"text"`
	Points  int      `json:"points"`
	Options []Option `json:"options"`
}

// Quiz is an ordered collection of questions with an optional time limit.
type Quiz struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	CreatorID        int64      `json:"creatorId"`
	CreatorName      string     `json:"creatorName,omitempty"` // read-only, joined from users
	TimeLimitMinutes int        `json:"timeLimitMinutes"`      // 0 means unlimited
	CreatedAt        time.Time  `json:"createdAt"`
	Questions        []Question `json:"questions,omitempty"`
}

// QuestionResult is the graded outcome of one question within an attempt.
type QuestionResult struct {
	ID                int64   `json:"id"`
	QuizResultID      int64   `json:"quizResultId"`
	QuestionID        int64   `json:"questionId"`
	QuestionText      string  `json:"questionText"`
	Correct           bool    `json:"correct"`
	SelectedOptionIDs []int64 `json:"selectedOptionIds"`
	Points            int     `json:"points"`
}

// QuizResult is one completed attempt.
type QuizResult struct {
	ID              int64            `json:"id"`
	UserID          int64            `json:"userId"`
	Username        string           `json:"username,omitempty"` // read-only, leaderboard rows
	QuizID          int64            `json:"quizId"`
	QuizTitle       string           `json:"quizTitle"`
	Score           int              `json:"score"`
	MaxScore        int              `json:"maxScore"`
	CompletedAt     time.Time        `json:"completedAt"`
	DurationSeconds int64            `json:"durationSeconds"`
	QuestionResults []QuestionResult `json:"questionResults,omitempty"`
}

// User is an account able to author and take quizzes.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Admin        bool   `json:"admin"`
}

// UserStats aggregates a user's completed attempts.
type UserStats struct {
	UserID            int64   `json:"userId"`
	Attempts          int     `json:"attempts"`
	AveragePercentage float64 `json:"averagePercentage"`
	BestPercentage    float64 `json:"bestPercentage"`
}

// CorrectOptionIDs returns the ids of the options flagged correct, in option order.
func (q Question) CorrectOptionIDs() []int64 {
	ids := make([]int64, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// MultiSelect reports whether more than one option is correct.
func (q Question) MultiSelect() bool {
	return len(q.CorrectOptionIDs()) > 1
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID int64) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// MaxScore is the sum of the points of all questions.
func (q Quiz) MaxScore() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// TimeLimit converts the minute limit to a duration; zero means unlimited.
func (q Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMinutes) * time.Minute
}

// WithID returns a copy of the option carrying the given identity.
func (o Option) WithID(id, questionID int64) Option {
	o.ID = id
	o.QuestionID = questionID
	return o
}

// WithID returns a copy of the question carrying the given identity. Options are
// copied and re-parented; their own ids are left untouched.
func (q Question) WithID(id, quizID int64) Question {
	q.ID = id
	q.QuizID = quizID
	options := make([]Option, len(q.Options))
	for i, opt := range q.Options {
		opt.QuestionID = id
		options[i] = opt
	}
	q.Options = options
	return q
}

// WithID returns a copy of the quiz carrying the given identity, with every
// question re-parented onto it.
func (q Quiz) WithID(id int64) Quiz {
	q.ID = id
	questions := make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		questions[i] = question.WithID(question.ID, id)
	}
	q.Questions = questions
	return q
}

// WithID returns a copy of the question result carrying the given identity.
func (r QuestionResult) WithID(id, quizResultID int64) QuestionResult {
	r.ID = id
	r.QuizResultID = quizResultID
	r.SelectedOptionIDs = append([]int64(nil), r.SelectedOptionIDs...)
	return r
}

// WithID returns a copy of the result carrying the given identity, with every
// question result re-parented onto it.
func (r QuizResult) WithID(id int64) QuizResult {
	r.ID = id
	results := make([]QuestionResult, len(r.QuestionResults))
	for i, qr := range r.QuestionResults {
		results[i] = qr.WithID(qr.ID, id)
	}
	r.QuestionResults = results
	return r
}

// Percentage is score/maxScore*100, or 0 when the result has no points at stake.
func (r QuizResult) Percentage() float64 {
	if r.MaxScore == 0 {
		return 0
	}
	return float64(r.Score) / float64(r.MaxScore) * 100
}
