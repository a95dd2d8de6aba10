package session

import (
	"fmt"

	"quiz-session-service/internal/domain"
)

// State is the lifecycle position of one quiz attempt.
type State int

const (
	NotStarted State = iota
	InProgress
	TimeExpired
	Submitted
	Cancelled
)

var stateNames = map[State]string{
	NotStarted:  "not_started",
	InProgress:  "in_progress",
	TimeExpired: "time_expired",
	Submitted:   "submitted",
	Cancelled:   "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == TimeExpired || s == Submitted || s == Cancelled
}

// Direction moves the current question index.
type Direction int

const (
	Previous Direction = -1
	Next     Direction = 1
)

// ParseDirection accepts "next"/"prev" as sent by clients.
func ParseDirection(raw string) (Direction, error) {
	switch raw {
	case "next", "forward":
		return Next, nil
	case "prev", "previous", "back":
		return Previous, nil
	}
	return 0, fmt.Errorf("%w: unknown direction %q", domain.ErrValidation, raw)
}

// TimeWarning escalates as a time-limited attempt runs out.
type TimeWarning string

const (
	WarningNone     TimeWarning = ""
	WarningLow      TimeWarning = "warning"
	WarningCritical TimeWarning = "critical"
)

// OptionView is an option as shown to a respondent, without its correctness flag.
type OptionView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the current question as shown to a respondent.
type QuestionView struct {
	ID          int64        `json:"id"`
	Text        string       `json:"text"`
	Points      int          `json:"points"`
	MultiSelect bool         `json:"multiSelect"`
	Options     []OptionView `json:"options"`
}

// NewQuestionView strips the answer key from a question.
func NewQuestionView(q domain.Question) QuestionView {
	view := QuestionView{
		ID:          q.ID,
		Text:        q.Text,
		Points:      q.Points,
		MultiSelect: q.MultiSelect(),
		Options:     make([]OptionView, 0, len(q.Options)),
	}
	for _, opt := range q.Options {
		view.Options = append(view.Options, OptionView{ID: opt.ID, Text: opt.Text})
	}
	return view
}

// Snapshot is what the presentation layer renders for the current question.
type Snapshot struct {
	SessionID        string       `json:"sessionId"`
	QuizID           int64        `json:"quizId"`
	QuizTitle        string       `json:"quizTitle"`
	State            State        `json:"state"`
	Index            int          `json:"index"`
	Total            int          `json:"total"`
	Question         QuestionView `json:"question"`
	Selected         []int64      `json:"selected"`
	Answered         int          `json:"answered"`
	TimeLimited      bool         `json:"timeLimited"`
	ElapsedSeconds   int64        `json:"elapsedSeconds"`
	RemainingSeconds int64        `json:"remainingSeconds"`
	Warning          TimeWarning  `json:"warning,omitempty"`
}

// Completion is the terminal outcome of a finalized attempt.
type Completion struct {
	Reason     State             `json:"reason"`
	Result     domain.QuizResult `json:"result"`
	Percentage float64           `json:"percentage"`
	Unanswered int               `json:"unanswered"`
}

type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventTick      EventType = "tick"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Event is pushed to the presentation layer whenever session state changes.
type Event struct {
	Type       EventType
	Snapshot   Snapshot
	Completion *Completion
	Err        error
}

// Registration identifies a live attempt, possibly hosted by another instance.
type Registration struct {
	SessionID string `json:"sessionId"`
	UserID    int64  `json:"userId"`
	QuizID    int64  `json:"quizId"`
}
