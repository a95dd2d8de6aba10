package domain

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@(.+)$`)

const minPasswordLength = 6

// ValidateQuiz checks the quiz header and every question. A quiz may be saved
// without questions; taking it is what requires at least one.
func ValidateQuiz(q Quiz) error {
	if err := ValidateQuizHeader(q); err != nil {
		return err
	}
	for _, question := range q.Questions {
		if err := ValidateQuestion(question); err != nil {
			return err
		}
	}
	return nil
}

// ValidateQuizHeader checks only the fields an update may change.
func ValidateQuizHeader(q Quiz) error {
	if strings.TrimSpace(q.Title) == "" {
		return ErrBlankText
	}
	if q.TimeLimitMinutes < 0 {
		return ErrInvalidTimeLimit
	}
	return nil
}

// ValidateQuestion checks text, points and option set of a question.
func ValidateQuestion(q Question) error {
	if err := ValidateQuestionHeader(q); err != nil {
		return err
	}
	if len(q.Options) < 2 {
		return ErrEmptyOptionSet
	}
	for _, opt := range q.Options {
		if err := ValidateOption(opt); err != nil {
			return err
		}
	}
	if len(q.CorrectOptionIDs()) == 0 {
		return ErrNoCorrectOption
	}
	return nil
}

func ValidateQuestionHeader(q Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrBlankText
	}
	if q.Points < 1 {
		return ErrInvalidPoints
	}
	return nil
}

func ValidateOption(o Option) error {
	if strings.TrimSpace(o.Text) == "" {
		return ErrBlankText
	}
	return nil
}

// ValidateEmail applies the loose address check used at registration.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmailFormat
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	return nil
}
