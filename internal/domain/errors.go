package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation groups every input error that the caller can correct.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence groups storage failures.
	ErrPersistence = errors.New("persistence failed")
	// ErrSession groups session state machine violations.
	ErrSession = errors.New("session error")
)

var (
	ErrEmptyQuiz          = fmt.Errorf("%w: quiz has no questions", ErrValidation)
	ErrEmptyOptionSet     = fmt.Errorf("%w: question needs at least two options", ErrValidation)
	ErrNoCorrectOption    = fmt.Errorf("%w: question has no correct option", ErrValidation)
	ErrDuplicateUsername  = fmt.Errorf("%w: username or email already taken", ErrValidation)
	ErrInvalidEmailFormat = fmt.Errorf("%w: invalid email address", ErrValidation)
	ErrInvalidPoints      = fmt.Errorf("%w: points must be at least 1", ErrValidation)
	ErrInvalidTimeLimit   = fmt.Errorf("%w: time limit cannot be negative", ErrValidation)
	ErrBlankText          = fmt.Errorf("%w: text is required", ErrValidation)
	ErrWeakPassword       = fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
)

var (
	// ErrNoRowsAffected aborts a transactional edit that matched nothing; the store reports it as not found.
	ErrNoRowsAffected = fmt.Errorf("%w: no rows affected", ErrPersistence)
	// ErrMissingGeneratedID aborts the surrounding transaction.
	ErrMissingGeneratedID = fmt.Errorf("%w: insert returned no generated id", ErrPersistence)
	ErrConnectionFailure  = fmt.Errorf("%w: connection failure", ErrPersistence)
	ErrTransactionFailure = fmt.Errorf("%w: transaction rolled back", ErrPersistence)
)

var (
	// ErrDoubleFinalize is raised internally when a second finalize is attempted; it never reaches users.
	ErrDoubleFinalize    = fmt.Errorf("%w: session already finalized", ErrSession)
	ErrInvalidTransition = fmt.Errorf("%w: operation not allowed in current state", ErrSession)
	ErrSessionCancelled  = fmt.Errorf("%w: session cancelled", ErrSession)
)

var (
	// ErrSessionNotFound is returned when a quiz session is not registered.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question id or index is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option id is invalid.
	ErrOptionNotFound = errors.New("option not found")
	ErrResultNotFound = errors.New("quiz result not found")
	ErrUserNotFound   = errors.New("user not found")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotAdmin           = errors.New("administrator rights required")
	ErrResetTokenInvalid  = errors.New("password reset token invalid or expired")
)
