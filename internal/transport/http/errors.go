package http

import (
	"errors"
	"net/http"

	"quiz-session-service/internal/domain"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var notFound = []error{
	domain.ErrQuizNotFound,
	domain.ErrQuestionNotFound,
	domain.ErrOptionNotFound,
	domain.ErrResultNotFound,
	domain.ErrUserNotFound,
	domain.ErrSessionNotFound,
}

// classify maps an error to an HTTP status and a stable client-facing code.
func classify(err error) (int, string) {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound, "not_found"
		}
	}
	switch {
	case errors.Is(err, domain.ErrDuplicateUsername):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, domain.ErrNotAdmin):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrResetTokenInvalid):
		return http.StatusBadRequest, "invalid_token"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrSession):
		return http.StatusConflict, "session"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, "persistence"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func newErrorPayload(err error) errorPayload {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// storage details stay in the logs
		msg = http.StatusText(status)
	}
	return errorPayload{Code: code, Message: msg}
}
