package core

import (
	"errors"
	"net/http"

	"scoreboard/internal/ledger"
	"scoreboard/internal/model"
	"scoreboard/internal/store"
)

// Error codes
const (
	ErrNotFound          = "NOT_FOUND"
	ErrValidation        = "VALIDATION_FAILED"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrMatchEnded        = "MATCH_ENDED"
	ErrScoreZero         = "SCORE_ZERO"
	ErrNotPlaying        = "NOT_PLAYING"
	ErrConflict          = "VERSION_CONFLICT"
	ErrPartialUpdate     = "PARTIAL_UPDATE"
	ErrStoreUnavailable  = "STORE_UNAVAILABLE"
	ErrRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrInvalidContent    = "INVALID_CONTENT_TYPE"
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrInternalError     = "INTERNAL_ERROR"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrUserExists        = "USER_EXISTS"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type mapping struct {
	err    error
	code   string
	status int
}

// checked in order; the first sentinel found in the chain wins
var mappings = []mapping{
	{ledger.ErrPartial, ErrPartialUpdate, http.StatusInternalServerError},
	{model.ErrMatchEnded, ErrMatchEnded, http.StatusConflict},
	{model.ErrInvalidTransition, ErrInvalidTransition, http.StatusConflict},
	{model.ErrScoreZero, ErrScoreZero, http.StatusConflict},
	{model.ErrNotPlaying, ErrNotPlaying, http.StatusConflict},
	{model.ErrNotFound, ErrNotFound, http.StatusNotFound},
	{store.ErrMissing, ErrNotFound, http.StatusNotFound},
	{model.ErrValidation, ErrValidation, http.StatusBadRequest},
	{model.ErrUnauthenticated, ErrUnauthorized, http.StatusUnauthorized},
	{store.ErrConflict, ErrConflict, http.StatusConflict},
	{store.ErrInvalidPath, ErrInvalidRequest, http.StatusBadRequest},
	{store.ErrInvalidValue, ErrInvalidRequest, http.StatusBadRequest},
	{store.ErrUnavailable, ErrStoreUnavailable, http.StatusServiceUnavailable},
	{store.ErrClosed, ErrStoreUnavailable, http.StatusServiceUnavailable},
}

// Classify returns the code and HTTP status for an error
func Classify(err error) (string, int) {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return m.code, m.status
		}
	}
	return ErrInternalError, http.StatusInternalServerError
}

// Sentinel returns the error a code stands for, nil for codes without one
func Sentinel(code string) error {
	if code == ErrInvalidRequest {
		return model.ErrValidation
	}
	for _, m := range mappings {
		if m.code == code {
			return m.err
		}
	}
	return nil
}

// Status returns the HTTP status for a code
func Status(code string) int {
	for _, m := range mappings {
		if m.code == code {
			return m.status
		}
	}
	switch code {
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrInvalidContent:
		return http.StatusUnsupportedMediaType
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrUserExists:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
