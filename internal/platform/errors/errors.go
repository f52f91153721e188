package apperrors

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrNoActiveSession     = errors.New("no active session")
	ErrActiveSessionExists = errors.New("active session already exists")

	// ErrPersistence is the only error the tracking path surfaces to callers.
	ErrPersistence = errors.New("persistence failure")

	ErrInferenceUnavailable = errors.New("inference unavailable")
	ErrInferenceTimeout     = errors.New("inference timeout")
	ErrMalformedResponse    = errors.New("malformed inference response")
	ErrRateLimited          = errors.New("inference rate limited")
)
