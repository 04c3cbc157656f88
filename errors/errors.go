package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrBusy indicates that a navigation request is already in flight
	// for the session and the new one was rejected
	ErrBusy = errors.New("navigation in progress")

	// ErrSessionClosed indicates that the session has been closed and
	// accepts no further operations
	ErrSessionClosed = errors.New("session closed")
)
