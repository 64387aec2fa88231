package domain

import (
	"errors"
	"fmt"
)

var (
	// Caller errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("balance not found")

	// Validator errors
	ErrValidationFailed = errors.New("validation failed")

	// Commit authority errors
	ErrConflict    = errors.New("stale balance version")
	ErrRejected    = errors.New("transition rejected by commit authority")
	ErrUnavailable = errors.New("commit authority unavailable")
)

// ValidationError names the validator rule a transition failed.
type ValidationError struct {
	Command Command
	Rule    string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("%s: %s", ErrValidationFailed, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidationFailed, e.Command, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidationFailed) hold.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// IsRetryable reports whether the caller may re-fetch and resubmit.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}
