package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when an operation needs a user identity and none was supplied.
	ErrNoSession = errors.New("no user session")
	// ErrActivityNotFound is returned when the activity to delete does not exist for the user.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrChallengeNotFound is returned when a challenge cannot be located.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeInactive is returned when joining a challenge that is not active.
	ErrChallengeInactive = errors.New("challenge is not active")
	// ErrNotJoined is returned when completing a challenge the user never joined.
	ErrNotJoined = errors.New("challenge not joined")
	// ErrChallengeIncomplete is returned when completion is requested before the target is met.
	ErrChallengeIncomplete = errors.New("challenge target not reached")
	// ErrActivityIDTaken is returned when a supplied activity id belongs to another user.
	ErrActivityIDTaken = errors.New("activity id belongs to another user")
	// ErrChallengeExists is returned when creating a challenge under an id that is already stored.
	ErrChallengeExists = errors.New("challenge already exists")
	// ErrDailyLogExists is returned when creating a second log for the same date.
	ErrDailyLogExists = errors.New("daily log already exists for date")
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// TransportError wraps a failed store call. It is propagated unmodified and never retried here.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func transport(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// ConsistencyViolation reports a broken uniqueness invariant observed on read.
// It is logged and counted, never repaired automatically.
type ConsistencyViolation struct {
	Collection string
	Key        string
	Count      int
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("consistency violation in %s: %d records for key %s", e.Collection, e.Count, e.Key)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
