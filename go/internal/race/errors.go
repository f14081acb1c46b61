package race

import (
	"errors"
	"fmt"
)

// ErrRaceNotFound is returned when a race id does not resolve to a stored race
var ErrRaceNotFound = errors.New("race not found")

// ErrParticipantNotFound is returned when a participant id does not resolve to a stored participant
var ErrParticipantNotFound = errors.New("participant not found")

// ValidationError reports a request field that violates a store invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err means the referenced race or participant does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRaceNotFound) || errors.Is(err, ErrParticipantNotFound)
}
