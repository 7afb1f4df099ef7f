package core

import (
	"errors"
	"fmt"
)

// ErrInvalidState is matched by every InvalidStateError.
var ErrInvalidState = errors.New("invalid simulation state")

// InvalidStateError reports the first invariant a State violates. It means
// the caller handed Step a state no sequence of steps could have produced.
type InvalidStateError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid simulation state: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidState) match.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

func invalid(field string, value any, reason string) error {
	return &InvalidStateError{Field: field, Value: value, Reason: reason}
}
