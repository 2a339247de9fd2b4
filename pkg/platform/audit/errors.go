package audit

import (
	"errors"
	"fmt"
)

// ErrPersistence matches every PersistenceError via errors.Is.
var ErrPersistence = errors.New("audit persistence failed")

// PersistenceError reports that an event could not be made durable. The
// triggering operation decides whether to roll back or proceed.
type PersistenceError struct {
	Action string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit persistence failed for %q: %v", e.Action, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPersistence) match without losing the cause.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
