package hotkey

import (
	"errors"
	"fmt"
)

var (
	ErrConflict = errors.New("hotkey combination already in use")
	ErrNotFound = errors.New("unknown hotkey identifier")
)

// ConflictError reports a combination already owned by another binding.
type ConflictError struct {
	Combination Combination
	Owner       string
	Requested   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s is already used by %q; change that hotkey first, then try again for %q",
		e.Combination, e.Owner, e.Requested)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError reports an identifier that was never bound.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown hotkey identifier %q", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
