package watchdog

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyArmed  = errors.New("watchdog is already armed")
	ErrCaptureSource = errors.New("capture source failed")
	ErrNoRules       = errors.New("watchdog has no rules")
)

// CaptureSourceError ends an armed session after the packet source failed.
type CaptureSourceError struct {
	Err error
}

func (e *CaptureSourceError) Error() string {
	return fmt.Sprintf("capture source failed: %v", e.Err)
}

func (e *CaptureSourceError) Unwrap() error { return e.Err }

func (e *CaptureSourceError) Is(target error) bool { return target == ErrCaptureSource }
