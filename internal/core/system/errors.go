package system

import (
	"errors"
	"fmt"
)

var (
	ErrSystemAlreadyRegistered = errors.New("system already registered")
	ErrInvalidSystem           = errors.New("invalid system")
)

// FrameError is returned by Scheduler.Update when a system or a deferred
// action fails. The remaining systems of that frame did not run.
type FrameError struct {
	Frame  uint64
	System string
	Cause  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: system %q: %v", e.Frame, e.System, e.Cause)
}

func (e *FrameError) Unwrap() error {
	return e.Cause
}
