package multitasking

import "errors"

var (
	// ErrThreadCompleted is returned when a completed thread is resumed.
	// Seeing it means the caller kept a thread the executor already pruned.
	ErrThreadCompleted = errors.New("micro thread already completed")
	ErrInvalidQuantum  = errors.New("quantum must be positive")
	ErrExecutorClosed  = errors.New("executor closed")
	ErrTaskPanicked    = errors.New("micro task panicked")
)
