package multitasking

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MicroThread drives a Task in slices of at most quantum suspension points.
// A thread may be resumed by one goroutine at a time; Completed and Err are
// safe to read from any goroutine.
type MicroThread struct {
	task Task

	mu      sync.Mutex
	quantum int
	pending int

	completed atomic.Bool
	err       error
	steps     atomic.Uint64
}

// NewMicroThread wraps task. A non-positive quantum is treated as 1.
func NewMicroThread(task Task, quantum int) *MicroThread {
	if quantum < 1 {
		quantum = 1
	}
	t := &MicroThread{task: task, quantum: quantum, pending: quantum}
	if !task.Alive() {
		t.completed.Store(true)
	}
	return t
}

// SetQuantum changes the slice size starting with the next Resume. A slice
// already in progress keeps the quantum it started with.
func (t *MicroThread) SetQuantum(q int) error {
	if q < 1 {
		return fmt.Errorf("%d: %w", q, ErrInvalidQuantum)
	}
	t.mu.Lock()
	t.pending = q
	t.mu.Unlock()
	return nil
}

// Quantum returns the quantum applied to the current or last slice.
func (t *MicroThread) Quantum() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quantum
}

// Resume runs one slice. The returned error is the task failure that
// completed the thread, or ErrThreadCompleted for a finished thread. A
// panicking task completes the thread with ErrTaskPanicked.
func (t *MicroThread) Resume() (err error) {
	if t.completed.Load() {
		return ErrThreadCompleted
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			t.err = err
			t.completed.Store(true)
		}
	}()

	t.mu.Lock()
	t.quantum = t.pending
	quantum := t.quantum
	t.mu.Unlock()

	for i := 0; i < quantum; i++ {
		err := t.task.Resume()
		t.steps.Add(1)
		if err != nil {
			t.err = err
			t.completed.Store(true)
			return err
		}
		if !t.task.Alive() {
			t.completed.Store(true)
			return nil
		}
	}
	return nil
}

// Completed reports whether the task finished, normally or with an error.
func (t *MicroThread) Completed() bool { return t.completed.Load() }

// Err is the task failure. Valid once Completed returns true.
func (t *MicroThread) Err() error {
	if !t.completed.Load() {
		return nil
	}
	return t.err
}

// Steps is the number of suspension points crossed so far.
func (t *MicroThread) Steps() uint64 { return t.steps.Load() }

// Task returns the wrapped task, to read its result after completion.
func (t *MicroThread) Task() Task { return t.task }
