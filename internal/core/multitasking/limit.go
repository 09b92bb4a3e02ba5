package multitasking

import "time"

// ExecutionLimit bounds the work of one Execute batch. Reset is called at
// the start of a batch, Allowed before every resumption and Switched after
// every resumption.
type ExecutionLimit interface {
	Reset()
	Allowed() bool
	Switched()
}

type unlimited struct{}

// Unlimited lets a batch resume every thread.
func Unlimited() ExecutionLimit { return unlimited{} }

func (unlimited) Reset()        {}
func (unlimited) Allowed() bool { return true }
func (unlimited) Switched()     {}

// StepLimit allows at most n resumptions per batch.
type StepLimit struct {
	n    int
	used int
}

func NewStepLimit(n int) *StepLimit {
	return &StepLimit{n: n}
}

func (l *StepLimit) Reset()        { l.used = 0 }
func (l *StepLimit) Allowed() bool { return l.used < l.n }
func (l *StepLimit) Switched()     { l.used++ }

// TimeLimit allows resumptions while the batch is within budget.
type TimeLimit struct {
	budget time.Duration
	now    func() time.Time
	start  time.Time
}

// NewTimeLimit uses time.Now when now is nil.
func NewTimeLimit(budget time.Duration, now func() time.Time) *TimeLimit {
	if now == nil {
		now = time.Now
	}
	return &TimeLimit{budget: budget, now: now, start: now()}
}

func (l *TimeLimit) Reset()        { l.start = l.now() }
func (l *TimeLimit) Allowed() bool { return l.now().Sub(l.start) < l.budget }
func (l *TimeLimit) Switched()     {}
