package animation

import (
	"errors"
	"time"
)

type Loop uint8

const (
	// LoopDisabled stops the animation at Duration.
	LoopDisabled Loop = iota
	// LoopSwitchDirection plays forward and backward in turns.
	LoopSwitchDirection
	// LoopKeepDirection restarts from the beginning.
	LoopKeepDirection
)

type Direction uint8

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Animator applies progress in [0, 1] to whatever it animates.
type Animator func(progress float64) error

// Animation is a time driven state machine. It is not safe for concurrent use.
type Animation struct {
	Duration  time.Duration
	Loop      Loop
	Direction Direction
	Easing    Easing
	Animators []Animator

	time     time.Duration
	finished bool
}

func New(duration time.Duration, easing Easing, animators ...Animator) *Animation {
	return &Animation{
		Duration:  duration,
		Easing:    easing,
		Animators: animators,
	}
}

func (a *Animation) Time() time.Duration { return a.time }

func (a *Animation) IsFinished() bool { return a.finished }

// CalcTime maps an absolute time to the animation time, the direction and
// whether a non looping animation is over.
func (a *Animation) CalcTime(t time.Duration) (time.Duration, Direction, bool) {
	if t < 0 {
		t = 0
	}
	if a.Duration <= 0 {
		return 0, a.Direction, a.Loop == LoopDisabled && t > 0
	}
	if t <= a.Duration {
		return t, a.Direction, false
	}

	switch a.Loop {
	case LoopSwitchDirection:
		dir := Direction((int64(a.Direction) + int64(t/a.Duration)) % 2)
		return t % a.Duration, dir, false
	case LoopKeepDirection:
		return t % a.Duration, a.Direction, false
	default:
		return a.Duration, a.Direction, true
	}
}

// SetTime moves the animation to t. Once finished, the animation stays at
// its last state.
func (a *Animation) SetTime(t time.Duration) {
	if a.finished {
		return
	}
	a.time, a.Direction, a.finished = a.CalcTime(t)
}

// Advance moves the animation forward by dt.
func (a *Animation) Advance(dt time.Duration) {
	a.SetTime(a.time + dt)
}

// Progress returns the eased progress, inverted when playing backward.
// A zero duration animation is always complete.
func (a *Animation) Progress() float64 {
	if a.Duration <= 0 {
		return 1.0
	}
	easing := a.Easing
	if easing == nil {
		easing = Linear
	}
	p := easing(clamp01(float64(a.time) / float64(a.Duration)))
	if a.Direction == Backward {
		p = 1 - p
	}
	return p
}

// Animate calls every animator with the current progress. All animators run
// even if some fail; failures are joined.
func (a *Animation) Animate() error {
	p := a.Progress()
	var errs []error
	for _, animator := range a.Animators {
		if err := animator(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
