package animation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/system"
)

func TestProgressStaysInBounds(t *testing.T) {
	easings := map[string]Easing{"linear": Linear, "in": EaseIn, "out": EaseOut, "in_out": EaseInOut}
	loops := []Loop{LoopDisabled, LoopSwitchDirection, LoopKeepDirection}

	for name, easing := range easings {
		for _, loop := range loops {
			a := &Animation{Duration: 300 * time.Millisecond, Loop: loop, Easing: easing}
			for step := 0; step < 100; step++ {
				a.Advance(17 * time.Millisecond)
				p := a.Progress()
				assert.GreaterOrEqual(t, p, 0.0, name)
				assert.LessOrEqual(t, p, 1.0, name)
			}
		}
	}
}

func TestZeroDurationIsComplete(t *testing.T) {
	a := &Animation{Direction: Backward}
	assert.Equal(t, 1.0, a.Progress())
	a.Advance(time.Second)
	assert.Equal(t, 1.0, a.Progress())
	assert.True(t, a.IsFinished())

	looping := &Animation{Loop: LoopKeepDirection}
	looping.Advance(time.Second)
	assert.False(t, looping.IsFinished())
	assert.Equal(t, 1.0, looping.Progress())
}

func TestLoopDisabledFinishes(t *testing.T) {
	a := &Animation{Duration: time.Second}
	a.SetTime(time.Second)
	assert.False(t, a.IsFinished())
	assert.Equal(t, 1.0, a.Progress())

	a.SetTime(time.Second + time.Millisecond)
	assert.True(t, a.IsFinished())
	assert.Equal(t, time.Second, a.Time())

	a.SetTime(0)
	assert.Equal(t, time.Second, a.Time(), "finished animation is terminal")
}

func TestLoopSwitchDirection(t *testing.T) {
	a := &Animation{Duration: time.Second, Loop: LoopSwitchDirection}

	a.SetTime(1250 * time.Millisecond)
	assert.Equal(t, Backward, a.Direction)
	assert.Equal(t, 250*time.Millisecond, a.Time())
	assert.InDelta(t, 0.75, a.Progress(), 1e-9)

	// direction is computed from the current one: backward + 2 full turns
	a.SetTime(2500 * time.Millisecond)
	assert.Equal(t, Backward, a.Direction)
	assert.Equal(t, 500*time.Millisecond, a.Time())

	a.SetTime(1100 * time.Millisecond)
	assert.Equal(t, Forward, a.Direction)
	assert.False(t, a.IsFinished())
}

func TestLoopKeepDirection(t *testing.T) {
	a := &Animation{Duration: time.Second, Loop: LoopKeepDirection, Direction: Backward}
	a.SetTime(3400 * time.Millisecond)
	assert.Equal(t, Backward, a.Direction)
	assert.Equal(t, 400*time.Millisecond, a.Time())
	assert.InDelta(t, 0.6, a.Progress(), 1e-9)
}

func TestAnimateRunsAllAnimators(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	var got []float64
	a := New(time.Second, Linear,
		func(p float64) error { return first },
		func(p float64) error { got = append(got, p); return nil },
		func(p float64) error { return second },
	)
	a.SetTime(500 * time.Millisecond)

	err := a.Animate()
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, []float64{0.5}, got)
}

func TestSystemRemovesFinishedAnimations(t *testing.T) {
	r := ecs.NewRegistry()
	s := system.NewScheduler(r, nil)
	animations := NewSystem()
	require.NoError(t, s.RegisterSystem(animations))

	var zoom float64
	e := r.CreateEntity("camera")
	a := New(100*time.Millisecond, EaseOut, func(p float64) error {
		zoom = Lerp(2, 4, p)
		return nil
	})
	require.NoError(t, Start(r, e, a))
	finished := false
	c, _ := ecs.Get[Component](r, e)
	c.OnFinished = func(*system.Context, ecs.EntityID) { finished = true }

	require.NoError(t, s.Update(50*time.Millisecond))
	assert.InDelta(t, 3.5, zoom, 1e-9)
	assert.True(t, ecs.Has[Component](r, e))

	require.NoError(t, s.Update(50*time.Millisecond))
	assert.InDelta(t, 4.0, zoom, 1e-9)
	require.NoError(t, s.Update(50*time.Millisecond))
	assert.True(t, finished)
	assert.False(t, ecs.Has[Component](r, e))
}

func TestSystemLogsAnimatorFailures(t *testing.T) {
	r := ecs.NewRegistry()
	s := system.NewScheduler(r, nil)
	animations := NewSystem()
	require.NoError(t, s.RegisterSystem(animations))

	e := r.CreateEntity("broken")
	require.NoError(t, Start(r, e, New(time.Second, nil, func(float64) error { return errors.New("boom") })))

	require.NoError(t, s.Update(10*time.Millisecond))
	assert.Equal(t, uint64(1), animations.Failures())
	assert.True(t, ecs.Has[Component](r, e))
}
