package system

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/livemap/internal/core/ecs"
)

type recordingSystem struct {
	name  string
	log   *[]string
	err   error
	inits int
	dts   []time.Duration
}

func (s *recordingSystem) Name() string { return s.name }

func (s *recordingSystem) Init(*Context) error {
	s.inits++
	return nil
}

func (s *recordingSystem) Update(_ *Context, dt time.Duration) error {
	*s.log = append(*s.log, s.name)
	s.dts = append(s.dts, dt)
	return s.err
}

// tagSystem sets a dirty tag that the next system consumes in the same frame.
type tagSystem struct{ entity ecs.EntityID }

func (s *tagSystem) Name() string { return "tagger" }
func (s *tagSystem) Update(ctx *Context, _ time.Duration) error {
	return ecs.MarkDirty(ctx.Registry, s.entity)
}

type tagConsumer struct {
	entity ecs.EntityID
	seen   []bool
}

func (s *tagConsumer) Name() string { return "consumer" }
func (s *tagConsumer) Update(ctx *Context, _ time.Duration) error {
	s.seen = append(s.seen, ecs.IsDirty(ctx.Registry, s.entity))
	ecs.ClearDirty(ctx.Registry, s.entity)
	return nil
}

func TestSchedulerRunsSystemsInRegistrationOrder(t *testing.T) {
	var calls []string
	a := &recordingSystem{name: "a", log: &calls}
	b := &recordingSystem{name: "b", log: &calls}
	c := &recordingSystem{name: "c", log: &calls}

	s := NewScheduler(ecs.NewRegistry(), nil)
	for _, sys := range []System{b, a, c} {
		require.NoError(t, s.RegisterSystem(sys))
	}

	require.NoError(t, s.Update(16*time.Millisecond))
	require.NoError(t, s.Update(17*time.Millisecond))

	assert.Equal(t, []string{"b", "a", "c", "b", "a", "c"}, calls)
	assert.Equal(t, []string{"b", "a", "c"}, s.ExecutionOrder())
	assert.Equal(t, 1, a.inits, "init runs once")
	assert.Equal(t, []time.Duration{16 * time.Millisecond, 17 * time.Millisecond}, a.dts)
	assert.Equal(t, uint64(2), s.Context().Frame)
	assert.Equal(t, 33*time.Millisecond, s.Context().TotalTime)

	m, ok := s.Metrics("a")
	require.True(t, ok)
	assert.Equal(t, uint64(2), m.ExecutionCount)
}

func TestSchedulerRejectsDuplicateNames(t *testing.T) {
	var calls []string
	s := NewScheduler(ecs.NewRegistry(), nil)
	require.NoError(t, s.RegisterSystem(&recordingSystem{name: "a", log: &calls}))
	assert.ErrorIs(t, s.RegisterSystem(&recordingSystem{name: "a", log: &calls}), ErrSystemAlreadyRegistered)
	assert.ErrorIs(t, s.RegisterSystem(nil), ErrInvalidSystem)
}

func TestSchedulerErrorAbortsRemainingSystems(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	s := NewScheduler(ecs.NewRegistry(), nil)
	require.NoError(t, s.RegisterSystem(&recordingSystem{name: "a", log: &calls}))
	require.NoError(t, s.RegisterSystem(&recordingSystem{name: "b", log: &calls, err: boom}))
	require.NoError(t, s.RegisterSystem(&recordingSystem{name: "c", log: &calls}))

	laterRan := false
	s.Context().RunLater(func(*Context) error {
		laterRan = true
		return nil
	})

	err := s.Update(time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var ferr *FrameError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "b", ferr.System)
	assert.Equal(t, uint64(1), ferr.Frame)
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.False(t, laterRan, "deferred actions wait for a successful frame")
	assert.Equal(t, 1, s.PendingLater())

	m, _ := s.Metrics("b")
	assert.Equal(t, uint64(1), m.ErrorCount)
}

func TestTagsVisibleToLaterSystemsInSameFrame(t *testing.T) {
	r := ecs.NewRegistry()
	e := r.CreateEntity("grid")
	s := NewScheduler(r, nil)
	consumer := &tagConsumer{entity: e}
	require.NoError(t, s.RegisterSystem(&tagSystem{entity: e}))
	require.NoError(t, s.RegisterSystem(consumer))

	require.NoError(t, s.Update(time.Millisecond))
	assert.Equal(t, []bool{true}, consumer.seen)
	assert.False(t, ecs.IsDirty(r, e))
}

func TestRunLaterFromBackgroundGoroutine(t *testing.T) {
	r := ecs.NewRegistry()
	e := r.CreateEntity("fragment")
	s := NewScheduler(r, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Context().RunLater(func(ctx *Context) error {
			return ecs.MarkDirty(ctx.Registry, e)
		})
	}()
	wg.Wait()

	assert.False(t, ecs.IsDirty(r, e))
	require.NoError(t, s.Update(time.Millisecond))
	assert.True(t, ecs.IsDirty(r, e))
}

func TestSchedulerFlushesDestroyQueueAtFrameEnd(t *testing.T) {
	r := ecs.NewRegistry()
	e := r.CreateEntity("obsolete")
	r.MarkForDestruction(e)

	s := NewScheduler(r, nil)
	require.NoError(t, s.Update(time.Millisecond))
	assert.False(t, r.Alive(e))
}

func TestSlowestSystem(t *testing.T) {
	var calls []string
	tick := time.Unix(0, 0)
	// every call to now advances the clock by one millisecond
	clock := func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	s := NewScheduler(ecs.NewRegistry(), nil, WithClock(clock))
	require.NoError(t, s.RegisterSystem(&recordingSystem{name: "a", log: &calls}))
	require.NoError(t, s.Update(time.Millisecond))

	name, took := s.SlowestSystem()
	assert.Equal(t, "a", name)
	assert.Equal(t, time.Millisecond, took)
}
