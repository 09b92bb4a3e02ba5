package system

import (
	"errors"
	"fmt"
	"time"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/observability/log"
)

const runLaterName = "run-later"

type entry struct {
	system      System
	initialized bool
	metrics     Metrics
}

// Scheduler runs the registered systems once per frame in registration order.
type Scheduler struct {
	ctx     *Context
	systems []*entry
	names   map[string]int
	now     func() time.Time

	lastUpdateTime time.Duration
}

type Option func(*Scheduler)

// WithClock replaces time.Now for metrics.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(registry *ecs.Registry, logger log.Log, opts ...Option) *Scheduler {
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Scheduler{
		ctx: &Context{
			Registry: registry,
			Logger:   logger,
		},
		names: make(map[string]int),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Context() *Context { return s.ctx }

// RegisterSystem appends sys to the execution order.
func (s *Scheduler) RegisterSystem(sys System) error {
	if sys == nil || sys.Name() == "" {
		return ErrInvalidSystem
	}
	if _, ok := s.names[sys.Name()]; ok {
		return fmt.Errorf("%s: %w", sys.Name(), ErrSystemAlreadyRegistered)
	}
	s.names[sys.Name()] = len(s.systems)
	s.systems = append(s.systems, &entry{system: sys})
	return nil
}

// Update runs one frame. The first failing system aborts the rest of the
// frame and its error is returned as a *FrameError. Deferred actions and the
// destroy queue are processed only when every system succeeded.
func (s *Scheduler) Update(dt time.Duration) error {
	s.ctx.Frame++
	s.ctx.TotalTime += dt
	frameStart := s.now()
	defer func() { s.lastUpdateTime = s.now().Sub(frameStart) }()

	for _, e := range s.systems {
		if err := s.run(e, dt); err != nil {
			ferr := &FrameError{Frame: s.ctx.Frame, System: e.system.Name(), Cause: err}
			s.ctx.Logger.Error("frame aborted",
				log.Uint64("frame", s.ctx.Frame),
				log.String("system", e.system.Name()),
				log.Error(err),
			)
			return ferr
		}
	}

	if err := s.runLater(); err != nil {
		return &FrameError{Frame: s.ctx.Frame, System: runLaterName, Cause: err}
	}
	s.ctx.Registry.FlushDestroyQueue()
	return nil
}

func (s *Scheduler) run(e *entry, dt time.Duration) error {
	if !e.initialized {
		if init, ok := e.system.(Initializer); ok {
			if err := init.Init(s.ctx); err != nil {
				return fmt.Errorf("init: %w", err)
			}
		}
		e.initialized = true
	}

	start := s.now()
	err := e.system.Update(s.ctx, dt)
	e.metrics.record(s.now().Sub(start), err)
	return err
}

func (s *Scheduler) runLater() error {
	var errs []error
	for _, fn := range s.ctx.later.drain() {
		if err := fn(s.ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PendingLater returns the number of deferred actions waiting for a frame.
func (s *Scheduler) PendingLater() int {
	return s.ctx.later.len()
}

func (s *Scheduler) ExecutionOrder() []string {
	names := make([]string, len(s.systems))
	for i, e := range s.systems {
		names[i] = e.system.Name()
	}
	return names
}

func (s *Scheduler) Metrics(name string) (Metrics, bool) {
	idx, ok := s.names[name]
	if !ok {
		return Metrics{}, false
	}
	return s.systems[idx].metrics, true
}

// SlowestSystem returns the system with the longest last execution.
func (s *Scheduler) SlowestSystem() (string, time.Duration) {
	var (
		name    string
		slowest time.Duration
	)
	for _, e := range s.systems {
		if e.metrics.LastExecutionTime > slowest {
			name, slowest = e.system.Name(), e.metrics.LastExecutionTime
		}
	}
	return name, slowest
}

// LastUpdateTime is the wall time spent in the previous Update.
func (s *Scheduler) LastUpdateTime() time.Duration {
	return s.lastUpdateTime
}
