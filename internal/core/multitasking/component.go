package multitasking

import (
	"fmt"
	"slices"
	"time"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/observability/log"
	"github.com/zeusync/livemap/internal/core/system"
)

// MicroThreadComponent attaches a running thread to an entity. OnComplete
// runs on the frame goroutine after the thread finishes; err is the task
// failure, if any.
type MicroThreadComponent struct {
	Thread     *MicroThread
	OnComplete func(ctx *system.Context, entity ecs.EntityID, err error) error
}

// Spawn attaches a new thread for task to entity.
func Spawn(r *ecs.Registry, entity ecs.EntityID, task Task, quantum int,
	onComplete func(ctx *system.Context, entity ecs.EntityID, err error) error,
) (*MicroThread, error) {
	thread := NewMicroThread(task, quantum)
	err := ecs.Add(r, entity, &MicroThreadComponent{Thread: thread, OnComplete: onComplete})
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// SchedulerSystem advances every MicroThreadComponent once per frame. The
// thread list is rotated between frames so a tight budget does not always
// favour the same entities.
type SchedulerSystem struct {
	executor Executor
	now      func() time.Time

	rotation    int
	loadingTime time.Duration
	threads     int
	failed      uint64
}

func NewSchedulerSystem(executor Executor) *SchedulerSystem {
	return &SchedulerSystem{executor: executor, now: time.Now}
}

func (s *SchedulerSystem) Name() string { return "micro_thread_scheduler" }

func (s *SchedulerSystem) Update(ctx *system.Context, _ time.Duration) error {
	ids := ctx.Registry.Query(ecs.TypeOf[MicroThreadComponent]())
	s.threads = len(ids)
	if len(ids) == 0 {
		s.rotation = 0
		return nil
	}

	slices.Sort(ids)
	shift := s.rotation % len(ids)
	ids = slices.Concat(ids[shift:], ids[:shift])
	s.rotation++

	threads := make([]*MicroThread, 0, len(ids))
	for _, id := range ids {
		c, _ := ecs.Get[MicroThreadComponent](ctx.Registry, id)
		threads = append(threads, c.Thread)
	}

	start := s.now()
	s.executor.Execute(threads)
	s.loadingTime += s.now().Sub(start)

	for _, id := range ids {
		c, _ := ecs.Get[MicroThreadComponent](ctx.Registry, id)
		if !c.Thread.Completed() {
			continue
		}
		ecs.Remove[MicroThreadComponent](ctx.Registry, id)
		s.threads--

		taskErr := c.Thread.Err()
		if taskErr != nil {
			s.failed++
			ctx.Logger.Warn("micro thread completed with error",
				log.String("entity", ctx.Registry.Name(id)),
				log.Error(taskErr),
			)
		}
		if c.OnComplete != nil {
			if err := c.OnComplete(ctx, id, taskErr); err != nil {
				return fmt.Errorf("complete %s: %w", ctx.Registry.Name(id), err)
			}
		}
	}
	return nil
}

// LoadingTime is the total time spent inside the executor.
func (s *SchedulerSystem) LoadingTime() time.Duration { return s.loadingTime }

// Threads is the number of threads still running after the last frame.
func (s *SchedulerSystem) Threads() int { return s.threads }

// Failed is the number of threads that completed with an error.
func (s *SchedulerSystem) Failed() uint64 { return s.failed }
