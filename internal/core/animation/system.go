package animation

import (
	"time"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/observability/log"
	"github.com/zeusync/livemap/internal/core/system"
)

// Component drives an Animation from the frame clock. OnFinished runs once
// on the frame the animation ends, right before the component is removed.
type Component struct {
	Animation  *Animation
	OnFinished func(ctx *system.Context, entity ecs.EntityID)
}

// Start attaches a new animation to entity, replacing any previous one.
func Start(r *ecs.Registry, entity ecs.EntityID, a *Animation) error {
	return ecs.Add(r, entity, &Component{Animation: a})
}

// System advances every animation component. Animator failures are logged
// and do not abort the frame.
type System struct {
	failures uint64
}

func NewSystem() *System { return &System{} }

func (s *System) Name() string { return "animation" }

func (s *System) Update(ctx *system.Context, dt time.Duration) error {
	for _, id := range ctx.Registry.Query(ecs.TypeOf[Component]()) {
		c, _ := ecs.Get[Component](ctx.Registry, id)
		if c.Animation == nil {
			ecs.Remove[Component](ctx.Registry, id)
			continue
		}

		c.Animation.Advance(dt)
		if err := c.Animation.Animate(); err != nil {
			s.failures++
			ctx.Logger.Warn("animator failed",
				log.String("entity", ctx.Registry.Name(id)),
				log.Error(err),
			)
		}

		if c.Animation.IsFinished() {
			if c.OnFinished != nil {
				c.OnFinished(ctx, id)
			}
			ecs.Remove[Component](ctx.Registry, id)
		}
	}
	return nil
}

// Failures is the number of frames where an animator returned an error.
func (s *System) Failures() uint64 { return s.failures }
