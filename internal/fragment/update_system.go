package fragment

import (
	"maps"
	"slices"
	"time"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/system"
	"github.com/zeusync/livemap/internal/mapengine/spatial"
	"github.com/zeusync/livemap/internal/mapengine/viewport"
)

func singleton[T any](r *ecs.Registry) (*T, error) {
	_, c, err := ecs.Singleton[T](r)
	return c, err
}

// UpdateSystem turns the quad delta of the viewport grid and the set of
// regions into requested and obsolete fragments.
type UpdateSystem struct {
	regions map[ecs.EntityID]string
}

func NewUpdateSystem() *UpdateSystem {
	return &UpdateSystem{regions: make(map[ecs.EntityID]string)}
}

func (s *UpdateSystem) Name() string { return "fragment_update" }

func (s *UpdateSystem) Init(ctx *system.Context) error {
	e := ctx.Registry.CreateEntity("fragments_change")
	if err := ecs.Add(ctx.Registry, e, &ChangedFragmentsComponent{}); err != nil {
		return err
	}
	return ecs.Add(ctx.Registry, e, &EmptyFragmentsComponent{Keys: make(map[Key]struct{})})
}

func (s *UpdateSystem) Update(ctx *system.Context, _ time.Duration) error {
	changed, err := singleton[ChangedFragmentsComponent](ctx.Registry)
	if err != nil {
		return err
	}
	changed.Reset()

	gridID, quads, err := ecs.Singleton[viewport.QuadsComponent](ctx.Registry)
	if err != nil {
		return err
	}
	gridChanged := ecs.IsDirty(ctx.Registry, gridID)
	ecs.ClearDirty(ctx.Registry, gridID)

	current := make(map[ecs.EntityID]string)
	ecs.Each(ctx.Registry, func(id ecs.EntityID, r *RegionComponent) {
		current[id] = r.ObjectID
	})

	// the delta is only meaningful on frames the grid tracker tagged
	var delta spatial.QuadDelta
	if gridChanged {
		delta = quads.Delta
	}
	toLoad := toSet(delta.ToLoad)
	toRemove := toSet(delta.ToRemove)
	// quads acquired and released in the same frame were never requested
	for q := range toLoad {
		if _, ok := toRemove[q]; ok {
			delete(toLoad, q)
			delete(toRemove, q)
		}
	}

	referenced := quads.Counter.Keys()
	requested := make(map[Key]struct{})
	obsolete := make(map[Key]struct{})

	for id, objectID := range current {
		if old, ok := s.regions[id]; ok && old == objectID {
			addKeys(requested, objectID, slices.Collect(maps.Keys(toLoad)))
			addKeys(obsolete, objectID, slices.Collect(maps.Keys(toRemove)))
			continue
		}
		if old, ok := s.regions[id]; ok {
			// object id replaced on the same entity
			addKeys(obsolete, old, previouslyReferenced(referenced, toLoad, toRemove))
		}
		addKeys(requested, objectID, referenced)
	}
	for id, objectID := range s.regions {
		if _, ok := current[id]; !ok {
			addKeys(obsolete, objectID, previouslyReferenced(referenced, toLoad, toRemove))
		}
	}
	s.regions = current

	changed.Requested = sortedKeys(requested)
	changed.Obsolete = sortedKeys(obsolete)
	return nil
}

func previouslyReferenced(referenced []spatial.QuadKey, toLoad, toRemove map[spatial.QuadKey]struct{}) []spatial.QuadKey {
	out := make([]spatial.QuadKey, 0, len(referenced)+len(toRemove))
	for _, q := range referenced {
		if _, ok := toLoad[q]; !ok {
			out = append(out, q)
		}
	}
	for q := range toRemove {
		out = append(out, q)
	}
	return out
}

func addKeys(set map[Key]struct{}, objectID string, quads []spatial.QuadKey) {
	for _, q := range quads {
		set[Key{ObjectID: objectID, Quad: q}] = struct{}{}
	}
}

func toSet(quads []spatial.QuadKey) map[spatial.QuadKey]struct{} {
	set := make(map[spatial.QuadKey]struct{}, len(quads))
	for _, q := range quads {
		set[q] = struct{}{}
	}
	return set
}
