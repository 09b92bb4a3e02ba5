package fragment

import (
	"maps"
	"slices"
	"time"

	"github.com/paulmach/orb"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/multitasking"
	"github.com/zeusync/livemap/internal/core/observability/log"
	"github.com/zeusync/livemap/internal/core/system"
	"github.com/zeusync/livemap/internal/mapengine/geometry"
	"github.com/zeusync/livemap/internal/mapengine/viewport"
)

// EmitSystem creates an entity for every downloaded fragment that is still
// visible and projects its geometry on a micro thread. Fragments whose
// projection finished are moved to the cached set and emitted.
type EmitSystem struct {
	projection *viewport.Projection
	quant      int
	resolution float64

	entity  ecs.EntityID
	waiting map[Key]ecs.EntityID
}

// NewEmitSystem projects fragments with threads of the given quantum.
func NewEmitSystem(projection *viewport.Projection, quant int, resolution float64) *EmitSystem {
	return &EmitSystem{
		projection: projection,
		quant:      quant,
		resolution: resolution,
		waiting:    make(map[Key]ecs.EntityID),
	}
}

func (s *EmitSystem) Name() string { return "fragment_emit" }

func (s *EmitSystem) Init(ctx *system.Context) error {
	s.entity = ctx.Registry.CreateEntity("fragments_fetch")
	for _, add := range []func() error{
		func() error {
			return ecs.Add(ctx.Registry, s.entity, &StreamingFragmentsComponent{Entities: make(map[Key]ecs.EntityID)})
		},
		func() error {
			return ecs.Add(ctx.Registry, s.entity, &CachedFragmentsComponent{Entities: make(map[Key]ecs.EntityID)})
		},
		func() error { return ecs.Add(ctx.Registry, s.entity, &EmittedFragmentsComponent{}) },
	} {
		if err := add(); err != nil {
			return err
		}
	}
	return nil
}

func (s *EmitSystem) Update(ctx *system.Context, _ time.Duration) error {
	r := ctx.Registry
	downloading, err := singleton[DownloadingFragmentsComponent](r)
	if err != nil {
		return err
	}
	quads, err := singleton[viewport.QuadsComponent](r)
	if err != nil {
		return err
	}
	changed, err := singleton[ChangedFragmentsComponent](r)
	if err != nil {
		return err
	}
	empty, err := singleton[EmptyFragmentsComponent](r)
	if err != nil {
		return err
	}
	streaming, err := ecs.MustGet[StreamingFragmentsComponent](r, s.entity)
	if err != nil {
		return err
	}
	cached, err := ecs.MustGet[CachedFragmentsComponent](r, s.entity)
	if err != nil {
		return err
	}
	emitted, err := ecs.MustGet[EmittedFragmentsComponent](r, s.entity)
	if err != nil {
		return err
	}

	// entities destroyed by RemovingSystem must not hold back a re-download
	for k, id := range s.waiting {
		if !r.Alive(id) {
			delete(s.waiting, k)
		}
	}

	regions := make(map[string]struct{})
	ecs.Each(r, func(_ ecs.EntityID, region *RegionComponent) {
		regions[region.ObjectID] = struct{}{}
	})

	emptyNow := make(map[Key]struct{})
	for _, k := range slices.SortedFunc(maps.Keys(downloading.Downloaded), compareKeys) {
		geom := downloading.Downloaded[k]
		_, regionAlive := regions[k.ObjectID]
		switch {
		case !quads.Counter.Contains(k.Quad), !regionAlive:
			// arrived too late, the quad or the region is gone
			s.drop(r, streaming, k)
		case len(geom) == 0:
			emptyNow[k] = struct{}{}
			s.drop(r, streaming, k)
		default:
			if _, ok := cached.Entities[k]; ok {
				continue
			}
			if _, ok := s.waiting[k]; ok {
				continue
			}
			if err := s.spawn(ctx, streaming, k, geom); err != nil {
				return err
			}
		}
	}

	transformed := make(map[Key]struct{})
	for k, id := range s.waiting {
		if !r.Alive(id) {
			delete(s.waiting, k)
			continue
		}
		if ecs.Has[geometry.WorldGeometryComponent](r, id) {
			delete(s.waiting, k)
			delete(streaming.Entities, k)
			cached.Entities[k] = id
			transformed[k] = struct{}{}
		}
	}

	out := make(map[Key]struct{}, len(emptyNow)+len(transformed))
	maps.Copy(out, emptyNow)
	maps.Copy(out, transformed)
	for _, k := range changed.Requested {
		if _, ok := cached.Entities[k]; ok {
			out[k] = struct{}{}
		}
	}
	maps.Copy(empty.Keys, emptyNow)
	emitted.Emitted = sortedKeys(out)
	return nil
}

func (s *EmitSystem) drop(r *ecs.Registry, streaming *StreamingFragmentsComponent, k Key) {
	if id, ok := streaming.Entities[k]; ok {
		r.MarkForDestruction(id)
		delete(streaming.Entities, k)
	}
	delete(s.waiting, k)
}

func (s *EmitSystem) spawn(ctx *system.Context, streaming *StreamingFragmentsComponent, k Key, geom orb.MultiPolygon) error {
	r := ctx.Registry
	id := r.CreateEntity("fragment_" + k.String())
	if err := ecs.Add(r, id, &FragmentComponent{Key: k}); err != nil {
		return err
	}

	zoom := k.Quad.Zoom()
	task := geometry.Resample(geom, func(p orb.Point) orb.Point {
		return s.projection.ToPixels(p, zoom)
	}, s.resolution, geometry.DefaultMaxDepth)

	_, err := multitasking.Spawn(r, id, task, s.quant, func(ctx *system.Context, id ecs.EntityID, taskErr error) error {
		if taskErr != nil {
			ctx.Logger.Warn("fragment projection failed", log.Stringer("fragment", k), log.Error(taskErr))
			if streaming.Entities[k] == id {
				delete(streaming.Entities, k)
			}
			delete(s.waiting, k)
			ctx.Registry.MarkForDestruction(id)
			return nil
		}
		return ecs.Add(ctx.Registry, id, geometry.NewWorldGeometry(task.Result()))
	})
	if err != nil {
		return err
	}

	streaming.Entities[k] = id
	s.waiting[k] = id
	return nil
}
