package fragment

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/multitasking"
	"github.com/zeusync/livemap/internal/core/system"
	"github.com/zeusync/livemap/internal/mapengine/geometry"
	"github.com/zeusync/livemap/internal/mapengine/spatial"
	"github.com/zeusync/livemap/internal/mapengine/viewport"
)

// quadService answers every object with the full rectangle of each quad,
// except for object "void" which has no geometry anywhere.
func quadService() *fakeService {
	return &fakeService{respond: func(req FetchRequest) ([]FetchedFeature, error) {
		var out []FetchedFeature
		for _, id := range req.ObjectIDs {
			if id == "void" {
				continue
			}
			tiles := make(map[spatial.QuadKey]orb.MultiPolygon)
			for _, q := range req.MissingTilesByObject[id] {
				b, err := q.Bound()
				if err != nil {
					return nil, err
				}
				tiles[q] = orb.MultiPolygon{b.ToPolygon()}
			}
			out = append(out, FetchedFeature{ID: id, Tiles: tiles})
		}
		return out, nil
	}}
}

type pipeline struct {
	scheduler *system.Scheduler
	registry  *ecs.Registry
	camera    ecs.EntityID
	removing  *RemovingSystem
}

func newPipeline(t *testing.T, service RemoteTileService, retain int) *pipeline {
	t.Helper()
	return newPipelineWith(t, service, retain, 1000, 4)
}

// newPipelineWith sets the projection quantum and the download limit.
func newPipelineWith(t *testing.T, service RemoteTileService, retain, quant, limit int) *pipeline {
	t.Helper()
	r := ecs.NewRegistry()
	camera := r.CreateEntity("camera")
	require.NoError(t, ecs.Add(r, camera, &viewport.CameraState{Position: orb.Point{0.5, 0.5}, Zoom: 1}))

	projection := viewport.Mercator(256)
	removing, err := NewRemovingSystem(retain)
	require.NoError(t, err)

	s := system.NewScheduler(r, nil)
	for _, sys := range []system.System{
		viewport.NewCameraSystem(0, 6, 0),
		viewport.NewGridUpdateSystem(projection),
		NewUpdateSystem(),
		NewDownloadingSystem(newProvider(t, service, 64), limit, 2, 256),
		NewEmitSystem(projection, quant, geometry.DefaultResolution),
		removing,
		multitasking.NewSchedulerSystem(multitasking.NewCooperativeExecutor(multitasking.Unlimited(), nil)),
	} {
		require.NoError(t, s.RegisterSystem(sys))
	}
	return &pipeline{scheduler: s, registry: r, camera: camera, removing: removing}
}

func (p *pipeline) cameraState() *viewport.CameraState {
	c, _ := ecs.Get[viewport.CameraState](p.registry, p.camera)
	return c
}

func (p *pipeline) cached(t *testing.T) *CachedFragmentsComponent {
	c, err := singleton[CachedFragmentsComponent](p.registry)
	require.NoError(t, err)
	return c
}

func (p *pipeline) streaming(t *testing.T) *StreamingFragmentsComponent {
	c, err := singleton[StreamingFragmentsComponent](p.registry)
	require.NoError(t, err)
	return c
}

func (p *pipeline) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 500; i++ {
		require.NoError(t, p.scheduler.Update(16*time.Millisecond))
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestPipelineStreamsVisibleFragments(t *testing.T) {
	service := quadService()
	p := newPipeline(t, service, 0)
	region := p.registry.CreateEntity("region_a")
	require.NoError(t, ecs.Add(p.registry, region, &RegionComponent{ObjectID: "a"}))
	void := p.registry.CreateEntity("region_void")
	require.NoError(t, ecs.Add(p.registry, void, &RegionComponent{ObjectID: "void"}))

	p.cameraState().RequestViewportSize(viewport.Size{Width: 512, Height: 512})
	var emitted []Key
	p.runUntil(t, func() bool {
		e, _ := singleton[EmittedFragmentsComponent](p.registry)
		emitted = append(emitted, e.Emitted...)
		return len(p.cached(t).Entities) == 4
	})

	assert.ElementsMatch(t, []Key{{"a", "0"}, {"a", "1"}, {"a", "2"}, {"a", "3"}}, p.cached(t).Keys())
	assert.Contains(t, emitted, Key{"void", "0"})
	assert.Contains(t, emitted, Key{"a", "3"})

	for _, id := range p.cached(t).Entities {
		world, ok := ecs.Get[geometry.WorldGeometryComponent](p.registry, id)
		require.True(t, ok)
		assert.NotEmpty(t, world.Geometry)
		assert.False(t, ecs.Has[multitasking.MicroThreadComponent](p.registry, id))
	}
	empty, _ := singleton[EmptyFragmentsComponent](p.registry)
	assert.Len(t, empty.Keys, 4)

	// one request per quad
	assert.Len(t, service.calls(), 4)
	for _, call := range service.calls() {
		assert.Equal(t, []string{"a", "void"}, call.ObjectIDs)
	}

	p.cameraState().RequestZoom(2)
	p.runUntil(t, func() bool {
		keys := p.cached(t).Keys()
		return len(keys) == 4 && keys[0].Quad.Zoom() == 2
	})
	for _, k := range p.cached(t).Keys() {
		assert.Equal(t, 2, k.Quad.Zoom())
	}
	_, stale := empty.Keys[Key{"void", "0"}]
	assert.False(t, stale, "obsolete empty fragments are forgotten")
}

func TestPipelineRetainsHiddenFragments(t *testing.T) {
	service := quadService()
	p := newPipeline(t, service, 16)
	region := p.registry.CreateEntity("region_a")
	require.NoError(t, ecs.Add(p.registry, region, &RegionComponent{ObjectID: "a"}))

	p.cameraState().RequestViewportSize(viewport.Size{Width: 512, Height: 512})
	p.runUntil(t, func() bool { return len(p.cached(t).Entities) == 4 })
	zoomOne := p.cached(t).Entities[Key{"a", "0"}]

	p.cameraState().RequestZoom(2)
	p.runUntil(t, func() bool { return len(p.cached(t).Entities) == 8 })
	assert.Equal(t, 4, p.removing.Retained())
	assert.True(t, p.registry.Alive(zoomOne))

	p.cameraState().RequestZoom(1)
	require.NoError(t, p.scheduler.Update(16*time.Millisecond))
	e, _ := singleton[EmittedFragmentsComponent](p.registry)
	assert.ElementsMatch(t, []Key{{"a", "0"}, {"a", "1"}, {"a", "2"}, {"a", "3"}}, e.Emitted, "re-emitted without projection")
	assert.Equal(t, zoomOne, p.cached(t).Entities[Key{"a", "0"}])
	assert.Equal(t, 4, p.removing.Retained(), "zoom 2 fragments are hidden now")
}

func TestUpdateSystemTracksRegions(t *testing.T) {
	r := ecs.NewRegistry()
	s := system.NewScheduler(r, nil)
	grid := r.CreateEntity("grid")
	counter := spatial.NewRefCounter()
	quads := &viewport.QuadsComponent{Counter: counter}
	require.NoError(t, ecs.Add(r, grid, quads))
	update := NewUpdateSystem()
	require.NoError(t, s.RegisterSystem(update))

	delta, err := spatial.SyncQuads(counter, []spatial.QuadKey{"0", "1"}, nil)
	require.NoError(t, err)
	quads.Delta = delta
	require.NoError(t, ecs.MarkDirty(r, grid))
	require.NoError(t, s.Update(time.Millisecond))
	changed, _ := singleton[ChangedFragmentsComponent](r)
	assert.Empty(t, changed.Requested, "no regions yet")

	region := r.CreateEntity("region")
	require.NoError(t, ecs.Add(r, region, &RegionComponent{ObjectID: "x"}))
	quads.Delta = spatial.QuadDelta{}
	require.NoError(t, s.Update(time.Millisecond))
	assert.Equal(t, []Key{{"x", "0"}, {"x", "1"}}, changed.Requested)

	delta, err = spatial.SyncQuads(counter, []spatial.QuadKey{"2"}, []spatial.QuadKey{"0"})
	require.NoError(t, err)
	quads.Delta = delta
	require.NoError(t, s.Update(time.Millisecond))
	assert.Empty(t, changed.Requested, "delta of an untagged grid is ignored")
	assert.Empty(t, changed.Obsolete)

	require.NoError(t, ecs.MarkDirty(r, grid))
	require.NoError(t, s.Update(time.Millisecond))
	assert.Equal(t, []Key{{"x", "2"}}, changed.Requested)
	assert.Equal(t, []Key{{"x", "0"}}, changed.Obsolete)
	assert.False(t, ecs.IsDirty(r, grid), "the tag is consumed")

	r.DestroyEntity(region)
	quads.Delta = spatial.QuadDelta{}
	require.NoError(t, s.Update(time.Millisecond))
	assert.Empty(t, changed.Requested)
	assert.Equal(t, []Key{{"x", "1"}, {"x", "2"}}, changed.Obsolete)
}

func TestPipelineRevisitWhileProjecting(t *testing.T) {
	service := quadService()
	p := newPipelineWith(t, service, 0, 50, 16)
	region := p.registry.CreateEntity("region_a")
	require.NoError(t, ecs.Add(p.registry, region, &RegionComponent{ObjectID: "a"}))

	p.cameraState().RequestViewportSize(viewport.Size{Width: 512, Height: 512})
	p.runUntil(t, func() bool {
		return len(p.streaming(t).Entities) == 4 && len(p.cached(t).Entities) == 0
	})

	p.cameraState().RequestZoom(2)
	require.NoError(t, p.scheduler.Update(16*time.Millisecond))
	p.cameraState().RequestZoom(1)

	p.runUntil(t, func() bool {
		keys := p.cached(t).Keys()
		return len(keys) == 4 && keys[0].Quad.Zoom() == 1
	})
	assert.Equal(t, []Key{{"a", "0"}, {"a", "1"}, {"a", "2"}, {"a", "3"}}, p.cached(t).Keys())
	assert.Empty(t, p.streaming(t).Entities)
}

func TestPipelineDropsDownloadsOfRemovedRegion(t *testing.T) {
	service := quadService()
	service.release = make(chan struct{})
	p := newPipeline(t, service, 0)
	region := p.registry.CreateEntity("region_a")
	require.NoError(t, ecs.Add(p.registry, region, &RegionComponent{ObjectID: "a"}))

	p.cameraState().RequestViewportSize(viewport.Size{Width: 512, Height: 512})
	p.runUntil(t, func() bool { return len(service.calls()) == 4 })

	p.registry.DestroyEntity(region)
	require.NoError(t, p.scheduler.Update(16*time.Millisecond))
	close(service.release)

	p.runUntil(t, func() bool {
		d, err := singleton[DownloadingFragmentsComponent](p.registry)
		require.NoError(t, err)
		return d.Active() == 0
	})
	for i := 0; i < 10; i++ {
		require.NoError(t, p.scheduler.Update(16*time.Millisecond))
	}

	assert.Empty(t, p.cached(t).Entities)
	assert.Empty(t, p.streaming(t).Entities)
	assert.Zero(t, p.registry.Count(ecs.TypeOf[FragmentComponent]()), "no fragment entity survives")
}
