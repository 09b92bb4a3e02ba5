package fragment

import (
	"slices"
	"time"

	"github.com/paulmach/orb"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/observability/log"
	"github.com/zeusync/livemap/internal/core/system"
	"github.com/zeusync/livemap/internal/mapengine/spatial"
	"github.com/zeusync/livemap/internal/mapengine/viewport"
)

// DownloadingSystem feeds requested fragments to the provider, closest
// zoom first, with at most limit requests running at a time. Each request
// covers every queued object of one quad.
type DownloadingSystem struct {
	provider        *Provider
	limit           int
	cachedZoomCount int
	cellSize        int

	entity   ecs.EntityID
	lastSize viewport.Size
	lastZoom int
	failed   uint64
}

func NewDownloadingSystem(provider *Provider, limit, cachedZoomCount, cellSize int) *DownloadingSystem {
	return &DownloadingSystem{
		provider:        provider,
		limit:           max(1, limit),
		cachedZoomCount: max(1, cachedZoomCount),
		cellSize:        cellSize,
		lastZoom:        -1,
	}
}

func (s *DownloadingSystem) Name() string { return "fragment_downloading" }

func (s *DownloadingSystem) Init(ctx *system.Context) error {
	s.entity = ctx.Registry.CreateEntity("downloading_fragments")
	return ecs.Add(ctx.Registry, s.entity, NewDownloadingFragmentsComponent())
}

func (s *DownloadingSystem) Update(ctx *system.Context, _ time.Duration) error {
	s.provider.Dispatch()

	cam, err := singleton[viewport.CameraState](ctx.Registry)
	if err != nil {
		return err
	}
	d, err := ecs.MustGet[DownloadingFragmentsComponent](ctx.Registry, s.entity)
	if err != nil {
		return err
	}
	changed, err := singleton[ChangedFragmentsComponent](ctx.Registry)
	if err != nil {
		return err
	}

	if err := s.resizeCache(ctx, cam.ViewportSize); err != nil {
		return err
	}

	zoom := cam.CellZoom()
	if zoom != s.lastZoom {
		d.queue.Reprioritize(func(k Key) int { return zoomDistance(k, zoom) })
		s.lastZoom = zoom
	}

	for _, k := range changed.Obsolete {
		if item, ok := d.queued[k]; ok {
			d.queue.Remove(item)
			delete(d.queued, k)
		}
	}
	for _, k := range changed.Requested {
		if _, ok := d.queued[k]; !ok {
			d.queued[k] = d.queue.Enqueue(k, zoomDistance(k, zoom))
		}
	}

	for len(d.active) < s.limit && !d.queue.IsEmpty() {
		s.startDownload(d)
	}

	d.Downloaded = make(map[Key]orb.MultiPolygon)
	running := d.active[:0]
	for _, dl := range d.active {
		if !dl.future.IsDone() {
			running = append(running, dl)
			continue
		}
		result, err := dl.future.Result()
		if err != nil {
			s.failed++
			ctx.Logger.Warn("fragment download failed",
				log.Int("fragments", len(dl.keys)),
				log.Error(err),
			)
			continue
		}
		for _, k := range dl.keys {
			var geometry orb.MultiPolygon
			for _, f := range result[k.ObjectID] {
				if f.Quad == k.Quad {
					geometry = append(geometry, f.Geometry...)
				}
			}
			d.Downloaded[k] = geometry
		}
	}
	d.active = running
	return nil
}

func (s *DownloadingSystem) startDownload(d *DownloadingFragmentsComponent) {
	head, _ := d.queue.Dequeue()
	delete(d.queued, head)

	keys := []Key{head}
	for k, item := range d.queued {
		if k.Quad == head.Quad {
			d.queue.Remove(item)
			delete(d.queued, k)
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys[1:], compareKeys)

	objectIDs := make([]string, 0, len(keys))
	for _, k := range keys {
		objectIDs = append(objectIDs, k.ObjectID)
	}
	d.active = append(d.active, download{
		keys:   keys,
		future: s.provider.GetGeometries(objectIDs, []spatial.QuadKey{head.Quad}),
	})
}

func (s *DownloadingSystem) resizeCache(ctx *system.Context, size viewport.Size) error {
	if size == s.lastSize || size.Empty() {
		return nil
	}
	s.lastSize = size
	capacity := CacheCapacity(s.cachedZoomCount, size, s.cellSize)
	evicted, err := s.provider.Cache().Resize(capacity)
	if err != nil {
		return err
	}
	ctx.Logger.Debug("fragment cache resized",
		log.Int("capacity", capacity),
		log.Int("evicted", evicted),
	)
	return nil
}

// Failed is the number of failed downloads.
func (s *DownloadingSystem) Failed() uint64 { return s.failed }
