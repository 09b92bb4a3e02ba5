package livemap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/zeusync/livemap/internal/config"
	"github.com/zeusync/livemap/internal/core/animation"
	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/multitasking"
	"github.com/zeusync/livemap/internal/core/observability/log"
	"github.com/zeusync/livemap/internal/core/system"
	"github.com/zeusync/livemap/internal/fragment"
	"github.com/zeusync/livemap/internal/mapengine/viewport"
	"github.com/zeusync/livemap/pkg/async"
)

// LiveMap owns the registry and runs the map pipeline one frame per Tick.
// Tick must be called from a single goroutine; the request methods may be
// called from any goroutine and take effect on the next frames.
type LiveMap struct {
	cfg    *config.Config
	logger log.Log

	registry   *ecs.Registry
	scheduler  *system.Scheduler
	provider   *fragment.Provider
	projection *viewport.Projection
	executor   multitasking.Executor
	camera     ecs.EntityID

	threads     *multitasking.SchedulerSystem
	animations  *animation.System
	downloading *fragment.DownloadingSystem
	removing    *fragment.RemovingSystem

	frameMu sync.Mutex
	closed  bool

	diagMu      sync.RWMutex
	diagnostics Diagnostics
}

// New builds the runtime and its systems in pipeline order.
func New(cfg *config.Config, service fragment.RemoteTileService, logger log.Log) (*LiveMap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}

	projection, err := NewProjection(cfg)
	if err != nil {
		return nil, err
	}
	cache, err := fragment.NewCache(fragment.CacheCapacity(
		cfg.Fragments.CachedZoomCount,
		viewport.Size{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height},
		cfg.Viewport.CellSize,
	))
	if err != nil {
		return nil, err
	}
	removing, err := fragment.NewRemovingSystem(cfg.Fragments.EntityCacheLimit)
	if err != nil {
		return nil, err
	}

	provider := fragment.NewProvider(service, cache, cfg.Fragments.FetchTimeout, logger)
	executor := NewExecutor(cfg, logger)
	fail := func(err error) (*LiveMap, error) {
		_ = provider.Close()
		_ = closeExecutor(executor)
		return nil, err
	}
	registry := ecs.NewRegistry()

	m := &LiveMap{
		cfg:        cfg,
		logger:     logger.With(log.String("component", "livemap")),
		registry:   registry,
		scheduler:  system.NewScheduler(registry, logger),
		provider:   provider,
		projection: projection,
		executor:   executor,
		threads:    multitasking.NewSchedulerSystem(executor),
		animations: animation.NewSystem(),
		downloading: fragment.NewDownloadingSystem(provider,
			cfg.Fragments.ActiveDownloadsLimit, cfg.Fragments.CachedZoomCount, cfg.Viewport.CellSize),
		removing: removing,
	}

	m.camera = m.registry.CreateEntity("camera")
	camera := &viewport.CameraState{Position: orb.Point{0.5, 0.5}, Zoom: cfg.Viewport.Zoom}
	camera.RequestViewportSize(viewport.Size{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height})
	camera.RequestZoom(cfg.Viewport.Zoom)
	if err = ecs.Add(m.registry, m.camera, camera); err != nil {
		return fail(err)
	}

	for _, sys := range []system.System{
		viewport.NewCameraSystem(cfg.Viewport.MinZoom, cfg.Viewport.MaxZoom, cfg.Viewport.ZoomDuration),
		m.animations,
		viewport.NewGridUpdateSystem(projection),
		fragment.NewUpdateSystem(),
		m.downloading,
		fragment.NewEmitSystem(projection, cfg.Scheduler.ProjectionQuant, cfg.Fragments.Resolution),
		m.removing,
		m.threads,
	} {
		if err = m.scheduler.RegisterSystem(sys); err != nil {
			return fail(err)
		}
	}

	m.logger.Info("livemap created",
		log.String("projection", projection.Name()),
		log.String("executor", cfg.Scheduler.Executor),
		log.Int("cache_capacity", cache.Capacity()),
	)
	return m, nil
}

// NewProjection returns the projection named by the viewport config.
func NewProjection(cfg *config.Config) (*viewport.Projection, error) {
	switch cfg.Viewport.Projection {
	case "mercator":
		return viewport.Mercator(cfg.Viewport.CellSize), nil
	case "equirectangular":
		return viewport.Equirectangular(cfg.Viewport.CellSize), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProjection, cfg.Viewport.Projection)
	}
}

// NewExecutor picks the micro-thread executor. Auto runs threads in the
// background when more than one CPU is available.
func NewExecutor(cfg *config.Config, logger log.Log) multitasking.Executor {
	background := cfg.Scheduler.Executor == config.ExecutorBackground ||
		cfg.Scheduler.Executor == config.ExecutorAuto && runtime.NumCPU() > 1
	if background {
		return multitasking.NewBackgroundExecutor(context.Background(), cfg.Scheduler.BackgroundWorkers, logger)
	}
	limit := multitasking.NewTimeLimit(cfg.Scheduler.ComputationFrameTime, time.Now)
	return multitasking.NewCooperativeExecutor(limit, logger)
}

// Tick runs one frame. A returned error means the frame was aborted.
func (m *LiveMap) Tick(dt time.Duration) error {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	if m.closed {
		return ErrClosed
	}

	err := m.scheduler.Update(dt)
	m.snapshot()
	return err
}

func (m *LiveMap) Registry() *ecs.Registry          { return m.registry }
func (m *LiveMap) Projection() *viewport.Projection { return m.projection }
func (m *LiveMap) Camera() ecs.EntityID             { return m.camera }

func (m *LiveMap) withCamera(fn func(cam *viewport.CameraState)) {
	m.scheduler.Context().RunLater(func(ctx *system.Context) error {
		cam, err := ecs.MustGet[viewport.CameraState](ctx.Registry, m.camera)
		if err != nil {
			return err
		}
		fn(cam)
		return nil
	})
}

func (m *LiveMap) SetViewportSize(width, height int) {
	m.withCamera(func(cam *viewport.CameraState) {
		cam.RequestViewportSize(viewport.Size{Width: width, Height: height})
	})
}

func (m *LiveMap) RequestZoom(zoom float64) {
	m.withCamera(func(cam *viewport.CameraState) { cam.RequestZoom(zoom) })
}

// RequestPosition centers the camera on a lon/lat point.
func (m *LiveMap) RequestPosition(lon, lat float64) {
	world := m.projection.Project(orb.Point{lon, lat})
	m.withCamera(func(cam *viewport.CameraState) { cam.RequestPosition(world) })
}

// AddRegion starts streaming the fragments of a map object. The future
// resolves with the region entity at the end of a frame.
func (m *LiveMap) AddRegion(objectID string) *async.Future[ecs.EntityID] {
	future := async.NewFuture[ecs.EntityID]()
	m.scheduler.Context().RunLater(func(ctx *system.Context) error {
		if _, ok := findRegion(ctx.Registry, objectID); ok {
			future.Reject(fmt.Errorf("%s: %w", objectID, ErrRegionExists))
			return nil
		}
		id := ctx.Registry.CreateEntity("region_" + objectID)
		if err := ecs.Add(ctx.Registry, id, &fragment.RegionComponent{ObjectID: objectID}); err != nil {
			future.Reject(err)
			return err
		}
		future.Resolve(id)
		return nil
	})
	return future
}

// RemoveRegion stops streaming an object; its fragments become obsolete.
func (m *LiveMap) RemoveRegion(objectID string) *async.Future[struct{}] {
	future := async.NewFuture[struct{}]()
	m.scheduler.Context().RunLater(func(ctx *system.Context) error {
		id, ok := findRegion(ctx.Registry, objectID)
		if !ok {
			future.Reject(fmt.Errorf("%s: %w", objectID, ErrRegionNotFound))
			return nil
		}
		ctx.Registry.MarkForDestruction(id)
		future.Resolve(struct{}{})
		return nil
	})
	return future
}

func findRegion(r *ecs.Registry, objectID string) (ecs.EntityID, bool) {
	var found ecs.EntityID
	ok := false
	ecs.Each(r, func(id ecs.EntityID, region *fragment.RegionComponent) {
		if region.ObjectID == objectID {
			found, ok = id, true
		}
	})
	return found, ok
}

// Close cancels in-flight fetches and stops background threads.
func (m *LiveMap) Close() error {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true

	var errs []error
	if err := m.provider.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := closeExecutor(m.executor); err != nil {
		errs = append(errs, err)
	}
	m.logger.Info("livemap closed", log.Uint64("frames", m.scheduler.Context().Frame))
	return errors.Join(errs...)
}

func closeExecutor(e multitasking.Executor) error {
	if closer, ok := e.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
