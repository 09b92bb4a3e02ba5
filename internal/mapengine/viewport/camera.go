package viewport

import (
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/zeusync/livemap/internal/core/animation"
	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/system"
)

// CameraState is the singleton camera. Position is a unit world point.
// Requests are applied by CameraSystem on the next frame.
type CameraState struct {
	Position     orb.Point
	Zoom         float64
	ViewportSize Size

	requestedZoom     *float64
	requestedPosition *orb.Point
	requestedSize     *Size
}

func (c *CameraState) RequestZoom(zoom float64)        { c.requestedZoom = &zoom }
func (c *CameraState) RequestPosition(world orb.Point) { c.requestedPosition = &world }
func (c *CameraState) RequestViewportSize(size Size)   { c.requestedSize = &size }
func (c *CameraState) HasPendingRequests() bool {
	return c.requestedZoom != nil || c.requestedPosition != nil || c.requestedSize != nil
}

// CellZoom is the integer zoom of the grid cells.
func (c *CameraState) CellZoom() int {
	return max(0, int(math.Floor(c.Zoom)))
}

// CameraSystem applies camera requests and tags the camera dirty on change.
type CameraSystem struct {
	minZoom, maxZoom float64
	zoomDuration     time.Duration
}

// NewCameraSystem animates zoom changes over zoomDuration; zero applies them
// at once.
func NewCameraSystem(minZoom, maxZoom float64, zoomDuration time.Duration) *CameraSystem {
	return &CameraSystem{minZoom: minZoom, maxZoom: maxZoom, zoomDuration: zoomDuration}
}

func (s *CameraSystem) Name() string { return "camera" }

func (s *CameraSystem) Update(ctx *system.Context, _ time.Duration) error {
	id, cam, err := ecs.Singleton[CameraState](ctx.Registry)
	if err != nil {
		return err
	}

	changed := false
	if cam.requestedSize != nil {
		if *cam.requestedSize != cam.ViewportSize {
			cam.ViewportSize = *cam.requestedSize
			changed = true
		}
		cam.requestedSize = nil
	}
	if cam.requestedPosition != nil {
		p := orb.Point{clamp(cam.requestedPosition[0], 0, 1), clamp(cam.requestedPosition[1], 0, 1)}
		if p != cam.Position {
			cam.Position = p
			changed = true
		}
		cam.requestedPosition = nil
	}
	if cam.requestedZoom != nil {
		zoom := clamp(*cam.requestedZoom, s.minZoom, s.maxZoom)
		cam.requestedZoom = nil
		if zoom != cam.Zoom {
			if s.zoomDuration > 0 {
				if err := animation.Start(ctx.Registry, id, CameraZoomAnimation(ctx.Registry, id, cam.Zoom, zoom, s.zoomDuration)); err != nil {
					return err
				}
			} else {
				cam.Zoom = zoom
				changed = true
			}
		}
	}

	if changed {
		return ecs.MarkDirty(ctx.Registry, id)
	}
	return nil
}

// CameraZoomAnimation interpolates the camera zoom with ease out and tags
// the camera dirty whenever the grid zoom changes.
func CameraZoomAnimation(r *ecs.Registry, camera ecs.EntityID, from, to float64, duration time.Duration) *animation.Animation {
	return animation.New(duration, animation.EaseOut, func(progress float64) error {
		cam, err := ecs.MustGet[CameraState](r, camera)
		if err != nil {
			return err
		}
		before := cam.CellZoom()
		cam.Zoom = animation.Lerp(from, to, progress)
		if progress >= 1 {
			cam.Zoom = to
		}
		if cam.CellZoom() != before {
			return ecs.MarkDirty(r, camera)
		}
		return nil
	})
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
