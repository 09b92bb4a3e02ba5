package viewport

import (
	"fmt"
	"time"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/observability/log"
	"github.com/zeusync/livemap/internal/core/system"
	"github.com/zeusync/livemap/internal/mapengine/spatial"
)

// GridUpdateSystem recomputes the visible cells whenever the camera is
// dirty and turns the cell delta into a quad delta. The whole grid is
// recomputed on every camera change; the diff keeps the delta minimal.
type GridUpdateSystem struct {
	projection *Projection
	grid       ecs.EntityID
	quads      map[CellKey][]spatial.QuadKey
}

func NewGridUpdateSystem(projection *Projection) *GridUpdateSystem {
	return &GridUpdateSystem{
		projection: projection,
		quads:      make(map[CellKey][]spatial.QuadKey),
	}
}

func (s *GridUpdateSystem) Name() string { return "viewport_grid" }

func (s *GridUpdateSystem) Init(ctx *system.Context) error {
	s.grid = ctx.Registry.CreateEntity("viewport_grid")
	if err := ecs.Add(ctx.Registry, s.grid, NewGridState()); err != nil {
		return err
	}
	return ecs.Add(ctx.Registry, s.grid, &QuadsComponent{Counter: spatial.NewRefCounter()})
}

func (s *GridUpdateSystem) Update(ctx *system.Context, _ time.Duration) error {
	camID, cam, err := ecs.Singleton[CameraState](ctx.Registry)
	if err != nil {
		return err
	}
	grid, err := ecs.MustGet[GridState](ctx.Registry, s.grid)
	if err != nil {
		return err
	}
	quads, err := ecs.MustGet[QuadsComponent](ctx.Registry, s.grid)
	if err != nil {
		return err
	}
	quads.Delta = spatial.QuadDelta{}

	if !ecs.IsDirty(ctx.Registry, camID) {
		return nil
	}
	ecs.ClearDirty(ctx.Registry, camID)

	visible := s.projection.ToGridCells(cam.Position, cam.CellZoom(), cam.ViewportSize)
	if !grid.Update(visible) {
		return nil
	}

	var newQuads, obsoleteQuads []spatial.QuadKey
	for _, cell := range grid.CellsToLoad {
		q := cell.ToQuadKeys(s.projection)
		s.quads[cell] = q
		newQuads = append(newQuads, q...)
	}
	for _, cell := range grid.CellsToRemove {
		obsoleteQuads = append(obsoleteQuads, s.quads[cell]...)
		delete(s.quads, cell)
	}

	delta, err := spatial.SyncQuads(quads.Counter, newQuads, obsoleteQuads)
	if err != nil {
		return fmt.Errorf("sync quads: %w", err)
	}
	quads.Delta = delta

	ctx.Logger.Debug("viewport grid changed",
		log.Int("visible", visible.Len()),
		log.Int("cells_to_load", len(grid.CellsToLoad)),
		log.Int("cells_to_remove", len(grid.CellsToRemove)),
		log.Int("quads_to_load", len(delta.ToLoad)),
		log.Int("quads_to_remove", len(delta.ToRemove)),
	)
	return ecs.MarkDirty(ctx.Registry, s.grid)
}

// Grid returns the grid entity, valid after the first frame.
func (s *GridUpdateSystem) Grid() ecs.EntityID { return s.grid }
