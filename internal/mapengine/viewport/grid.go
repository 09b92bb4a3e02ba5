package viewport

import "github.com/zeusync/livemap/internal/mapengine/spatial"

// GridState tracks the visible cells and the change since the previous update.
type GridState struct {
	Visible       CellSet
	CellsToLoad   []CellKey
	CellsToRemove []CellKey
}

func NewGridState() *GridState {
	return &GridState{Visible: CellSet{}}
}

// Update replaces the visible set and reports whether it changed. The load
// and remove lists are recomputed on every call.
func (g *GridState) Update(visible CellSet) bool {
	g.CellsToLoad = visible.Minus(g.Visible)
	g.CellsToRemove = g.Visible.Minus(visible)
	g.Visible = visible
	return len(g.CellsToLoad) > 0 || len(g.CellsToRemove) > 0
}

// QuadsComponent holds the quad reference counts of the grid and the delta
// produced by the last frame that changed it.
type QuadsComponent struct {
	Counter *spatial.RefCounter
	Delta   spatial.QuadDelta
}
