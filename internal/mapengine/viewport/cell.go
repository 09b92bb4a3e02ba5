package viewport

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/zeusync/livemap/internal/mapengine/spatial"
)

// CellKey addresses one square cell of the viewport grid. Keys compare and
// hash by value.
type CellKey struct {
	X, Y uint32
	Zoom uint8
}

func (c CellKey) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.X, c.Y)
}

// ToQuadKeys returns the quads overlapping the cell in the tile service
// grid. Under a mercator projection that is exactly one quad.
func (c CellKey) ToQuadKeys(p *Projection) []spatial.QuadKey {
	return spatial.Covering(p.CellBound(c), int(c.Zoom))
}

func compareCells(a, b CellKey) int {
	if c := cmp.Compare(a.Zoom, b.Zoom); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.X, b.X)
}

// CellSet is a set of cells.
type CellSet map[CellKey]struct{}

func NewCellSet(keys ...CellKey) CellSet {
	s := make(CellSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s CellSet) Add(k CellKey) { s[k] = struct{}{} }

func (s CellSet) Contains(k CellKey) bool {
	_, ok := s[k]
	return ok
}

func (s CellSet) Len() int { return len(s) }

// Sorted returns the cells by zoom, then row, then column.
func (s CellSet) Sorted() []CellKey {
	return slices.SortedFunc(maps.Keys(s), compareCells)
}

// Minus returns the cells of s missing from other, sorted.
func (s CellSet) Minus(other CellSet) []CellKey {
	var out []CellKey
	for k := range s {
		if !other.Contains(k) {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, compareCells)
	return out
}
