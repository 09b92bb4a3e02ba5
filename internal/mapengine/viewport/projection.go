package viewport

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/zeusync/livemap/internal/mapengine/spatial"
)

// DefaultCellSize is the side of a grid cell in pixels.
const DefaultCellSize = 256

// Size is a viewport size in pixels.
type Size struct {
	Width, Height int
}

func (s Size) Empty() bool { return s.Width <= 0 || s.Height <= 0 }

// Projection maps lon/lat to the unit world square, x to the east and y to
// the south, and slices the world into 2^zoom by 2^zoom cells.
type Projection struct {
	name     string
	cellSize int
	project  orb.Projection
	invert   orb.Projection
}

const mercatorHalfWorld = math.Pi * orb.EarthRadius

// Mercator is the web mercator projection used by the tile service.
func Mercator(cellSize int) *Projection {
	return &Projection{
		name:     "mercator",
		cellSize: normalizeCellSize(cellSize),
		project: func(p orb.Point) orb.Point {
			lat := math.Max(-spatial.MaxLatitude, math.Min(spatial.MaxLatitude, p.Lat()))
			m := project.WGS84.ToMercator(orb.Point{p.Lon(), lat})
			return orb.Point{(m[0]/mercatorHalfWorld + 1) / 2, (1 - m[1]/mercatorHalfWorld) / 2}
		},
		invert: func(p orb.Point) orb.Point {
			m := orb.Point{(2*p[0] - 1) * mercatorHalfWorld, (1 - 2*p[1]) * mercatorHalfWorld}
			return project.Mercator.ToWGS84(m)
		},
	}
}

// Equirectangular maps lon/lat linearly. Its cells overlap several
// mercator quads away from the equator.
func Equirectangular(cellSize int) *Projection {
	return &Projection{
		name:     "equirectangular",
		cellSize: normalizeCellSize(cellSize),
		project: func(p orb.Point) orb.Point {
			return orb.Point{(p.Lon() + 180) / 360, (90 - p.Lat()) / 180}
		},
		invert: func(p orb.Point) orb.Point {
			return orb.Point{p[0]*360 - 180, 90 - p[1]*180}
		},
	}
}

func normalizeCellSize(cellSize int) int {
	if cellSize <= 0 {
		return DefaultCellSize
	}
	return cellSize
}

func (p *Projection) Name() string  { return p.name }
func (p *Projection) CellSize() int { return p.cellSize }

// Project maps lon/lat to the unit world square.
func (p *Projection) Project(lonLat orb.Point) orb.Point { return p.project(lonLat) }

// Invert maps a unit world point back to lon/lat.
func (p *Projection) Invert(world orb.Point) orb.Point { return p.invert(world) }

// WorldSize is the side of the world in pixels at zoom.
func (p *Projection) WorldSize(zoom int) float64 {
	return float64(p.cellSize) * math.Exp2(float64(zoom))
}

// ToPixels maps lon/lat to pixel coordinates at zoom.
func (p *Projection) ToPixels(lonLat orb.Point, zoom int) orb.Point {
	w := p.project(lonLat)
	size := p.WorldSize(zoom)
	return orb.Point{w[0] * size, w[1] * size}
}

// CellBound returns the lon/lat rectangle of a cell.
func (p *Projection) CellBound(c CellKey) orb.Bound {
	n := math.Exp2(float64(c.Zoom))
	nw := p.invert(orb.Point{float64(c.X) / n, float64(c.Y) / n})
	se := p.invert(orb.Point{float64(c.X+1) / n, float64(c.Y+1) / n})
	return orb.Bound{
		Min: orb.Point{nw.Lon(), se.Lat()},
		Max: orb.Point{se.Lon(), nw.Lat()},
	}
}

// ToGridCells returns the cells visible in a viewport of the given size
// centered at a unit world point. It is a pure function of its arguments.
func (p *Projection) ToGridCells(center orb.Point, zoom int, size Size) CellSet {
	if size.Empty() || zoom < 0 || zoom > spatial.MaxZoom {
		return CellSet{}
	}
	worldSize := p.WorldSize(zoom)
	cell := float64(p.cellSize)
	last := int64(1)<<zoom - 1

	cx, cy := center[0]*worldSize, center[1]*worldSize
	minX := clampCell(math.Floor((cx-float64(size.Width)/2)/cell), last)
	maxX := clampCell(math.Ceil((cx+float64(size.Width)/2)/cell)-1, last)
	minY := clampCell(math.Floor((cy-float64(size.Height)/2)/cell), last)
	maxY := clampCell(math.Ceil((cy+float64(size.Height)/2)/cell)-1, last)

	cells := make(CellSet, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			cells.Add(CellKey{X: uint32(x), Y: uint32(y), Zoom: uint8(zoom)})
		}
	}
	return cells
}

func clampCell(v float64, last int64) int64 {
	switch {
	case v < 0:
		return 0
	case v > float64(last):
		return last
	default:
		return int64(v)
	}
}
