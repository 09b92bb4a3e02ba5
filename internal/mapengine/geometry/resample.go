package geometry

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/zeusync/livemap/internal/core/multitasking"
)

const (
	// DefaultResolution is the longest projected segment, in pixels, left
	// without intermediate points.
	DefaultResolution = 1.0
	// DefaultMaxDepth limits the recursive midpoint insertion per segment.
	DefaultMaxDepth = 8
)

// Transform maps a lon/lat point to world coordinates.
type Transform func(orb.Point) orb.Point

// WorldGeometryComponent is the projected geometry of a fragment entity.
type WorldGeometryComponent struct {
	Geometry orb.MultiPolygon
	Bound    orb.Bound
}

// NewWorldGeometry wraps a projected multipolygon with its bound.
func NewWorldGeometry(mp orb.MultiPolygon) *WorldGeometryComponent {
	return &WorldGeometryComponent{Geometry: mp, Bound: mp.Bound()}
}

type resampleTask struct {
	source     orb.MultiPolygon
	transform  Transform
	resolution float64
	maxDepth   int

	polygon, ring, point int

	prevSource orb.Point
	prevWorld  orb.Point
	current    orb.Ring
	polygonOut orb.Polygon
	result     orb.MultiPolygon
	done       bool
}

// Resample projects every point of mp, one point per resumption, adding
// midpoints where a projected segment is longer than resolution. The
// source geometry is not modified.
func Resample(mp orb.MultiPolygon, transform Transform, resolution float64, maxDepth int) multitasking.MicroTask[orb.MultiPolygon] {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	t := &resampleTask{
		source:     mp,
		transform:  transform,
		resolution: resolution,
		maxDepth:   maxDepth,
		result:     make(orb.MultiPolygon, 0, len(mp)),
	}
	t.skipEmpty()
	return t
}

// skipEmpty moves the cursor to the next existing point, closing the rings
// and polygons it walks past.
func (t *resampleTask) skipEmpty() {
	for t.polygon < len(t.source) {
		poly := t.source[t.polygon]
		for t.ring < len(poly) {
			if t.point < len(poly[t.ring]) {
				return
			}
			if len(t.current) > 0 {
				t.polygonOut = append(t.polygonOut, t.current)
			}
			t.current = nil
			t.ring++
			t.point = 0
		}
		if len(t.polygonOut) > 0 {
			t.result = append(t.result, t.polygonOut)
		}
		t.polygonOut = nil
		t.polygon++
		t.ring = 0
	}
	t.done = true
}

func (t *resampleTask) Resume() error {
	if t.done {
		return nil
	}
	p := t.source[t.polygon][t.ring][t.point]
	w := t.transform(p)
	if t.point > 0 {
		t.current = t.subdivide(t.current, t.prevSource, t.prevWorld, p, w, 0)
	}
	t.current = append(t.current, w)
	t.prevSource, t.prevWorld = p, w
	t.point++
	t.skipEmpty()
	return nil
}

func (t *resampleTask) subdivide(out orb.Ring, a, aw, b, bw orb.Point, depth int) orb.Ring {
	if depth >= t.maxDepth || distance(aw, bw) <= t.resolution {
		return out
	}
	mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
	mw := t.transform(mid)
	out = t.subdivide(out, a, aw, mid, mw, depth+1)
	out = append(out, mw)
	return t.subdivide(out, mid, mw, b, bw, depth+1)
}

func (t *resampleTask) Alive() bool { return !t.done }

func (t *resampleTask) Result() orb.MultiPolygon { return t.result }

func distance(a, b orb.Point) float64 {
	return math.Hypot(b[0]-a[0], b[1]-a[1])
}
