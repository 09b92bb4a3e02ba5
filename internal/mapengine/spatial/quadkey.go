package spatial

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxLatitude is the latitude limit of the square Web Mercator world.
const MaxLatitude = 85.05112877980659

// MaxZoom is the deepest quad tree level.
const MaxZoom = 30

// boundInset keeps bounds lying exactly on tile edges from touching the
// neighbouring tiles.
const boundInset = 1e-9

// QuadKey addresses a node of the tile quad tree. Each digit picks one of
// four children; the number of digits is the zoom. The empty key is the
// whole world.
type QuadKey string

// QuadKeyOf returns the quad key of a web mercator tile.
func QuadKeyOf(t maptile.Tile) QuadKey {
	var sb strings.Builder
	sb.Grow(int(t.Z))
	for i := int(t.Z); i > 0; i-- {
		mask := uint32(1) << (i - 1)
		digit := byte('0')
		if t.X&mask != 0 {
			digit++
		}
		if t.Y&mask != 0 {
			digit += 2
		}
		sb.WriteByte(digit)
	}
	return QuadKey(sb.String())
}

func (q QuadKey) Zoom() int { return len(q) }

func (q QuadKey) Valid() bool {
	for i := 0; i < len(q); i++ {
		if q[i] < '0' || q[i] > '3' {
			return false
		}
	}
	return len(q) <= MaxZoom
}

// Tile decodes the key into tile coordinates.
func (q QuadKey) Tile() (maptile.Tile, error) {
	if !q.Valid() {
		return maptile.Tile{}, fmt.Errorf("%q: %w", string(q), ErrInvalidQuadKey)
	}
	var x, y uint32
	for i := 0; i < len(q); i++ {
		x <<= 1
		y <<= 1
		d := q[i] - '0'
		x |= uint32(d & 1)
		y |= uint32(d >> 1)
	}
	return maptile.New(x, y, maptile.Zoom(len(q))), nil
}

// Bound returns the lon/lat rectangle of the quad.
func (q QuadKey) Bound() (orb.Bound, error) {
	t, err := q.Tile()
	if err != nil {
		return orb.Bound{}, err
	}
	return t.Bound(), nil
}

// Parent returns the enclosing quad. The world has no parent.
func (q QuadKey) Parent() QuadKey {
	if len(q) == 0 {
		return q
	}
	return q[:len(q)-1]
}

// Covering returns the quads of the given zoom overlapping a lon/lat bound,
// row by row from north-west.
func Covering(b orb.Bound, zoom int) []QuadKey {
	if zoom < 0 || zoom > MaxZoom {
		return nil
	}
	z := maptile.Zoom(zoom)
	minLon := clampLon(b.Min.Lon() + boundInset)
	maxLon := clampLon(b.Max.Lon() - boundInset)
	minLat := clampLat(b.Min.Lat() + boundInset)
	maxLat := clampLat(b.Max.Lat() - boundInset)
	if minLon > maxLon || minLat > maxLat {
		return nil
	}

	nw := maptile.At(orb.Point{minLon, maxLat}, z)
	se := maptile.At(orb.Point{maxLon, minLat}, z)
	last := uint32(1)<<zoom - 1
	minX, maxX := min(nw.X, last), min(se.X, last)
	minY, maxY := min(nw.Y, last), min(se.Y, last)

	quads := make([]QuadKey, 0, int(maxX-minX+1)*int(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			quads = append(quads, QuadKeyOf(maptile.New(x, y, z)))
		}
	}
	return quads
}

func clampLon(lon float64) float64 {
	return math.Max(-180, math.Min(180-boundInset, lon))
}

func clampLat(lat float64) float64 {
	return math.Max(-MaxLatitude+boundInset, math.Min(MaxLatitude-boundInset, lat))
}
