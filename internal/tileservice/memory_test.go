package tileservice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/livemap/internal/fragment"
	"github.com/zeusync/livemap/internal/mapengine/spatial"
)

func request(ids []string, quads ...spatial.QuadKey) fragment.FetchRequest {
	missing := make(map[string][]spatial.QuadKey, len(ids))
	for _, id := range ids {
		missing[id] = quads
	}
	return fragment.FetchRequest{ID: uuid.New(), ObjectIDs: ids, MissingTilesByObject: missing}
}

func TestFetchClipsToQuads(t *testing.T) {
	m := NewMemory(nil)
	region := orb.Bound{Min: orb.Point{-10, 10}, Max: orb.Point{-5, 20}}
	m.RegisterBound("lake", region)

	features, err := m.Fetch(context.Background(), request([]string{"lake", "unknown"}, "0", "1", "2", "3"))
	require.NoError(t, err)
	require.Len(t, features, 1, "unknown objects are omitted")

	lake := features[0]
	assert.Equal(t, "lake", lake.ID)
	require.Len(t, lake.Tiles, 1)
	require.Contains(t, lake.Tiles, spatial.QuadKey("0"))
	assert.InDeltaSlice(t,
		[]float64{region.Min.X(), region.Min.Y(), region.Max.X(), region.Max.Y()},
		boundValues(lake.Tiles["0"].Bound()), 1e-9)
	assert.Equal(t, uint64(1), m.Calls())
}

func TestFetchSplitsAcrossQuads(t *testing.T) {
	m := NewMemory(nil)
	m.RegisterBound("strip", orb.Bound{Min: orb.Point{-10, 10}, Max: orb.Point{10, 20}})

	features, err := m.Fetch(context.Background(), request([]string{"strip"}, "0", "1"))
	require.NoError(t, err)
	require.Len(t, features, 1)
	require.Len(t, features[0].Tiles, 2)

	west := features[0].Tiles["0"].Bound()
	east := features[0].Tiles["1"].Bound()
	assert.InDelta(t, 0, west.Max.X(), 1e-9)
	assert.InDelta(t, 0, east.Min.X(), 1e-9)
}

func TestFetchWithoutOverlapHasNilTiles(t *testing.T) {
	m := NewMemory(nil)
	m.RegisterBound("island", orb.Bound{Min: orb.Point{100, -20}, Max: orb.Point{110, -10}})

	features, err := m.Fetch(context.Background(), request([]string{"island"}, "0"))
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Nil(t, features[0].Tiles)
}

func TestLoadGeoJSON(t *testing.T) {
	m := NewMemory(nil)
	ids, err := m.LoadGeoJSON(strings.NewReader(`{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "park",
     "geometry": {"type": "Polygon", "coordinates": [[[-10,10],[-5,10],[-5,20],[-10,20],[-10,10]]]},
     "properties": {}},
    {"type": "Feature",
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[20,-20],[30,-20],[30,-10],[20,-20]]]]},
     "properties": {"name": "bay"}}
  ]
}`), "name")
	require.NoError(t, err)
	assert.Equal(t, []string{"park", "bay"}, ids)

	features, err := m.Fetch(context.Background(), request([]string{"bay"}, "3"))
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Contains(t, features[0].Tiles, spatial.QuadKey("3"))
}

func TestLoadGeoJSONRejectsPoints(t *testing.T) {
	m := NewMemory(nil)
	_, err := m.LoadGeoJSON(strings.NewReader(`{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "pin", "geometry": {"type": "Point", "coordinates": [1, 2]}, "properties": {}}
  ]
}`), "")
	assert.ErrorIs(t, err, ErrUnsupportedGeometry)
}

func TestFailNext(t *testing.T) {
	m := NewMemory(nil)
	m.RegisterBound("lake", orb.Bound{Min: orb.Point{-10, 10}, Max: orb.Point{-5, 20}})
	boom := errors.New("boom")
	m.FailNext(1, boom)

	_, err := m.Fetch(context.Background(), request([]string{"lake"}, "0"))
	assert.ErrorIs(t, err, boom)

	_, err = m.Fetch(context.Background(), request([]string{"lake"}, "0"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), m.Calls())
}

func TestLatencyHonoursContext(t *testing.T) {
	m := NewMemory(nil)
	m.SetLatency(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Fetch(ctx, request([]string{"lake"}, "0"))
	assert.ErrorIs(t, err, context.Canceled)
}

func boundValues(b orb.Bound) []float64 {
	return []float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
}
