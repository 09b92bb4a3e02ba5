package tileservice

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/zeusync/livemap/internal/core/observability/log"
	"github.com/zeusync/livemap/internal/fragment"
	"github.com/zeusync/livemap/internal/mapengine/spatial"
)

var _ fragment.RemoteTileService = (*Memory)(nil)

// Memory serves fragments of registered objects by clipping their geometry
// to the requested quads. Safe for concurrent use.
type Memory struct {
	logger log.Log

	mu      sync.RWMutex
	objects map[string]orb.MultiPolygon
	latency time.Duration
	failure error
	failN   int

	calls atomic.Uint64
}

func NewMemory(logger log.Log) *Memory {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Memory{
		logger:  logger,
		objects: make(map[string]orb.MultiPolygon),
	}
}

// Register stores the lon/lat geometry of an object, replacing any previous one.
func (m *Memory) Register(id string, geometry orb.Geometry) error {
	mp, err := toMultiPolygon(geometry)
	if err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	m.mu.Lock()
	m.objects[id] = mp
	m.mu.Unlock()
	return nil
}

// RegisterBound registers the rectangle of b.
func (m *Memory) RegisterBound(id string, b orb.Bound) {
	m.mu.Lock()
	m.objects[id] = orb.MultiPolygon{b.ToPolygon()}
	m.mu.Unlock()
}

// LoadGeoJSON registers every polygonal feature of a feature collection.
// The id is taken from the feature id or, when empty, from idProperty.
func (m *Memory) LoadGeoJSON(r io.Reader, idProperty string) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	ids := make([]string, 0, len(fc.Features))
	for i, f := range fc.Features {
		id := featureID(f, idProperty)
		if id == "" {
			return ids, fmt.Errorf("feature %d: %w", i, ErrMissingID)
		}
		if err = m.Register(id, f.Geometry); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func featureID(f *geojson.Feature, idProperty string) string {
	if f.ID != nil {
		if id := fmt.Sprint(f.ID); id != "" {
			return id
		}
	}
	if idProperty == "" {
		return ""
	}
	return f.Properties.MustString(idProperty, "")
}

func toMultiPolygon(g orb.Geometry) (orb.MultiPolygon, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	case orb.MultiPolygon:
		return v, nil
	case orb.Bound:
		return orb.MultiPolygon{v.ToPolygon()}, nil
	case orb.Ring:
		return orb.MultiPolygon{orb.Polygon{v}}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}
}

// SetLatency delays every Fetch.
func (m *Memory) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// FailNext makes the next n fetches return err. A negative n fails every
// fetch until FailNext(0, nil).
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	m.failN = n
	m.failure = err
	m.mu.Unlock()
}

// Calls reports how many times Fetch was called.
func (m *Memory) Calls() uint64 { return m.calls.Load() }

func (m *Memory) Fetch(ctx context.Context, req fragment.FetchRequest) ([]fragment.FetchedFeature, error) {
	m.calls.Add(1)

	latency, err := m.takeFailure()
	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	features := make([]fragment.FetchedFeature, 0, len(req.ObjectIDs))
	for _, id := range req.ObjectIDs {
		geometry, ok := m.objects[id]
		if !ok {
			continue
		}
		feature := fragment.FetchedFeature{ID: id}
		for _, quad := range req.MissingTilesByObject[id] {
			clipped, err := clipToQuad(geometry, quad)
			if err != nil {
				return nil, err
			}
			if len(clipped) == 0 {
				continue
			}
			if feature.Tiles == nil {
				feature.Tiles = make(map[spatial.QuadKey]orb.MultiPolygon)
			}
			feature.Tiles[quad] = clipped
		}
		features = append(features, feature)
	}

	m.logger.Debug("tiles served",
		log.String("request_id", req.ID.String()),
		log.Int("objects", len(features)),
	)
	return features, nil
}

func (m *Memory) takeFailure() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failN == 0 {
		return m.latency, nil
	}
	if m.failN > 0 {
		m.failN--
	}
	return m.latency, m.failure
}

func clipToQuad(geometry orb.MultiPolygon, quad spatial.QuadKey) (orb.MultiPolygon, error) {
	bound, err := quad.Bound()
	if err != nil {
		return nil, err
	}
	if !bound.Intersects(geometry.Bound()) {
		return nil, nil
	}
	clipped := clip.MultiPolygon(bound, geometry.Clone())
	result := clipped[:0]
	for _, polygon := range clipped {
		// Shapes touching the quad along an edge clip to zero area.
		if planar.Area(polygon) > 0 {
			result = append(result, polygon)
		}
	}
	return result, nil
}
