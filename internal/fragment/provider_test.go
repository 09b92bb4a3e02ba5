package fragment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/livemap/internal/mapengine/spatial"
	"github.com/zeusync/livemap/internal/mapengine/viewport"
	"github.com/zeusync/livemap/pkg/async"
)

type fakeService struct {
	mu       sync.Mutex
	requests []FetchRequest
	respond  func(FetchRequest) ([]FetchedFeature, error)
	release  chan struct{}
}

func (s *fakeService) Fetch(ctx context.Context, req FetchRequest) ([]FetchedFeature, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.respond == nil {
		return nil, nil
	}
	return s.respond(req)
}

func (s *fakeService) calls() []FetchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FetchRequest(nil), s.requests...)
}

func polygon(x float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 0}}}}
}

func newProvider(t *testing.T, service RemoteTileService, capacity int) *Provider {
	t.Helper()
	cache, err := NewCache(capacity)
	require.NoError(t, err)
	p := NewProvider(service, cache, time.Second, nil)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func await(t *testing.T, p *Provider, f *async.Future[Geometries]) (Geometries, error) {
	t.Helper()
	require.Eventually(t, func() bool {
		p.Dispatch()
		return f.IsDone()
	}, 2*time.Second, time.Millisecond)
	return f.Result()
}

func TestDegenerateInputResolvesEmpty(t *testing.T) {
	service := &fakeService{}
	p := newProvider(t, service, 4)

	for _, f := range []*async.Future[Geometries]{
		p.GetGeometries(nil, []spatial.QuadKey{"0"}),
		p.GetGeometries([]string{"a"}, nil),
	} {
		require.True(t, f.IsDone())
		got, err := f.Result()
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Empty(t, service.calls())
}

func TestGetGeometriesCoalescesMissingPairs(t *testing.T) {
	service := &fakeService{respond: func(req FetchRequest) ([]FetchedFeature, error) {
		return []FetchedFeature{{ID: "a", Tiles: map[spatial.QuadKey]orb.MultiPolygon{"1": polygon(1)}}}, nil
	}}
	p := newProvider(t, service, 16)
	p.Cache().Put(Key{"a", "0"}, polygon(0))
	p.Cache().PutEmpty(Key{"b", "0"})

	got, err := await(t, p, p.GetGeometries([]string{"a", "b"}, []spatial.QuadKey{"0", "1"}))
	require.NoError(t, err)

	calls := service.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"a", "b"}, calls[0].ObjectIDs)
	assert.Equal(t, map[string][]spatial.QuadKey{"a": {"1"}, "b": {"1"}}, calls[0].MissingTilesByObject)
	assert.NotEmpty(t, calls[0].ID.String())

	assert.Equal(t, Geometries{
		"a": {{Key: Key{"a", "0"}, Geometry: polygon(0)}, {Key: Key{"a", "1"}, Geometry: polygon(1)}},
		"b": {},
	}, got)

	_, state := p.Cache().Get(Key{"b", "1"})
	assert.Equal(t, Empty, state, "omitted pairs are cached as empty")
	assert.Equal(t, 0, p.InFlight())
}

func TestCachedRoundTripNeedsNoFetch(t *testing.T) {
	service := &fakeService{respond: func(req FetchRequest) ([]FetchedFeature, error) {
		return []FetchedFeature{{ID: "a", Tiles: map[spatial.QuadKey]orb.MultiPolygon{"2": polygon(2)}}, {ID: "b"}}, nil
	}}
	p := newProvider(t, service, 16)

	first, err := await(t, p, p.GetGeometries([]string{"a", "b"}, []spatial.QuadKey{"2"}))
	require.NoError(t, err)

	again := p.GetGeometries([]string{"a", "b"}, []spatial.QuadKey{"2"})
	require.True(t, again.IsDone())
	second, err := again.Result()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, service.calls(), 1)
	assert.Equal(t, uint64(1), p.Fetches())
}

func TestFailureLeavesCacheUntouched(t *testing.T) {
	boom := errors.New("service unavailable")
	service := &fakeService{respond: func(FetchRequest) ([]FetchedFeature, error) { return nil, boom }}
	p := newProvider(t, service, 16)
	p.Cache().Put(Key{"a", "0"}, polygon(0))

	_, err := await(t, p, p.GetGeometries([]string{"a"}, []spatial.QuadKey{"0", "1"}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, p.Cache().Len())
	assert.False(t, p.Cache().Contains(Key{"a", "1"}))
	assert.Equal(t, uint64(1), p.Failures())
}

func TestIdenticalRequestsShareOneFetch(t *testing.T) {
	service := &fakeService{release: make(chan struct{})}
	p := newProvider(t, service, 16)

	first := p.GetGeometries([]string{"a"}, []spatial.QuadKey{"3"})
	second := p.GetGeometries([]string{"a"}, []spatial.QuadKey{"3"})
	other := p.GetGeometries([]string{"b"}, []spatial.QuadKey{"3"})
	assert.Equal(t, 3, p.InFlight())
	close(service.release)

	for _, f := range []*async.Future[Geometries]{first, second, other} {
		_, err := await(t, p, f)
		require.NoError(t, err)
	}
	assert.Len(t, service.calls(), 2)
	assert.Equal(t, uint64(2), p.Fetches())
}

func TestCloseCancelsRunningFetches(t *testing.T) {
	service := &fakeService{release: make(chan struct{})}
	cache, err := NewCache(4)
	require.NoError(t, err)
	p := NewProvider(service, cache, 0, nil)

	f := p.GetGeometries([]string{"a"}, []spatial.QuadKey{"0"})
	require.NoError(t, p.Close())
	require.True(t, f.IsDone())
	_, err = f.Result()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, cache.Len())

	_, err = p.GetGeometries([]string{"a"}, []spatial.QuadKey{"0"}).Result()
	assert.ErrorIs(t, err, ErrProviderClosed)
	assert.ErrorIs(t, p.Close(), ErrProviderClosed)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewCache(2)
	require.NoError(t, err)
	c.Put(Key{"a", "0"}, polygon(0))
	c.PutEmpty(Key{"b", "0"})

	_, state := c.Get(Key{"a", "0"})
	require.Equal(t, Hit, state)
	c.Put(Key{"c", "0"}, polygon(1))

	assert.False(t, c.Contains(Key{"b", "0"}))
	assert.Equal(t, []Key{{"a", "0"}, {"c", "0"}}, c.Keys())

	evicted, err := c.Resize(1)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, []Key{{"c", "0"}}, c.Keys())
	assert.Equal(t, uint64(2), c.Evictions())

	_, err = c.Resize(0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	_, err = NewCache(0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestCacheCapacity(t *testing.T) {
	assert.Equal(t, 8, CacheCapacity(2, viewport.Size{Width: 512, Height: 300}, 256))
	assert.Equal(t, 3, CacheCapacity(3, viewport.Size{}, 256))
	assert.Equal(t, 1, CacheCapacity(0, viewport.Size{Width: 10, Height: 10}, 256))
}
