package fragment

import (
	"cmp"
	"maps"
	"slices"

	"github.com/paulmach/orb"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/pkg/async"
	"github.com/zeusync/livemap/pkg/sequence"
)

// RegionComponent marks an entity as a map object whose fragments are
// streamed for the visible quads.
type RegionComponent struct {
	ObjectID string
}

// FragmentComponent is attached to the entity rendering one fragment.
type FragmentComponent struct {
	Key Key
}

// ChangedFragmentsComponent holds the fragments that became needed or
// obsolete during the current frame.
type ChangedFragmentsComponent struct {
	Requested []Key
	Obsolete  []Key
}

func (c *ChangedFragmentsComponent) Reset() {
	c.Requested, c.Obsolete = nil, nil
}

type download struct {
	keys   []Key
	future *async.Future[Geometries]
}

// DownloadingFragmentsComponent tracks queued and running downloads.
// Downloaded holds the geometries received during the current frame.
type DownloadingFragmentsComponent struct {
	Downloaded map[Key]orb.MultiPolygon

	queue  *sequence.PriorityQueue[Key]
	queued map[Key]*sequence.Item[Key]
	active []download
}

func NewDownloadingFragmentsComponent() *DownloadingFragmentsComponent {
	return &DownloadingFragmentsComponent{
		Downloaded: make(map[Key]orb.MultiPolygon),
		queue:      sequence.NewPriorityQueue[Key](),
		queued:     make(map[Key]*sequence.Item[Key]),
	}
}

func (c *DownloadingFragmentsComponent) Queued() int { return c.queue.Len() }

// Active is the number of running GetGeometries requests.
func (c *DownloadingFragmentsComponent) Active() int { return len(c.active) }

// StreamingFragmentsComponent maps fragments being downloaded or projected
// to their entity.
type StreamingFragmentsComponent struct {
	Entities map[Key]ecs.EntityID
}

// CachedFragmentsComponent maps projected fragments to their entity.
type CachedFragmentsComponent struct {
	Entities map[Key]ecs.EntityID
}

// Keys returns the cached keys sorted by object and quad.
func (c *CachedFragmentsComponent) Keys() []Key {
	return slices.SortedFunc(maps.Keys(c.Entities), compareKeys)
}

// EmittedFragmentsComponent lists the fragments that became ready during
// the current frame.
type EmittedFragmentsComponent struct {
	Emitted []Key
}

// EmptyFragmentsComponent holds the fragments known to have no geometry.
type EmptyFragmentsComponent struct {
	Keys map[Key]struct{}
}

func compareKeys(a, b Key) int {
	return cmp.Or(cmp.Compare(a.ObjectID, b.ObjectID), cmp.Compare(a.Quad, b.Quad))
}

func sortedKeys(set map[Key]struct{}) []Key {
	return slices.SortedFunc(maps.Keys(set), compareKeys)
}

func zoomDistance(k Key, zoom int) int {
	d := k.Quad.Zoom() - zoom
	if d < 0 {
		return -d
	}
	return d
}
