package fragment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/zeusync/livemap/internal/mapengine/spatial"
)

// Key identifies the geometry of one map object inside one quad.
type Key struct {
	ObjectID string
	Quad     spatial.QuadKey
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s", k.ObjectID, k.Quad)
}

// Fragment is the lon/lat geometry of a map object clipped to a quad.
type Fragment struct {
	Key
	Geometry orb.MultiPolygon
}

// FetchRequest asks the tile service for the listed tiles of each object.
type FetchRequest struct {
	ID                   uuid.UUID
	ObjectIDs            []string
	MissingTilesByObject map[string][]spatial.QuadKey
}

// FetchedFeature is the answer for one object. Tiles without geometry may
// be omitted; Tiles may be nil.
type FetchedFeature struct {
	ID    string
	Tiles map[spatial.QuadKey]orb.MultiPolygon
}

// RemoteTileService is the remote source of fragments. Fetch is called from
// a provider goroutine and must honour ctx.
type RemoteTileService interface {
	Fetch(ctx context.Context, req FetchRequest) ([]FetchedFeature, error)
}
