package fragment

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/zeusync/livemap/internal/core/observability/log"
	"github.com/zeusync/livemap/internal/mapengine/spatial"
	"github.com/zeusync/livemap/pkg/async"
)

// Geometries maps an object id to its fragments in the order of the
// requested quads. Quads known to be empty are skipped.
type Geometries = map[string][]Fragment

type pendingRequest struct {
	id        uuid.UUID
	objectIDs []string
	quads     []spatial.QuadKey
	missing   map[string][]spatial.QuadKey
	known     map[Key]Fragment
	future    *async.Future[Geometries]
	started   time.Time
}

type completion struct {
	request  *pendingRequest
	features []FetchedFeature
	shared   bool
	err      error
}

// Provider serves fragments from the cache and fetches the missing ones
// from the tile service. GetGeometries and Dispatch must be called from the
// frame goroutine; fetches run on their own goroutines and their outcome
// is applied by the next Dispatch.
type Provider struct {
	service RemoteTileService
	cache   *Cache
	logger  log.Log
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	group  singleflight.Group

	mu      sync.Mutex
	mailbox []completion
	closed  bool

	inFlight atomic.Int64
	fetches  atomic.Uint64
	failures atomic.Uint64
}

// NewProvider fetches with a per request timeout; zero disables it.
func NewProvider(service RemoteTileService, cache *Cache, timeout time.Duration, logger log.Log) *Provider {
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		service: service,
		cache:   cache,
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *Provider) Cache() *Cache { return p.cache }

// GetGeometries returns the fragments of every object in every quad. When
// all of them are cached, the future is already resolved. Otherwise one
// request listing only the missing pairs is sent; identical requests in
// flight share a single fetch.
func (p *Provider) GetGeometries(objectIDs []string, quads []spatial.QuadKey) *async.Future[Geometries] {
	objectIDs = dedup(objectIDs)
	quads = dedup(quads)
	if len(objectIDs) == 0 || len(quads) == 0 {
		return async.Resolved(Geometries{})
	}

	req := &pendingRequest{
		objectIDs: objectIDs,
		quads:     quads,
		missing:   make(map[string][]spatial.QuadKey),
		known:     make(map[Key]Fragment),
	}
	var missingObjects []string
	for _, id := range objectIDs {
		for _, q := range quads {
			k := Key{ObjectID: id, Quad: q}
			switch f, state := p.cache.Get(k); state {
			case Hit:
				req.known[k] = f
			case Empty:
				req.known[k] = Fragment{Key: k}
			default:
				if len(req.missing[id]) == 0 {
					missingObjects = append(missingObjects, id)
				}
				req.missing[id] = append(req.missing[id], q)
			}
		}
	}
	if len(missingObjects) == 0 {
		return async.Resolved(req.assemble(nil))
	}

	req.future = async.NewFuture[Geometries]()
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		req.future.Reject(ErrProviderClosed)
		return req.future
	}

	req.id = uuid.New()
	req.started = time.Now()
	fetch := FetchRequest{ID: req.id, ObjectIDs: missingObjects, MissingTilesByObject: req.missing}
	ch := p.group.DoChan(requestKey(req.missing), func() (any, error) {
		p.fetches.Add(1)
		return p.fetch(fetch)
	})
	p.inFlight.Add(1)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		res := <-ch
		features, _ := res.Val.([]FetchedFeature)
		p.post(completion{request: req, features: features, shared: res.Shared, err: res.Err})
	}()
	return req.future
}

func (p *Provider) fetch(req FetchRequest) ([]FetchedFeature, error) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	p.logger.Debug("fetching fragments",
		log.Stringer("request_id", req.ID),
		log.Int("objects", len(req.ObjectIDs)),
	)
	features, err := p.service.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.ID, err)
	}
	return features, nil
}

func (p *Provider) post(c completion) {
	p.mu.Lock()
	p.mailbox = append(p.mailbox, c)
	p.mu.Unlock()
}

// Dispatch applies finished fetches to the cache and completes their
// futures. It returns the number of completed requests.
func (p *Provider) Dispatch() int {
	p.mu.Lock()
	done := p.mailbox
	p.mailbox = nil
	p.mu.Unlock()

	for _, c := range done {
		p.inFlight.Add(-1)
		req := c.request
		if c.err != nil {
			p.failures.Add(1)
			p.logger.Warn("fragment fetch failed",
				log.Stringer("request_id", req.id),
				log.Error(c.err),
			)
			req.future.Reject(c.err)
			continue
		}

		fetched := p.apply(req, c.features)
		p.logger.Debug("fragments received",
			log.Stringer("request_id", req.id),
			log.Int("fragments", len(fetched)),
			log.Bool("shared", c.shared),
			log.Duration("took", time.Since(req.started)),
		)
		req.future.Resolve(req.assemble(fetched))
	}
	return len(done)
}

// apply writes the requested pairs of a response to the cache. Pairs the
// response omits are stored as empty.
func (p *Provider) apply(req *pendingRequest, features []FetchedFeature) map[Key]Fragment {
	byID := make(map[string]FetchedFeature, len(features))
	for _, f := range features {
		byID[f.ID] = f
	}

	fetched := make(map[Key]Fragment)
	for id, quads := range req.missing {
		feature := byID[id]
		for _, q := range quads {
			k := Key{ObjectID: id, Quad: q}
			geometry := feature.Tiles[q]
			p.cache.Put(k, geometry)
			fetched[k] = Fragment{Key: k, Geometry: geometry}
		}
	}
	return fetched
}

func (r *pendingRequest) assemble(fetched map[Key]Fragment) Geometries {
	out := make(Geometries, len(r.objectIDs))
	for _, id := range r.objectIDs {
		fragments := make([]Fragment, 0, len(r.quads))
		for _, q := range r.quads {
			k := Key{ObjectID: id, Quad: q}
			f, ok := r.known[k]
			if !ok {
				f, ok = fetched[k]
			}
			if ok && len(f.Geometry) > 0 {
				fragments = append(fragments, f)
			}
		}
		out[id] = fragments
	}
	return out
}

// InFlight is the number of requests whose outcome was not dispatched yet.
func (p *Provider) InFlight() int { return int(p.inFlight.Load()) }

// Fetches is the number of calls made to the tile service.
func (p *Provider) Fetches() uint64 { return p.fetches.Load() }

func (p *Provider) Failures() uint64 { return p.failures.Load() }

// Close cancels running fetches, waits for them and completes every
// pending future.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProviderClosed
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.Dispatch()
	return nil
}

func requestKey(missing map[string][]spatial.QuadKey) string {
	ids := make([]string, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	d := xxhash.New()
	for _, id := range ids {
		quads := slices.Clone(missing[id])
		slices.Sort(quads)
		_, _ = d.WriteString(id)
		for _, q := range quads {
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(string(q))
		}
		_, _ = d.WriteString("\n")
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

func dedup[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
