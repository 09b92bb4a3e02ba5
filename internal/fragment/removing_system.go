package fragment

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/system"
)

type retainedFragment struct {
	key    Key
	entity ecs.EntityID
}

// RemovingSystem releases the entities of obsolete fragments. Up to limit
// projected fragments are kept alive so that scrolling back emits them
// again without a download; the least recently hidden ones go first.
type RemovingSystem struct {
	limit     int
	retained  *lru.LRU[Key, ecs.EntityID]
	evicted   []retainedFragment
	reclaimed map[Key]struct{}
}

func NewRemovingSystem(limit int) (*RemovingSystem, error) {
	s := &RemovingSystem{limit: limit, reclaimed: make(map[Key]struct{})}
	if limit > 0 {
		l, err := lru.NewLRU[Key, ecs.EntityID](limit, func(k Key, id ecs.EntityID) {
			s.evicted = append(s.evicted, retainedFragment{key: k, entity: id})
		})
		if err != nil {
			return nil, err
		}
		s.retained = l
	}
	return s, nil
}

func (s *RemovingSystem) Name() string { return "fragments_removing" }

func (s *RemovingSystem) Update(ctx *system.Context, _ time.Duration) error {
	r := ctx.Registry
	changed, err := singleton[ChangedFragmentsComponent](r)
	if err != nil {
		return err
	}
	streaming, err := singleton[StreamingFragmentsComponent](r)
	if err != nil {
		return err
	}
	cached, err := singleton[CachedFragmentsComponent](r)
	if err != nil {
		return err
	}
	empty, err := singleton[EmptyFragmentsComponent](r)
	if err != nil {
		return err
	}

	if s.retained != nil {
		for _, k := range changed.Requested {
			if s.retained.Contains(k) {
				s.reclaimed[k] = struct{}{}
				s.retained.Remove(k)
			}
		}
	}

	for _, k := range changed.Obsolete {
		delete(empty.Keys, k)
		if id, ok := streaming.Entities[k]; ok {
			r.MarkForDestruction(id)
			delete(streaming.Entities, k)
		}
		id, ok := cached.Entities[k]
		if !ok {
			continue
		}
		if s.retained != nil {
			s.retained.Add(k, id)
			continue
		}
		r.MarkForDestruction(id)
		delete(cached.Entities, k)
	}

	for _, f := range s.evicted {
		if _, ok := s.reclaimed[f.key]; ok {
			continue
		}
		if cached.Entities[f.key] == f.entity {
			delete(cached.Entities, f.key)
		}
		r.MarkForDestruction(f.entity)
	}
	s.evicted = s.evicted[:0]
	clear(s.reclaimed)
	return nil
}

// Retained is the number of hidden fragments kept alive.
func (s *RemovingSystem) Retained() int {
	if s.retained == nil {
		return 0
	}
	return s.retained.Len()
}
