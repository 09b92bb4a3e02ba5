package ecs

import (
	"fmt"
)

// Registry owns the entity pool and one store per component type. It is not
// safe for concurrent use: all mutation happens on the frame goroutine.
type Registry struct {
	pool         *EntityPool
	stores       map[ComponentType]storage
	names        map[EntityID]string
	destroyQueue []EntityID
}

func NewRegistry() *Registry {
	return &Registry{
		pool:         NewEntityPool(),
		stores:       make(map[ComponentType]storage, 32),
		names:        make(map[EntityID]string, 64),
		destroyQueue: make([]EntityID, 0, 16),
	}
}

// CreateEntity allocates a new entity. The name is kept for debug output only.
func (r *Registry) CreateEntity(name string) EntityID {
	id := r.pool.Create()
	if name != "" {
		r.names[id] = name
	}
	return id
}

func (r *Registry) Alive(id EntityID) bool {
	return r.pool.Alive(id)
}

func (r *Registry) Name(id EntityID) string {
	return r.names[id]
}

// EntitiesCount returns the number of live entities.
func (r *Registry) EntitiesCount() int {
	return r.pool.Len()
}

// DestroyEntity releases every component attached to id and frees the id.
func (r *Registry) DestroyEntity(id EntityID) {
	if !r.pool.Destroy(id) {
		return
	}
	for _, s := range r.stores {
		s.Remove(id)
	}
	delete(r.names, id)
}

// MarkForDestruction queues an entity for end-of-frame destruction.
func (r *Registry) MarkForDestruction(id EntityID) {
	r.destroyQueue = append(r.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued entities. Called by the scheduler at
// the end of each frame.
func (r *Registry) FlushDestroyQueue() int {
	n := len(r.destroyQueue)
	for _, id := range r.destroyQueue {
		r.DestroyEntity(id)
	}
	r.destroyQueue = r.destroyQueue[:0]
	return n
}

// Query returns every live entity owning all of the given component types.
// Iteration order is undefined.
func (r *Registry) Query(types ...ComponentType) []EntityID {
	if len(types) == 0 {
		return nil
	}
	smallest, ok := r.stores[types[0]]
	if !ok {
		return nil
	}
	others := make([]storage, 0, len(types)-1)
	for _, t := range types[1:] {
		s, ok := r.stores[t]
		if !ok {
			return nil
		}
		if s.Len() < smallest.Len() {
			others = append(others, smallest)
			smallest = s
		} else {
			others = append(others, s)
		}
	}

	result := make([]EntityID, 0, smallest.Len())
next:
	for _, id := range smallest.IDs() {
		for _, s := range others {
			if !s.Has(id) {
				continue next
			}
		}
		result = append(result, id)
	}
	return result
}

// Contains reports whether id owns a component of type t.
func (r *Registry) Contains(id EntityID, t ComponentType) bool {
	s, ok := r.stores[t]
	return ok && s.Has(id)
}

// Count returns the number of entities owning a component of type t.
func (r *Registry) Count(t ComponentType) int {
	if s, ok := r.stores[t]; ok {
		return s.Len()
	}
	return 0
}

// StoreOf returns the store for T, creating it on first use.
func StoreOf[T any](r *Registry) *Store[T] {
	t := TypeOf[T]()
	if s, ok := r.stores[t]; ok {
		return s.(*Store[T])
	}
	s := NewStore[T]()
	r.stores[t] = s
	return s
}

// Add attaches c to id, replacing any previous component of the same type.
func Add[T any](r *Registry, id EntityID, c *T) error {
	if !r.pool.Alive(id) {
		return fmt.Errorf("add %s to %d: %w", TypeOf[T](), id, ErrEntityNotAlive)
	}
	StoreOf[T](r).Set(id, c)
	return nil
}

// Tag attaches a zero-value marker component of type T.
func Tag[T any](r *Registry, id EntityID) error {
	return Add(r, id, new(T))
}

func Get[T any](r *Registry, id EntityID) (*T, bool) {
	return StoreOf[T](r).Get(id)
}

// MustGet returns the component or ErrComponentNotFound.
func MustGet[T any](r *Registry, id EntityID) (*T, error) {
	c, ok := StoreOf[T](r).Get(id)
	if !ok {
		return nil, fmt.Errorf("%s on entity %d (%s): %w", TypeOf[T](), id, r.Name(id), ErrComponentNotFound)
	}
	return c, nil
}

func Has[T any](r *Registry, id EntityID) bool {
	return StoreOf[T](r).Has(id)
}

func Remove[T any](r *Registry, id EntityID) {
	StoreOf[T](r).Remove(id)
}

// Each iterates over every entity owning T.
func Each[T any](r *Registry, fn func(EntityID, *T)) {
	StoreOf[T](r).Each(fn)
}

// Singleton returns the only entity owning T together with the component.
func Singleton[T any](r *Registry) (EntityID, *T, error) {
	s := StoreOf[T](r)
	switch s.Len() {
	case 0:
		return 0, nil, fmt.Errorf("%s: %w", TypeOf[T](), ErrSingletonNotFound)
	case 1:
		for id, c := range s.data {
			return id, c, nil
		}
	}
	return 0, nil, fmt.Errorf("%s: %w", TypeOf[T](), ErrSingletonAmbiguous)
}
