package ecs

import "reflect"

// ComponentType identifies a component store inside a Registry.
type ComponentType = reflect.Type

// TypeOf returns the ComponentType of T.
func TypeOf[T any]() ComponentType {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// storage is the untyped view of a Store the Registry needs for queries and
// bulk removal.
type storage interface {
	Remove(id EntityID)
	Has(id EntityID) bool
	Len() int
	IDs() []EntityID
}

// Store is a typed map store for one component type.
type Store[T any] struct {
	data map[EntityID]*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{
		data: make(map[EntityID]*T, 64),
	}
}

func (s *Store[T]) Set(id EntityID, c *T) {
	s.data[id] = c
}

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *Store[T]) Remove(id EntityID) {
	delete(s.data, id)
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Len() int {
	return len(s.data)
}

func (s *Store[T]) IDs() []EntityID {
	ids := make([]EntityID, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}
