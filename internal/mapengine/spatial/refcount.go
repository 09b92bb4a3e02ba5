package spatial

import (
	"fmt"
	"maps"
	"slices"
)

// RefCounter counts how many visible cells need each quad. A quad is
// present iff its count is positive.
type RefCounter struct {
	counts map[QuadKey]int
}

func NewRefCounter() *RefCounter {
	return &RefCounter{counts: make(map[QuadKey]int)}
}

// Increment reports whether q went from zero to one.
func (rc *RefCounter) Increment(q QuadKey) bool {
	rc.counts[q]++
	return rc.counts[q] == 1
}

// Decrement reports whether q went from one to zero and was dropped.
func (rc *RefCounter) Decrement(q QuadKey) (bool, error) {
	n, ok := rc.counts[q]
	if !ok {
		return false, fmt.Errorf("%q: %w", string(q), ErrRefCountUnderflow)
	}
	if n == 1 {
		delete(rc.counts, q)
		return true, nil
	}
	rc.counts[q] = n - 1
	return false, nil
}

func (rc *RefCounter) Count(q QuadKey) int { return rc.counts[q] }

func (rc *RefCounter) Contains(q QuadKey) bool {
	_, ok := rc.counts[q]
	return ok
}

func (rc *RefCounter) Len() int { return len(rc.counts) }

// Snapshot copies the current counts.
func (rc *RefCounter) Snapshot() map[QuadKey]int {
	return maps.Clone(rc.counts)
}

// Keys returns the referenced quads in lexical order.
func (rc *RefCounter) Keys() []QuadKey {
	return slices.Sorted(maps.Keys(rc.counts))
}

// QuadDelta lists the quads whose reference count crossed zero.
type QuadDelta struct {
	ToLoad   []QuadKey
	ToRemove []QuadKey
}

func (d QuadDelta) Empty() bool {
	return len(d.ToLoad) == 0 && len(d.ToRemove) == 0
}

// SyncQuads applies all increments, then all decrements. Duplicates count
// separately. A quad loaded and released in the same call appears in both
// lists. On underflow the increments and the decrements before the failing
// quad stay applied.
func SyncQuads(rc *RefCounter, newQuads, obsoleteQuads []QuadKey) (QuadDelta, error) {
	var delta QuadDelta
	for _, q := range newQuads {
		if rc.Increment(q) {
			delta.ToLoad = append(delta.ToLoad, q)
		}
	}
	for _, q := range obsoleteQuads {
		removed, err := rc.Decrement(q)
		if err != nil {
			return delta, err
		}
		if removed {
			delta.ToRemove = append(delta.ToRemove, q)
		}
	}
	return delta, nil
}
