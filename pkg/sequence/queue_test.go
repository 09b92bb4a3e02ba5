package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](pq *PriorityQueue[T]) []T {
	var out []T
	for !pq.IsEmpty() {
		v, _ := pq.Dequeue()
		out = append(out, v)
	}
	return out
}

func TestPriorityQueueOrder(t *testing.T) {
	pq := NewPriorityQueue[string]()
	pq.Enqueue("far-a", 2)
	pq.Enqueue("near-a", 0)
	pq.Enqueue("far-b", 2)
	pq.Enqueue("near-b", 0)
	pq.Enqueue("mid", 1)

	head, ok := pq.Peek()
	require.True(t, ok)
	assert.Equal(t, "near-a", head)
	assert.Equal(t, []string{"near-a", "near-b", "mid", "far-a", "far-b"}, drain(pq))

	_, ok = pq.Dequeue()
	assert.False(t, ok)
}

func TestPriorityQueueRemoveAndReprioritize(t *testing.T) {
	pq := NewPriorityQueue[int]()
	items := make([]*Item[int], 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, pq.Enqueue(i, i))
	}

	assert.True(t, pq.Remove(items[2]))
	assert.False(t, pq.Remove(items[2]))

	pq.Reprioritize(func(v int) int { return -v })
	assert.Equal(t, []int{4, 3, 1, 0}, drain(pq))
	assert.False(t, pq.Remove(items[0]))
}
