package sequence

import "container/heap"

// Item is a queued value. Keep it to remove or reprioritize the value later.
type Item[T any] struct {
	Value    T
	Priority int
	seq      uint64
	index    int
}

type itemHeap[T any] struct {
	items []*Item[T]
}

func (h *itemHeap[T]) Len() int {
	return len(h.items)
}

func (h *itemHeap[T]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}

func (h *itemHeap[T]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	item := x.(*Item[T])
	item.index = len(h.items)
	h.items = append(h.items, item)
}

func (h *itemHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	h.items = old[0 : n-1]
	return item
}

// PriorityQueue pops the lowest priority first. Equal priorities pop in
// insertion order.
type PriorityQueue[T any] struct {
	h   itemHeap[T]
	seq uint64
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{}
	heap.Init(&pq.h)
	return pq
}

func (pq *PriorityQueue[T]) Enqueue(value T, priority int) *Item[T] {
	pq.seq++
	item := &Item[T]{
		Value:    value,
		Priority: priority,
		seq:      pq.seq,
	}
	heap.Push(&pq.h, item)
	return item
}

func (pq *PriorityQueue[T]) Dequeue() (T, bool) {
	if pq.h.Len() == 0 {
		var zero T
		return zero, false
	}
	item := heap.Pop(&pq.h).(*Item[T])
	return item.Value, true
}

func (pq *PriorityQueue[T]) Peek() (T, bool) {
	if pq.h.Len() == 0 {
		var zero T
		return zero, false
	}
	return pq.h.items[0].Value, true
}

// Remove drops a queued item and reports whether it was still queued.
func (pq *PriorityQueue[T]) Remove(item *Item[T]) bool {
	if item == nil || item.index < 0 || item.index >= pq.h.Len() || pq.h.items[item.index] != item {
		return false
	}
	heap.Remove(&pq.h, item.index)
	return true
}

// Reprioritize recomputes every priority, keeping insertion order for ties.
func (pq *PriorityQueue[T]) Reprioritize(priority func(T) int) {
	for _, item := range pq.h.items {
		item.Priority = priority(item.Value)
	}
	heap.Init(&pq.h)
}

func (pq *PriorityQueue[T]) Len() int {
	return pq.h.Len()
}

func (pq *PriorityQueue[T]) IsEmpty() bool {
	return pq.h.Len() == 0
}
