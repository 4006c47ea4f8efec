// Package timer implements a min-heap timer wheel keyed by connection id,
// used to close idle connections after their keep-alive window expires.
package timer

import (
	"container/heap"
	"time"
)

// Callback runs when a timer node expires.
type Callback func()

type node struct {
	id      int
	expires time.Time
	cb      Callback
	index   int // position in the heap, maintained by heap.Interface
}

type nodeHeap []*node

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].expires.Before(h[j].expires) }
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *nodeHeap) Push(x any) {
	n := x.(*node)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Heap is a min-heap of timer nodes keyed by an opaque integer id (a
// connection fd). Only one node may exist per id at a time; Add on an
// existing id adjusts it in place rather than creating a duplicate.
type Heap struct {
	h      nodeHeap
	byID   map[int]*node
}

// New returns an empty timer heap.
func New() *Heap {
	return &Heap{byID: make(map[int]*node)}
}

// Add schedules cb to run after timeout, keyed by id. If id already has a
// node, its expiry and callback are replaced and the heap position is
// re-sifted in both directions (the caller may be extending or shortening
// the deadline).
func (t *Heap) Add(id int, timeout time.Duration, cb Callback) {
	expires := time.Now().Add(timeout)
	if n, ok := t.byID[id]; ok {
		n.expires = expires
		n.cb = cb
		heap.Fix(&t.h, n.index)
		return
	}
	n := &node{id: id, expires: expires, cb: cb}
	t.byID[id] = n
	heap.Push(&t.h, n)
}

// Adjust extends (or shortens) the expiry of an existing id's timer. It is
// a no-op if id has no active timer.
func (t *Heap) Adjust(id int, timeout time.Duration) {
	n, ok := t.byID[id]
	if !ok {
		return
	}
	n.expires = time.Now().Add(timeout)
	heap.Fix(&t.h, n.index)
}

// DoWork runs id's callback immediately and removes its timer, if any.
func (t *Heap) DoWork(id int) {
	n, ok := t.byID[id]
	if !ok {
		return
	}
	n.cb()
	t.remove(n)
}

func (t *Heap) remove(n *node) {
	heap.Remove(&t.h, n.index)
	delete(t.byID, n.id)
}

// Tick runs the callback of, and removes, every node whose deadline has
// already passed.
func (t *Heap) Tick() {
	now := time.Now()
	for t.h.Len() > 0 {
		n := t.h[0]
		if n.expires.After(now) {
			break
		}
		n.cb()
		t.remove(n)
	}
}

// GetNextTick runs Tick and returns the number of milliseconds until the
// next deadline, or -1 if no timers are scheduled.
func (t *Heap) GetNextTick() int {
	t.Tick()
	if t.h.Len() == 0 {
		return -1
	}
	remaining := time.Until(t.h[0].expires)
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining / time.Millisecond)
}

// Len reports the number of active timers.
func (t *Heap) Len() int { return t.h.Len() }
