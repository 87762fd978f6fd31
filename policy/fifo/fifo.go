// Package fifo implements insertion-time eviction: the victim is always the
// entry with the oldest creation time. Reads never change the order; an
// overwrite counts as a fresh insertion.
package fifo

import "github.com/IvanBrykalov/venuecache/policy"

type fifo[K comparable, V any] struct {
	h policy.Hooks[K, V]
}

type fifoPolicy[K comparable, V any] struct{}

// New returns a Policy factory for insertion-time eviction.
// It is the cache default.
func New[K comparable, V any]() policy.Policy[K, V] { return fifoPolicy[K, V]{} }

func (fifoPolicy[K, V]) New(h policy.Hooks[K, V]) policy.Instance[K, V] {
	return &fifo[K, V]{h: h}
}

// OnAdd places the new entry at the front (newest).
func (p *fifo[K, V]) OnAdd(n policy.Node[K, V]) { p.h.PushFront(n) }

// OnGet is a no-op: access does not affect insertion order.
func (p *fifo[K, V]) OnGet(policy.Node[K, V]) {}

// OnUpdate moves the node to the front because its creation time was reset.
func (p *fifo[K, V]) OnUpdate(n policy.Node[K, V]) { p.h.MoveToFront(n) }

func (p *fifo[K, V]) OnRemove(policy.Node[K, V]) {}
