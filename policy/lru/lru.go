// Package lru implements access-order eviction: reads promote entries.
package lru

import "github.com/IvanBrykalov/venuecache/policy"

// lru is a classic "move-to-front" Least-Recently-Used policy.
type lru[K comparable, V any] struct {
	h policy.Hooks[K, V]
}

type lruPolicy[K comparable, V any] struct{}

// New returns a Policy factory for access-order eviction.
func New[K comparable, V any]() policy.Policy[K, V] { return lruPolicy[K, V]{} }

func (lruPolicy[K, V]) New(h policy.Hooks[K, V]) policy.Instance[K, V] {
	return &lru[K, V]{h: h}
}

func (p *lru[K, V]) OnAdd(n policy.Node[K, V])    { p.h.PushFront(n) }
func (p *lru[K, V]) OnGet(n policy.Node[K, V])    { p.h.MoveToFront(n) }
func (p *lru[K, V]) OnUpdate(n policy.Node[K, V]) { p.h.MoveToFront(n) }
func (p *lru[K, V]) OnRemove(policy.Node[K, V])   {}
