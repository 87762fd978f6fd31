// Package policy defines the eviction-order contract used by the cache.
//
// A policy never deletes entries itself. It only arranges the store's
// intrusive list (front = newest, back = next victim); the store decides
// when to evict and always takes the victim from Back().
package policy

// Node is the minimal contract a cache entry must satisfy for a policy.
// It provides read-only access to the key and a pointer to the value.
type Node[K comparable, V any] interface {
	Key() K
	Value() *V
}

// Hooks expose O(1) list operations that a policy can use to manipulate
// the store's intrusive list. Implementations are provided by the store.
//
// Concurrency: all hook calls happen under the store lock.
// Hooks manage only the list; the store owns the key->node map.
type Hooks[K comparable, V any] interface {
	// MoveToFront marks the node as the newest.
	MoveToFront(Node[K, V])
	// PushFront inserts the node as the newest (used on admission).
	PushFront(Node[K, V])
	// Remove detaches the node from the list.
	Remove(Node[K, V])
	// Back returns the next eviction victim (or nil if empty).
	Back() Node[K, V]
	// Len returns the number of resident nodes.
	Len() int
}

// Instance is a store-local policy bound to the store's hooks.
// All methods are invoked under the store lock.
//
//   - OnAdd places a newly admitted node.
//   - OnGet is called on a read hit (not on Has/Entry peeks).
//   - OnUpdate is called when an existing key is overwritten; its
//     creation time has just been reset.
//   - OnRemove notifies the policy that the store is dropping the node.
type Instance[K comparable, V any] interface {
	OnAdd(Node[K, V])
	OnGet(Node[K, V])
	OnUpdate(Node[K, V])
	OnRemove(Node[K, V])
}

// Policy is a factory that creates an Instance bound to a store's hooks.
type Policy[K comparable, V any] interface {
	New(Hooks[K, V]) Instance[K, V]
}
