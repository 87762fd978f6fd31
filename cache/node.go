package cache

// node is an intrusive doubly linked list element owned by the store.
// Front is the newest entry, back is the next eviction victim.
type node[V any] struct {
	key string
	val V

	prev *node[V]
	next *node[V]

	// Creation time in UnixNano; reset on overwrite.
	created int64
	// Lifetime in nanoseconds; always positive once stored.
	ttl int64
}

// Key returns the node key (part of policy.Node interface).
func (n *node[V]) Key() string { return n.key }

// Value returns a pointer to the stored value (part of policy.Node interface).
// Callers must only use it while holding the store lock.
func (n *node[V]) Value() *V { return &n.val }

// expiredAt is the single expiry predicate: an entry is still readable at
// exactly created+ttl and expired strictly after.
func (n *node[V]) expiredAt(now int64) bool {
	return now-n.created > n.ttl
}
