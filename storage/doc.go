// Package storage is the persistent key/value layer: a versioned,
// namespaced Manager over any durable string store (Backend).
//
// Every value is wrapped in a JSON envelope
//
//	{"data": ..., "createdAt": <unix ms>, "ttl": <ms>, "version": "1.0.0"}
//
// and is only readable while the envelope parses, its version matches the
// manager's, and (when ttl is set) no more than ttl has elapsed. Unreadable
// entries are deleted on the read that finds them.
//
// Backends live in subpackages: memory (bounded, in-process), sqlite and
// leveldb (on disk). storagetest holds the conformance suite every backend
// runs.
package storage
