package storage

import "errors"

// ErrQuotaExceeded is returned (wrapped) by Backend.SetItem when the write
// does not fit in the backend's capacity.
var ErrQuotaExceeded = errors.New("storage: quota exceeded")

// Backend is a durable, synchronous, string-valued key/value store.
// It is a single namespace shared by every subsystem; the Manager only
// touches keys under its own prefix.
//
// Implementations must be safe for concurrent use and atomic per key.
type Backend interface {
	// GetItem returns the stored value and true, or "", false on a miss.
	GetItem(key string) (string, bool, error)
	// SetItem stores value under key. A full store returns an error
	// wrapping ErrQuotaExceeded.
	SetItem(key, value string) error
	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(key string) error
	// Keys lists every key currently stored.
	Keys() ([]string, error)
}

// Sizer is implemented by backends that can report their capacity.
// used and limit are in bytes (len(key)+len(value) per item); a
// non-positive limit means unbounded.
type Sizer interface {
	Usage() (used, limit int64, err error)
}
