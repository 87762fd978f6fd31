// Package memory provides a bounded in-process storage.Backend. Its quota
// mimics the fixed capacity of browser local storage.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/IvanBrykalov/venuecache/storage"
)

// DefaultQuota is the byte budget used when New is given a zero limit.
const DefaultQuota = 5 << 20

// Store is a map-backed Backend. Usage counts len(key)+len(value).
type Store struct {
	mu    sync.Mutex
	m     map[string]string
	used  int64
	limit int64
}

// New returns an empty store. limit == 0 selects DefaultQuota; a negative
// limit disables the quota.
func New(limit int64) *Store {
	if limit == 0 {
		limit = DefaultQuota
	}
	return &Store{m: make(map[string]string), limit: limit}
}

func (s *Store) GetItem(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Store) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.used + int64(len(key)+len(value))
	if old, ok := s.m[key]; ok {
		next -= int64(len(key) + len(old))
	}
	if s.limit > 0 && next > s.limit {
		return fmt.Errorf("memory: set %q (%d bytes): %w", key, len(value), storage.ErrQuotaExceeded)
	}
	s.m[key] = value
	s.used = next
	return nil
}

func (s *Store) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.m[key]; ok {
		s.used -= int64(len(key) + len(old))
		delete(s.m, key)
	}
	return nil
}

// Keys returns every key in lexical order.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Usage() (used, limit int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used, s.limit, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

var (
	_ storage.Backend = (*Store)(nil)
	_ storage.Sizer   = (*Store)(nil)
)
