// Package leveldb provides a storage.Backend persisted in a LevelDB
// directory.
package leveldb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lstorage "github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/IvanBrykalov/venuecache/storage"
)

// Store is a LevelDB-backed Backend with an optional byte quota. Usage is
// computed once on open and then tracked on every write.
type Store struct {
	mu    sync.Mutex // serializes quota accounting with writes
	db    *leveldb.DB
	used  int64
	limit int64
}

// Open opens (creating if needed) the database in dir. limit is the byte
// quota (len(key)+len(value)); limit <= 0 disables it.
func Open(dir string, limit int64) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return newStore(db, limit)
}

// OpenMem opens a database held entirely in memory.
func OpenMem(limit int64) (*Store, error) {
	db, err := leveldb.Open(lstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb in memory: %w", err)
	}
	return newStore(db, limit)
}

func newStore(db *leveldb.DB, limit int64) (*Store, error) {
	s := &Store{db: db, limit: limit}
	it := db.NewIterator(nil, nil)
	for it.Next() {
		s.used += int64(len(it.Key()) + len(it.Value()))
	}
	it.Release()
	if err := it.Error(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("measure leveldb usage: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) GetItem(key string) (string, bool, error) {
	v, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get item: %w", err)
	}
	return string(v), true, nil
}

func (s *Store) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.sizeLocked(key)
	if err != nil {
		return err
	}
	next := s.used - old + int64(len(key)+len(value))
	if s.limit > 0 && next > s.limit {
		return fmt.Errorf("leveldb: set %q (%d bytes): %w", key, len(value), storage.ErrQuotaExceeded)
	}
	if err := s.db.Put([]byte(key), []byte(value), nil); err != nil {
		return fmt.Errorf("set item: %w", err)
	}
	s.used = next
	return nil
}

func (s *Store) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.sizeLocked(key)
	if err != nil {
		return err
	}
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	s.used -= old
	return nil
}

func (s *Store) Keys() ([]string, error) {
	it := s.db.NewIterator(nil, nil)
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

func (s *Store) Usage() (used, limit int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used, s.limit, nil
}

// sizeLocked returns the accounted size of the current value at key, or 0.
func (s *Store) sizeLocked(key string) (int64, error) {
	v, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read item size: %w", err)
	}
	return int64(len(key) + len(v)), nil
}

var (
	_ storage.Backend = (*Store)(nil)
	_ storage.Sizer   = (*Store)(nil)
)
