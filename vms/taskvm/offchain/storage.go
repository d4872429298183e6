// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offchain

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/akrylysov/pogreb"
	"github.com/luxfi/database"
)

var (
	_ KV = (*dbKV)(nil)
	_ KV = (*pogrebKV)(nil)

	ErrEmptyValue = errors.New("empty values are not stored")
)

// KV is node-local storage. It is not replicated and never affects chain
// state. Get returns database.ErrNotFound for missing keys.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// Iterate calls [f] for every entry whose key starts with [prefix].
	Iterate(prefix []byte, f func(key, value []byte) error) error
	Close() error
}

type dbKV struct {
	db database.Database
}

// NewDatabaseKV wraps [db], typically a memdb in tests.
func NewDatabaseKV(db database.Database) KV {
	return &dbKV{db: db}
}

func (s *dbKV) Get(key []byte) ([]byte, error) {
	return s.db.Get(key)
}

func (s *dbKV) Put(key, value []byte) error {
	return s.db.Put(key, value)
}

func (s *dbKV) Delete(key []byte) error {
	return s.db.Delete(key)
}

func (s *dbKV) Iterate(prefix []byte, f func(key, value []byte) error) error {
	it := s.db.NewIteratorWithPrefix(prefix)
	defer it.Release()

	for it.Next() {
		if err := f(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *dbKV) Close() error {
	return s.db.Close()
}

type pogrebKV struct {
	db *pogreb.DB
}

// OpenPogrebKV opens, or creates, the on-disk store at [path].
func OpenPogrebKV(path string) (KV, error) {
	db, err := pogreb.Open(path, &pogreb.Options{BackgroundSyncInterval: -1})
	if err != nil {
		return nil, fmt.Errorf("failed to open local storage at %q: %w", path, err)
	}
	return &pogrebKV{db: db}, nil
}

func (s *pogrebKV) Get(key []byte) ([]byte, error) {
	value, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, database.ErrNotFound
	}
	return value, nil
}

func (s *pogrebKV) Put(key, value []byte) error {
	return s.db.Put(key, value)
}

func (s *pogrebKV) Delete(key []byte) error {
	return s.db.Delete(key)
}

func (s *pogrebKV) Iterate(prefix []byte, f func(key, value []byte) error) error {
	it := s.db.Items()
	for {
		key, value, err := it.Next()
		if errors.Is(err, pogreb.ErrIterationDone) {
			return nil
		}
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(key, prefix) {
			continue
		}
		if err := f(key, value); err != nil {
			return err
		}
	}
}

func (s *pogrebKV) Close() error {
	return s.db.Close()
}

// Storage serializes access to a KV so that workers running in parallel can
// use compare-and-set on shared keys.
type Storage struct {
	lock sync.Mutex
	kv   KV
}

func NewStorage(kv KV) *Storage {
	return &Storage{kv: kv}
}

// Get returns the value at [key] and whether it was present.
func (s *Storage) Get(key []byte) ([]byte, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.get(key)
}

func (s *Storage) get(key []byte) ([]byte, bool, error) {
	value, err := s.kv.Get(key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Storage) Set(key, value []byte) error {
	if len(value) == 0 {
		return ErrEmptyValue
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	return s.kv.Put(key, value)
}

func (s *Storage) Delete(key []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.kv.Delete(key)
}

// CompareAndSet writes [value] at [key] only if the current value equals
// [expected]. A nil [expected] requires the key to be absent.
func (s *Storage) CompareAndSet(key, expected, value []byte) (bool, error) {
	if len(value) == 0 {
		return false, ErrEmptyValue
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if ok, err := s.matches(key, expected); err != nil || !ok {
		return false, err
	}
	return true, s.kv.Put(key, value)
}

// CompareAndDelete removes [key] only if its value equals [expected].
func (s *Storage) CompareAndDelete(key, expected []byte) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if ok, err := s.matches(key, expected); err != nil || !ok {
		return false, err
	}
	return true, s.kv.Delete(key)
}

func (s *Storage) matches(key, expected []byte) (bool, error) {
	current, ok, err := s.get(key)
	if err != nil {
		return false, err
	}
	if expected == nil {
		return !ok, nil
	}
	return ok && bytes.Equal(current, expected), nil
}

func (s *Storage) Iterate(prefix []byte, f func(key, value []byte) error) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.kv.Iterate(prefix, f)
}

func (s *Storage) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.kv.Close()
}
