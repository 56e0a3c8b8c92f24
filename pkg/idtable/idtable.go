package idtable

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var bucketIDs = []byte("ids")

// Table is a persistent mapping from fingerprint byte-string to a small
// integer instance id. Ids are assigned on first sight of a fingerprint,
// starting at zero, and are stable across process restarts. The underlying
// BoltDB file lock provides mutual exclusion between processes sharing the
// same cache root; in-process callers are additionally serialized by the
// write transaction.
type Table struct {
	db *bolt.DB

	mu    sync.Mutex
	cache map[string]int
}

// Open opens (or creates) the id table stored under dir.
func Open(dir string) (*Table, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create id table directory: %w", err)
	}
	dbPath := filepath.Join(dir, "ids.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open id table: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIDs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketIDs, err)
	}

	return &Table{db: db, cache: make(map[string]int)}, nil
}

// Close closes the underlying database
func (t *Table) Close() error {
	return t.db.Close()
}

// Get returns the id assigned to key, assigning the next free id under an
// exclusive transaction if the key has not been seen before. Lookups that
// already succeeded once are served from an in-process cache.
func (t *Table) Get(key []byte) (int, error) {
	t.mu.Lock()
	if id, ok := t.cache[string(key)]; ok {
		t.mu.Unlock()
		return id, nil
	}
	t.mu.Unlock()

	var id int
	err := t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIDs)
		if data := b.Get(key); data != nil {
			id = int(binary.BigEndian.Uint64(data))
			return nil
		}
		// New key: the next id is the current table size.
		id = b.Stats().KeyN
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(id))
		return b.Put(key, buf[:])
	})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve instance id: %w", err)
	}

	t.mu.Lock()
	t.cache[string(key)] = id
	t.mu.Unlock()
	return id, nil
}

// Contains reports whether key has an assigned id
func (t *Table) Contains(key []byte) (bool, error) {
	t.mu.Lock()
	if _, ok := t.cache[string(key)]; ok {
		t.mu.Unlock()
		return true, nil
	}
	t.mu.Unlock()

	var found bool
	err := t.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketIDs).Get(key) != nil
		return nil
	})
	return found, err
}

// ListKeys returns a snapshot of all assigned fingerprints
func (t *Table) ListKeys() ([]string, error) {
	var keys []string
	err := t.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIDs).ForEach(func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Len returns the number of assigned ids
func (t *Table) Len() (int, error) {
	var n int
	err := t.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketIDs).Stats().KeyN
		return nil
	})
	return n, err
}

// Clear removes all entries and resets the in-process cache. Subsequent Get
// calls assign ids from zero again.
func (t *Table) Clear() error {
	err := t.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketIDs); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketIDs)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear id table: %w", err)
	}

	t.mu.Lock()
	t.cache = make(map[string]int)
	t.mu.Unlock()
	return nil
}
