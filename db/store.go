// Package db persists swap state to an embedded key-value store. Every
// state write goes through compare-and-swap (Delete, which prunes a finished
// swap, does not) so a crash mid-transition can never
// silently clobber the last state the driver observed, and every write
// commits (bbolt's default transaction behaviour) before the caller
// proceeds. Grounded conceptually on mewmix-atomic-swap's
// Backend.RecoveryDB() accessor (typed Put/Get methods per concern, rather
// than a bare byte-slice map exposed directly to callers), backed
// mechanically by go.etcd.io/bbolt, the embedded store `lnd`'s kvdb module
// wraps for the same purpose.
package db

import (
	"bytes"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

// Role distinguishes the two buckets persisted state lives in.
type Role byte

const (
	// RoleAlice buckets Alice-side swap state.
	RoleAlice Role = iota
	// RoleBob buckets Bob-side swap state.
	RoleBob
)

func (r Role) bucketName() []byte {
	switch r {
	case RoleAlice:
		return []byte("alice-swaps")
	case RoleBob:
		return []byte("bob-swaps")
	default:
		return nil
	}
}

// ErrCASMismatch is returned by CompareAndSwap when the stored value does
// not match expectedOld, meaning another writer already advanced this
// swap's state (or it was expected to not yet exist and already does).
var ErrCASMismatch = errors.New("db: compare-and-swap mismatch")

// ErrUnknownRole is returned when Role is neither RoleAlice nor RoleBob.
var ErrUnknownRole = errors.New("db: unknown role")

// Store wraps an embedded bbolt database, bucketed by Role, keyed by swap
// id, holding tagged-union-encoded state blobs (see codec.go).
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt database at path, and
// ensures both role buckets exist.
func Open(path string) (*Store, error) {
	boltDB, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("db: opening %s: %w", path, err)
	}

	err = boltDB.Update(func(tx *bbolt.Tx) error {
		for _, role := range []Role{RoleAlice, RoleBob} {
			if _, err := tx.CreateBucketIfNotExists(role.bucketName()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = boltDB.Close()
		return nil, fmt.Errorf("db: initializing buckets: %w", err)
	}

	return &Store{db: boltDB}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// CompareAndSwap writes newValue for swapID under role, succeeding only if
// the currently stored value equals expectedOld byte-for-byte. Pass a nil
// expectedOld to require the key not already exist (first write of a new
// swap). The read-compare-write happens inside a single bbolt write
// transaction, so no other writer can observe or race the comparison.
func (s *Store) CompareAndSwap(role Role, swapID string, expectedOld, newValue []byte) error {
	bucket := role.bucketName()
	if bucket == nil {
		return ErrUnknownRole
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		current := b.Get([]byte(swapID))
		if !bytes.Equal(current, expectedOld) {
			return ErrCASMismatch
		}
		return b.Put([]byte(swapID), newValue)
	})
}

// Get returns the currently persisted value for swapID under role, or nil
// if no such swap has been persisted.
func (s *Store) Get(role Role, swapID string) ([]byte, error) {
	bucket := role.bucketName()
	if bucket == nil {
		return nil, ErrUnknownRole
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(swapID)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

// Delete removes a swap's persisted state entirely, used when pruning
// terminal swaps (SwapComplete, Refunded, Punished).
func (s *Store) Delete(role Role, swapID string) error {
	bucket := role.bucketName()
	if bucket == nil {
		return ErrUnknownRole
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(swapID))
	})
}

// Entry is one (swap id, persisted state blob) pair returned by List.
type Entry struct {
	SwapID string
	Value  []byte
}

// List enumerates every swap persisted under role, powering the history
// command.
func (s *Store) List(role Role) ([]Entry, error) {
	bucket := role.bucketName()
	if bucket == nil {
		return nil, ErrUnknownRole
	}

	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			entries = append(entries, Entry{
				SwapID: string(k),
				Value:  append([]byte(nil), v...),
			})
			return nil
		})
	})
	return entries, err
}
