// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// storeKeyPrefix versions the storage layout so a future format change
// cannot collide with old keys.
const storeKeyPrefix = "liner/result/v1/"

// Store persists cache entries across service restarts.
//
// # Description
//
// The in-memory ResultCache is authoritative; the store is a warm-start
// optimization. All methods are best-effort from the cache's point of
// view — errors are logged by the caller and never surfaced to a request.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns every persisted entry keyed by query key. Entries whose
	// backing-store TTL lapsed are simply absent.
	Load(ctx context.Context) (map[string]Entry, error)

	// Put persists one entry under the query key with a TTL matching the
	// entry's remaining lifetime.
	Put(ctx context.Context, key string, e Entry) error

	// Delete removes one entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// =============================================================================
// BadgerStore
// =============================================================================

// BadgerStore implements Store on an embedded BadgerDB instance. Entries
// are gob-encoded; expiry is double-enforced by BadgerDB's native TTL and
// by the entry's own ExpiresAt on load.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadgerStore opens (creating if needed) a BadgerDB at dir and wraps
// it as a Store. The caller owns closing via Close.
func OpenBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// NewBadgerStore wraps an already-open DB. Used by tests with an
// in-memory instance.
func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger}
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Load scans the result keyspace and decodes every live entry.
func (s *BadgerStore) Load(ctx context.Context) (map[string]Entry, error) {
	out := make(map[string]Entry)
	prefix := []byte(storeKeyPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy value: %w", err)
			}
			var e Entry
			if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
				// One corrupt record should not poison the warm start.
				s.logger.Warn("cache store: skipping undecodable entry",
					slog.String("key", string(item.Key())))
				continue
			}
			out[string(item.Key()[len(prefix):])] = e
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache store load: %w", err)
	}
	return out, nil
}

// Put writes one entry with the remaining lifetime as the BadgerDB TTL.
// Entries already past their expiry are not persisted.
func (s *BadgerStore) Put(ctx context.Context, key string, e Entry) error {
	ttl := time.Until(e.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := gobEncode(e)
	if err != nil {
		return fmt.Errorf("cache store encode: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(storeKeyPrefix+key), raw).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache store put: %w", err)
	}
	return nil
}

// Delete removes one entry; a missing key is a no-op.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(storeKeyPrefix + key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("cache store delete: %w", err)
	}
	return nil
}

// gobEncode serializes an Entry for storage.
func gobEncode(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}
