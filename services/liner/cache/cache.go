// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the confidence-tiered TTL result cache.
//
// The in-memory map is authoritative. An optional Store (see store.go)
// persists entries across restarts; persistence failures are logged and
// never affect the caller. An expired entry is logically absent: Get
// deletes it and reports a miss.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

// =============================================================================
// TTL Policy
// =============================================================================

// TTLTable maps a confidence label to an entry lifetime. Higher trust
// earns a longer TTL.
type TTLTable map[datatypes.Confidence]time.Duration

// DefaultTTLTable returns the production TTL policy.
func DefaultTTLTable() TTLTable {
	return TTLTable{
		datatypes.ConfidenceVerified: 30 * 24 * time.Hour,
		datatypes.ConfidenceHigh:     7 * 24 * time.Hour,
		datatypes.ConfidenceMedium:   3 * 24 * time.Hour,
		datatypes.ConfidenceLow:      24 * time.Hour,
		datatypes.ConfidenceNone:     24 * time.Hour,
	}
}

// TTLFor returns the lifetime for a confidence/tier pair. Content cached
// from the verified tier keeps the verified lifetime whatever its label.
func (t TTLTable) TTLFor(confidence datatypes.Confidence, origin datatypes.TierOrigin) time.Duration {
	if origin == datatypes.TierVerified {
		confidence = datatypes.ConfidenceVerified
	}
	if d, ok := t[confidence]; ok && d > 0 {
		return d
	}
	return 24 * time.Hour
}

// =============================================================================
// Entries
// =============================================================================

// Entry is one cached answer with its lifecycle metadata.
type Entry struct {
	Data      datatypes.ResolvedContent `json:"data"`
	CreatedAt time.Time                 `json:"created_at"`
	ExpiresAt time.Time                 `json:"expires_at"`
	HitCount  int                       `json:"hit_count"`
}

// Expired reports whether the entry is logically absent at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Stats is a point-in-time snapshot for the debug endpoint.
type Stats struct {
	Entries    int   `json:"entries"`
	MaxEntries int   `json:"max_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
}

// =============================================================================
// ResultCache
// =============================================================================

// defaultMaxEntries bounds the cache when no cap is configured.
const defaultMaxEntries = 10_000

// ResultCache is the process-scoped answer cache.
//
// # Thread Safety
//
// Safe for concurrent use. Operations are short and map-local under a
// single mutex; the eviction pass runs inside Set.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	maxEntries int
	ttl        TTLTable
	store      Store
	logger     *slog.Logger

	hits      int64
	misses    int64
	evictions int64

	// now is replaceable for expiry tests.
	now func() time.Time
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithMaxEntries sets the entry cap that triggers eviction.
func WithMaxEntries(n int) Option {
	return func(c *ResultCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithTTLTable overrides the TTL policy.
func WithTTLTable(t TTLTable) Option {
	return func(c *ResultCache) {
		if t != nil {
			c.ttl = t
		}
	}
}

// WithStore attaches a persistence store. Nil keeps memory-only mode.
func WithStore(s Store) Option {
	return func(c *ResultCache) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *ResultCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces the time source. Test use only.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a ResultCache. If a Store is attached, surviving persisted
// entries are warmed into memory; a load failure degrades to a cold start.
func New(opts ...Option) *ResultCache {
	c := &ResultCache{
		entries:    make(map[string]*Entry),
		maxEntries: defaultMaxEntries,
		ttl:        DefaultTTLTable(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store != nil {
		warmed, err := c.store.Load(context.Background())
		if err != nil {
			c.logger.Warn("cache store load failed, starting cold", slog.String("error", err.Error()))
		} else {
			now := c.now()
			for key, e := range warmed {
				if !e.Expired(now) {
					entry := e
					c.entries[key] = &entry
				}
			}
			c.logger.Info("cache warmed from store", slog.Int("entries", len(c.entries)))
		}
	}
	return c
}

// Get returns the live entry for a query. An expired entry is deleted and
// reported as a miss — identical to absence.
func (c *ResultCache) Get(q datatypes.Query) (*Entry, bool) {
	key := q.Key()

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.Expired(c.now()) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		c.mu.Unlock()
		c.storeDelete(key)
		return nil, false
	}
	e.HitCount++
	c.hits++
	snapshot := *e
	c.mu.Unlock()

	return &snapshot, true
}

// Set writes an answer through to the cache with a TTL derived from its
// confidence and tier, then runs the bounded eviction pass.
func (c *ResultCache) Set(q datatypes.Query, data datatypes.ResolvedContent) {
	now := c.now()
	e := &Entry{
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl.TTLFor(data.Confidence, data.TierOrigin)),
	}
	key := q.Key()

	c.mu.Lock()
	c.entries[key] = e
	c.evictLocked(now)
	snapshot := *e
	c.mu.Unlock()

	c.storePut(key, snapshot)
}

// Invalidate removes the entry for a query, if any.
func (c *ResultCache) Invalidate(q datatypes.Query) {
	key := q.Key()
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.storeDelete(key)
}

// Reset drops every entry. Test isolation hook.
func (c *ResultCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.hits, c.misses, c.evictions = 0, 0, 0
	c.mu.Unlock()
}

// Len returns the number of entries, including any not yet expired-swept.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns cache statistics for the debug endpoint.
func (c *ResultCache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:    len(c.entries),
		MaxEntries: c.maxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}

// evictLocked enforces the entry cap: expired entries go first, then the
// lowest-hit entries until the cache is back under the cap. Caller holds
// the mutex.
func (c *ResultCache) evictLocked(now time.Time) {
	if len(c.entries) <= c.maxEntries {
		return
	}

	for key, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, key)
			c.evictions++
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}

	type candidate struct {
		key  string
		hits int
	}
	candidates := make([]candidate, 0, len(c.entries))
	for key, e := range c.entries {
		candidates = append(candidates, candidate{key: key, hits: e.HitCount})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].hits < candidates[j].hits })

	for _, cand := range candidates {
		if len(c.entries) <= c.maxEntries {
			break
		}
		delete(c.entries, cand.key)
		c.evictions++
	}
}

// storePut mirrors a write to the persistence store. Best effort.
func (c *ResultCache) storePut(key string, e Entry) {
	if c.store == nil {
		return
	}
	if err := c.store.Put(context.Background(), key, e); err != nil {
		c.logger.Warn("cache store put failed", slog.String("error", err.Error()))
	}
}

// storeDelete mirrors a delete to the persistence store. Best effort.
func (c *ResultCache) storeDelete(key string) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(context.Background(), key); err != nil {
		c.logger.Warn("cache store delete failed", slog.String("error", err.Error()))
	}
}
