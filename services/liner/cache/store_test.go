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
	"context"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

func inMemoryStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("opening in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db, nil)
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	s := inMemoryStore(t)
	ctx := context.Background()

	e := Entry{
		Data:      content(datatypes.ConfidenceHigh, datatypes.TierLive),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
		HitCount:  3,
	}
	if err := s.Put(ctx, "k1", e); err != nil {
		t.Fatalf("Put: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := loaded["k1"]
	if !ok {
		t.Fatal("entry missing after Put")
	}
	if got.Data.Narrative != e.Data.Narrative || got.HitCount != 3 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestBadgerStore_ExpiredNotPersisted(t *testing.T) {
	s := inMemoryStore(t)
	ctx := context.Background()

	e := Entry{
		Data:      content(datatypes.ConfidenceLow, datatypes.TierLive),
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := s.Put(ctx, "dead", e); err != nil {
		t.Fatalf("Put: %v", err)
	}
	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := loaded["dead"]; ok {
		t.Error("expired entry should not be persisted")
	}
}

func TestBadgerStore_Delete(t *testing.T) {
	s := inMemoryStore(t)
	ctx := context.Background()

	e := Entry{
		Data:      content(datatypes.ConfidenceMedium, datatypes.TierLive),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.Put(ctx, "k", e); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "absent"); err != nil {
		t.Errorf("deleting absent key should be a no-op, got %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Load after delete = %d entries", len(loaded))
	}
}

func TestResultCache_WarmStartFromStore(t *testing.T) {
	s := inMemoryStore(t)
	q := datatypes.NewQuery("warm", "")

	first := New(WithStore(s))
	first.Set(q, content(datatypes.ConfidenceHigh, datatypes.TierLive))

	second := New(WithStore(s))
	if _, ok := second.Get(q); !ok {
		t.Error("second cache instance should warm-start from the store")
	}
}
