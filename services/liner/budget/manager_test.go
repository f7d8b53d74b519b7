// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// testClock is a mutable time source for window tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(limits map[string]Limits) (*Manager, *testClock) {
	clock := &testClock{now: time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)}
	return NewManager(limits, WithClock(clock.Now)), clock
}

func TestManager_UnconfiguredResourceAlwaysAllowed(t *testing.T) {
	m, _ := newTestManager(nil)
	for i := 0; i < 50; i++ {
		if d := m.CheckLimit("anything"); !d.Allowed {
			t.Fatal("unconfigured resource must always be allowed")
		}
		m.RecordRequest("anything")
	}
}

func TestManager_WindowExhaustionAndRecovery(t *testing.T) {
	m, clock := newTestManager(map[string]Limits{
		"synth": {Window: time.Minute, MaxRequests: 3},
	})

	for i := 0; i < 3; i++ {
		if d := m.CheckLimit("synth"); !d.Allowed {
			t.Fatalf("request %d should be within limit", i+1)
		}
		m.RecordRequest("synth")
	}

	d := m.CheckLimit("synth")
	if d.Allowed {
		t.Fatal("fourth request inside the window should be denied")
	}
	if d.Reason != "rate" {
		t.Errorf("Reason = %q, want rate", d.Reason)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v", d.RetryAfter)
	}

	// After the window elapses the resource recovers.
	clock.Advance(61 * time.Second)
	if d := m.CheckLimit("synth"); !d.Allowed {
		t.Error("check after window elapsed should be allowed")
	}
}

func TestManager_DailyCostCapAndRollover(t *testing.T) {
	m, clock := newTestManager(map[string]Limits{
		"synth": {CostPerRequest: 1.0, DailyCostCap: 2.0},
	})

	m.RecordRequest("synth")
	m.RecordRequest("synth")

	d := m.CheckLimit("synth")
	if d.Allowed {
		t.Fatal("cost cap reached, check should deny")
	}
	if d.Reason != "cost" {
		t.Errorf("Reason = %q, want cost", d.Reason)
	}
	if d.RetryAfter != 0 {
		t.Errorf("cost denial should not carry RetryAfter, got %v", d.RetryAfter)
	}

	// The accumulator resets on the wall-clock day boundary.
	clock.Advance(24 * time.Hour)
	if d := m.CheckLimit("synth"); !d.Allowed {
		t.Error("cost should reset on daily rollover")
	}
}

func TestManager_Remaining(t *testing.T) {
	m, _ := newTestManager(map[string]Limits{
		"p": {Window: time.Minute, MaxRequests: 5, CostPerRequest: 0.5, DailyCostCap: 10},
	})
	m.RecordRequest("p")
	m.RecordRequest("p")

	reqs, cost := m.Remaining("p")
	if reqs != 3 {
		t.Errorf("remaining requests = %d, want 3", reqs)
	}
	if cost != 9.0 {
		t.Errorf("remaining cost = %v, want 9.0", cost)
	}

	reqs, cost = m.Remaining("unconfigured")
	if reqs != -1 || cost != -1 {
		t.Errorf("unconfigured remaining = %d/%v, want -1/-1", reqs, cost)
	}
}

func TestManager_WithBudget(t *testing.T) {
	m, _ := newTestManager(map[string]Limits{
		"synth": {Window: time.Minute, MaxRequests: 1},
	})

	calls := 0
	err := m.WithBudget(context.Background(), "synth", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("first call: err=%v calls=%d", err, calls)
	}

	err = m.WithBudget(context.Background(), "synth", func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("second call should be denied, got %v", err)
	}
	if calls != 1 {
		t.Error("denied call must not invoke fn")
	}
}

func TestManager_WithBudget_RecordsOnFailure(t *testing.T) {
	m, _ := newTestManager(map[string]Limits{
		"synth": {Window: time.Minute, MaxRequests: 2},
	})

	wantErr := errors.New("backend down")
	err := m.WithBudget(context.Background(), "synth", func(context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}

	// The failed call still consumed a window slot.
	if reqs, _ := m.Remaining("synth"); reqs != 1 {
		t.Errorf("remaining = %d, want 1", reqs)
	}
}

func TestManager_Reset(t *testing.T) {
	m, _ := newTestManager(map[string]Limits{
		"p": {Window: time.Minute, MaxRequests: 1},
	})
	m.RecordRequest("p")
	m.Reset()
	if d := m.CheckLimit("p"); !d.Allowed {
		t.Error("Reset should clear window state")
	}
}
