// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package budget implements per-resource request and cost budgeting.
//
// Each named resource (a provider, the generative backend) gets a sliding
// request window and a daily cumulative-cost cap. Every external call in
// the pipeline is preceded by a CheckLimit; nothing bypasses budgeting.
// The manager never returns an error — a resource with no configuration
// is always allowed.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned by WithBudget when the check denies the
// call. It degrades the live tier; it never aborts a resolution.
var ErrBudgetExceeded = errors.New("budget exceeded")

// =============================================================================
// Configuration
// =============================================================================

// Limits configures one resource's budget.
type Limits struct {
	// Window is the sliding-window length. Zero disables the request limit.
	Window time.Duration `yaml:"window"`

	// MaxRequests is the request count allowed inside one window.
	MaxRequests int `yaml:"max_requests"`

	// CostPerRequest is the cost unit added by each recorded request.
	CostPerRequest float64 `yaml:"cost_per_request"`

	// DailyCostCap caps cumulative cost per wall-clock UTC day. Zero
	// disables the cost limit.
	DailyCostCap float64 `yaml:"daily_cost_cap"`
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed bool `json:"allowed"`

	// RetryAfter is how long until the oldest in-window request exits the
	// window. Only set for request-rate denials; a cost denial lasts until
	// the daily rollover.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Reason names what denied the call: "rate" or "cost".
	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// Manager
// =============================================================================

// state is the mutable per-resource ledger.
type state struct {
	timestamps []int64 // unix milliseconds
	cost       float64
	costDay    string // UTC day of the cost accumulator, e.g. "2025-11-02"
}

// Manager tracks sliding-window request counts and daily cumulative cost
// per resource.
//
// # Thread Safety
//
// Safe for concurrent use via sync.Mutex. Operations are a single append
// and prune per call.
type Manager struct {
	mu     sync.Mutex
	limits map[string]Limits
	states map[string]*state
	logger *slog.Logger

	// now is replaceable for window tests.
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces the time source. Test use only.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager with per-resource limits. Resources absent
// from the map are never limited.
func NewManager(limits map[string]Limits, opts ...Option) *Manager {
	copied := make(map[string]Limits, len(limits))
	for k, v := range limits {
		copied[k] = v
	}
	m := &Manager{
		limits: copied,
		states: make(map[string]*state),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckLimit reports whether a request to the resource is within budget.
// It does not record anything — pair with RecordRequest after the call.
func (m *Manager) CheckLimit(resource string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	limits, ok := m.limits[resource]
	if !ok {
		return Decision{Allowed: true}
	}

	now := m.now()
	st := m.stateLocked(resource, now)

	if limits.Window > 0 && limits.MaxRequests > 0 {
		windowStart := now.UnixMilli() - limits.Window.Milliseconds()
		pruned := st.timestamps[:0]
		for _, ts := range st.timestamps {
			if ts > windowStart {
				pruned = append(pruned, ts)
			}
		}
		st.timestamps = pruned

		if len(st.timestamps) >= limits.MaxRequests {
			oldest := st.timestamps[0]
			retryAfter := time.Duration(oldest-windowStart) * time.Millisecond
			recordCheck(resource, "rate_denied")
			return Decision{Allowed: false, RetryAfter: retryAfter, Reason: "rate"}
		}
	}

	if limits.DailyCostCap > 0 && st.cost+limits.CostPerRequest > limits.DailyCostCap {
		recordCheck(resource, "cost_denied")
		return Decision{Allowed: false, Reason: "cost"}
	}

	recordCheck(resource, "allowed")
	return Decision{Allowed: true}
}

// RecordRequest appends a request timestamp and adds the per-request cost.
// Call once per external call actually made.
func (m *Manager) RecordRequest(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limits, ok := m.limits[resource]
	if !ok {
		return
	}

	now := m.now()
	st := m.stateLocked(resource, now)
	st.timestamps = append(st.timestamps, now.UnixMilli())
	st.cost += limits.CostPerRequest
	recordCost(resource, limits.CostPerRequest)
}

// Remaining returns the requests left in the current window and cost left
// in the current day. Unlimited dimensions report -1.
func (m *Manager) Remaining(resource string) (requests int, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limits, ok := m.limits[resource]
	if !ok {
		return -1, -1
	}

	now := m.now()
	st := m.stateLocked(resource, now)

	requests = -1
	if limits.Window > 0 && limits.MaxRequests > 0 {
		windowStart := now.UnixMilli() - limits.Window.Milliseconds()
		inWindow := 0
		for _, ts := range st.timestamps {
			if ts > windowStart {
				inWindow++
			}
		}
		requests = limits.MaxRequests - inWindow
		if requests < 0 {
			requests = 0
		}
	}

	cost = -1
	if limits.DailyCostCap > 0 {
		cost = limits.DailyCostCap - st.cost
		if cost < 0 {
			cost = 0
		}
	}
	return requests, cost
}

// Reset clears all counters. Test isolation hook.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*state)
}

// stateLocked fetches the resource ledger, applying the daily cost
// rollover. Caller holds the mutex.
func (m *Manager) stateLocked(resource string, now time.Time) *state {
	st, ok := m.states[resource]
	if !ok {
		st = &state{costDay: utcDay(now)}
		m.states[resource] = st
	}
	if day := utcDay(now); day != st.costDay {
		st.costDay = day
		st.cost = 0
	}
	return st
}

// utcDay returns the wall-clock UTC day used for cost rollover.
func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// =============================================================================
// Call Wrapper
// =============================================================================

// WithBudget wraps one external call: check, invoke, record. A denied
// check returns ErrBudgetExceeded (wrapped with the resource name) without
// invoking fn. The request is recorded whether or not fn succeeds — the
// external call was made either way.
func (m *Manager) WithBudget(ctx context.Context, resource string, fn func(context.Context) error) error {
	if d := m.CheckLimit(resource); !d.Allowed {
		m.logger.Debug("budget denied",
			slog.String("resource", resource),
			slog.String("reason", d.Reason),
			slog.Duration("retry_after", d.RetryAfter))
		return fmt.Errorf("%s: %w (%s)", resource, ErrBudgetExceeded, d.Reason)
	}
	err := fn(ctx)
	m.RecordRequest(resource)
	return err
}
