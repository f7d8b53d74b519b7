// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sources

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrProviderUnavailable reports that a provider's upstream service
	// could not be reached. Treated as "not found" by the aggregator.
	ErrProviderUnavailable = errors.New("source provider unavailable")

	// ErrProviderTimeout reports that a provider exceeded its per-source
	// deadline. Treated as "not found" by the aggregator.
	ErrProviderTimeout = errors.New("source provider timed out")
)

// =============================================================================
// Provider Contract
// =============================================================================

// Provider is one upstream source of song background material.
//
// # Description
//
//	A Provider answers a single normalized query with at most one candidate
//	record. Search returns (nil, nil) when the provider has no answer;
//	errors are reserved for transport and upstream failures. The aggregator
//	treats both outcomes the same way, so providers should prefer the nil
//	record over inventing an error.
//
// # Thread Safety
//
//	Implementations must be safe for concurrent use; the aggregator calls
//	every registered provider in parallel.
type Provider interface {
	// Name is a stable identifier used in logs, events, and source lists.
	Name() string

	// Tier is the provider-level trust classification.
	Tier() datatypes.ReliabilityTier

	// Priority orders providers in the registry; higher runs earlier in
	// status reporting. It does not gate execution.
	Priority() int

	// Languages lists BCP-47 tags the provider can answer in. Empty means
	// language-agnostic.
	Languages() []string

	// IsAvailable is a cheap liveness probe. A false return skips Search.
	IsAvailable(ctx context.Context) bool

	// Search looks up the query, returning nil when nothing matched.
	Search(ctx context.Context, q datatypes.Query, language string) (*datatypes.SourceRecord, error)
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds the registered providers in priority order.
//
// Thread Safety: Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a provider and re-sorts by descending priority. Ties keep
// registration order.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].Priority() > r.providers[j].Priority()
	})
}

// List returns a snapshot of the registered providers in priority order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Reset removes all providers. Test isolation hook.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = nil
}
