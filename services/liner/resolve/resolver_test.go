// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/liner/services/liner/budget"
	"github.com/AleutianAI/liner/services/liner/cache"
	"github.com/AleutianAI/liner/services/liner/catalog"
	"github.com/AleutianAI/liner/services/liner/datatypes"
	"github.com/AleutianAI/liner/services/liner/sources"
	"github.com/AleutianAI/liner/services/liner/synth"
	"github.com/AleutianAI/liner/services/llm"
)

// =============================================================================
// Test Doubles
// =============================================================================

// countingProvider is a scriptable provider that counts Search calls.
type countingProvider struct {
	name     string
	tier     datatypes.ReliabilityTier
	record   *datatypes.SourceRecord
	delay    time.Duration
	searches atomic.Int64
}

func (p *countingProvider) Name() string                     { return p.name }
func (p *countingProvider) Tier() datatypes.ReliabilityTier  { return p.tier }
func (p *countingProvider) Priority() int                    { return 5 }
func (p *countingProvider) Languages() []string              { return nil }
func (p *countingProvider) IsAvailable(context.Context) bool { return true }

func (p *countingProvider) Search(ctx context.Context, q datatypes.Query, language string) (*datatypes.SourceRecord, error) {
	p.searches.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.record == nil {
		return nil, nil
	}
	rec := *p.record
	return &rec, nil
}

// fixedLLM returns a canned narrative and counts calls.
type fixedLLM struct {
	response string
	calls    atomic.Int64
}

func (f *fixedLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return f.Chat(ctx, nil, params)
}

func (f *fixedLLM) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (string, error) {
	f.calls.Add(1)
	return f.response, nil
}

func (f *fixedLLM) ChatStream(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams, callback llm.StreamCallback) error {
	f.calls.Add(1)
	return callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: f.response})
}

const testNarrative = "The song was composed in the late 1960s and remains a touchstone of its era. " +
	"It has been recorded by many singers across several decades."

func verifiedEntry() *catalog.Entry {
	return &catalog.Entry{
		Title:      "Diễm Xưa",
		Artist:     "Khánh Ly",
		Composer:   "Trịnh Công Sơn",
		Confidence: datatypes.ConfidenceVerified,
		Citations:  []catalog.Citation{{Source: "liner-notes-1967"}},
		Narrative:  "An editorially reviewed narrative about the song, long enough to stand on its own.",
	}
}

type fixture struct {
	resolver *Resolver
	cache    *cache.ResultCache
	budget   *budget.Manager
	provider *countingProvider
	backend  *fixedLLM
}

func newFixture(t *testing.T, providers ...sources.Provider) *fixture {
	t.Helper()

	cat := catalog.New([]*catalog.Entry{verifiedEntry()})
	resultCache := cache.New()
	budgetMgr := budget.NewManager(map[string]budget.Limits{
		SynthResource: {Window: time.Minute, MaxRequests: 10, CostPerRequest: 1, DailyCostCap: 100},
	})

	registry := sources.NewRegistry()
	defaultProvider := &countingProvider{
		name: "wiki",
		tier: datatypes.ReliabilityHigh,
		record: &datatypes.SourceRecord{
			Fields: datatypes.SourceFields{Title: "Ha Trang", Artist: "Khanh Ly"},
		},
	}
	if len(providers) == 0 {
		providers = []sources.Provider{defaultProvider}
	}
	for _, p := range providers {
		registry.Register(p)
	}

	backend := &fixedLLM{response: testNarrative}
	return &fixture{
		resolver: New(
			cat,
			resultCache,
			budgetMgr,
			sources.NewAggregator(registry),
			synth.New(backend),
			WithPerSourceTimeout(50*time.Millisecond),
		),
		cache:    resultCache,
		budget:   budgetMgr,
		provider: defaultProvider,
		backend:  backend,
	}
}

// =============================================================================
// Tier Scenarios
// =============================================================================

// A catalog hit answers immediately: no provider calls, no budget spent.
func TestResolve_VerifiedShortCircuit(t *testing.T) {
	f := newFixture(t)

	content := f.resolver.Resolve(context.Background(),
		datatypes.ResolveRequest{Title: "Diễm Xưa", Artist: "Khánh Ly"}, nil)

	if content.TierOrigin != datatypes.TierVerified {
		t.Fatalf("tier = %s, want verified", content.TierOrigin)
	}
	if content.Confidence != datatypes.ConfidenceVerified {
		t.Errorf("confidence = %s, want verified", content.Confidence)
	}
	if f.provider.searches.Load() != 0 {
		t.Error("verified hit must not call providers")
	}
	if f.backend.calls.Load() != 0 {
		t.Error("verified hit must not call the backend")
	}
	if reqs, _ := f.budget.Remaining(SynthResource); reqs != 10 {
		t.Errorf("budget consumed on verified hit: remaining=%d", reqs)
	}
}

// Unknown title with all providers timing out falls back honestly.
func TestResolve_AllProvidersTimeOutFallsBack(t *testing.T) {
	slow := &countingProvider{
		name:  "slowsource",
		tier:  datatypes.ReliabilityHigh,
		delay: time.Second,
		record: &datatypes.SourceRecord{
			Fields: datatypes.SourceFields{Title: "whatever"},
		},
	}
	f := newFixture(t, slow)

	content := f.resolver.Resolve(context.Background(),
		datatypes.ResolveRequest{Title: "Some Unknown Song"}, nil)

	if content.TierOrigin != datatypes.TierFallback {
		t.Fatalf("tier = %s, want fallback", content.TierOrigin)
	}
	if content.Confidence != datatypes.ConfidenceNone {
		t.Errorf("confidence = %s, want none", content.Confidence)
	}
	if len(content.Sources) != 0 {
		t.Errorf("sources = %v, want empty", content.Sources)
	}
	if !strings.Contains(content.Narrative, "slowsource") {
		t.Errorf("fallback narrative should name checked sources: %q", content.Narrative)
	}
}

// Repeating the fallback query inside the none-confidence TTL is a cache
// hit with an identical narrative.
func TestResolve_FallbackIsCachedOnRepeat(t *testing.T) {
	slow := &countingProvider{name: "slowsource", delay: time.Second}
	f := newFixture(t, slow)
	req := datatypes.ResolveRequest{Title: "Some Unknown Song"}

	first := f.resolver.Resolve(context.Background(), req, nil)
	second := f.resolver.Resolve(context.Background(), req, nil)

	if second.TierOrigin != datatypes.TierCached {
		t.Fatalf("second tier = %s, want cached", second.TierOrigin)
	}
	if second.Narrative != first.Narrative {
		t.Error("cached narrative must be identical to the original")
	}
}

// Two providers, one relevant verified-tier and one irrelevant: only the
// relevant one is accepted and confidence reaches high.
func TestResolve_LiveAcceptsOnlyRelevantSources(t *testing.T) {
	relevant := &countingProvider{
		name: "archive",
		tier: datatypes.ReliabilityVerified,
		record: &datatypes.SourceRecord{
			Fields: datatypes.SourceFields{Title: "Ha Trang", Artist: "Khanh Ly"},
		},
	}
	irrelevant := &countingProvider{
		name: "noise",
		tier: datatypes.ReliabilityHigh,
		record: &datatypes.SourceRecord{
			Fields: datatypes.SourceFields{Title: "A Completely Different Work"},
		},
	}
	f := newFixture(t, relevant, irrelevant)

	content := f.resolver.Resolve(context.Background(),
		datatypes.ResolveRequest{Title: "Hạ Trắng", Artist: "Khánh Ly"}, nil)

	if content.TierOrigin != datatypes.TierLive {
		t.Fatalf("tier = %s, want live", content.TierOrigin)
	}
	if len(content.Sources) != 1 || content.Sources[0].Provider != "archive" {
		t.Errorf("sources = %v, want only archive", content.Sources)
	}
	if !content.Confidence.AtLeast(datatypes.ConfidenceHigh) {
		t.Errorf("confidence = %s, want at least high", content.Confidence)
	}
}

// Live results are written through and served from cache on repeat.
func TestResolve_LiveResultCached(t *testing.T) {
	f := newFixture(t)
	req := datatypes.ResolveRequest{Title: "Hạ Trắng", Artist: "Khánh Ly"}

	first := f.resolver.Resolve(context.Background(), req, nil)
	if first.TierOrigin != datatypes.TierLive {
		t.Fatalf("first tier = %s, want live", first.TierOrigin)
	}

	second := f.resolver.Resolve(context.Background(), req, nil)
	if second.TierOrigin != datatypes.TierCached {
		t.Fatalf("second tier = %s, want cached", second.TierOrigin)
	}
	if second.Narrative != first.Narrative {
		t.Error("cached narrative must match the live narrative")
	}
	if f.backend.calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", f.backend.calls.Load())
	}
}

// A cache hit below the caller's confidence floor is skipped.
func TestResolve_MinConfidenceGatesCache(t *testing.T) {
	f := newFixture(t)
	req := datatypes.ResolveRequest{Title: "Hạ Trắng", Artist: "Khánh Ly"}

	f.resolver.Resolve(context.Background(), req, nil) // seeds a low-confidence entry

	req.MinConfidence = datatypes.ConfidenceHigh
	content := f.resolver.Resolve(context.Background(), req, nil)
	if content.TierOrigin == datatypes.TierCached {
		t.Error("cache entry below the floor must not be served")
	}
}

// Budget denial degrades to the raw source path with a warning.
func TestResolve_BudgetDeniedServesRaw(t *testing.T) {
	freetext := &countingProvider{
		name: "wikitext",
		tier: datatypes.ReliabilityHigh,
		record: &datatypes.SourceRecord{
			Fields: datatypes.SourceFields{
				FreeText: "Ha Trang is a song by Trinh Cong Son, performed by Khanh Ly, written about white summer sun.",
			},
		},
	}
	f2 := newFixture(t, freetext)
	for i := 0; i < 10; i++ {
		f2.budget.RecordRequest(SynthResource)
	}

	content := f2.resolver.Resolve(context.Background(),
		datatypes.ResolveRequest{Title: "Hạ Trắng"}, nil)

	if content.TierOrigin != datatypes.TierLive {
		t.Fatalf("tier = %s, want live (raw path)", content.TierOrigin)
	}
	if !content.IsRaw {
		t.Error("budget-denied live result must be raw")
	}
	if content.Warning == "" {
		t.Error("budget denial should surface as an advisory warning")
	}
	if !content.Confidence.AtLeast(datatypes.ConfidenceLow) ||
		content.Confidence.Rank() > datatypes.ConfidenceMedium.Rank() {
		t.Errorf("raw confidence = %s, want low..medium", content.Confidence)
	}
	if f2.backend.calls.Load() != 0 {
		t.Error("denied budget must not call the backend")
	}
}

// A denied budget skips the synthesizing phase entirely; the observer
// sees only the search.
func TestResolve_BudgetDeniedSkipsSynthesizingPhase(t *testing.T) {
	freetext := &countingProvider{
		name: "wikitext",
		tier: datatypes.ReliabilityHigh,
		record: &datatypes.SourceRecord{
			Fields: datatypes.SourceFields{
				FreeText: "Ha Trang is a song by Trinh Cong Son, performed by Khanh Ly, written about white summer sun.",
			},
		},
	}
	f := newFixture(t, freetext)
	for i := 0; i < 10; i++ {
		f.budget.RecordRequest(SynthResource)
	}

	var phases []string
	obs := &Observer{Phase: func(p string) { phases = append(phases, p) }}
	content := f.resolver.Resolve(context.Background(),
		datatypes.ResolveRequest{Title: "Hạ Trắng"}, obs)

	if !content.IsRaw {
		t.Fatalf("tier = %s raw = %v, want raw live result", content.TierOrigin, content.IsRaw)
	}
	if len(phases) != 1 || phases[0] != "searching" {
		t.Errorf("phases = %v, want [searching] only", phases)
	}
}

// An allowed live attempt consumes one budget request even when no
// provider yields an accepted source.
func TestResolve_EmptyLiveAttemptConsumesBudget(t *testing.T) {
	empty := &countingProvider{name: "ghost", tier: datatypes.ReliabilityLow}
	f := newFixture(t, empty)

	content := f.resolver.Resolve(context.Background(),
		datatypes.ResolveRequest{Title: "Some Unknown Song"}, nil)

	if content.TierOrigin != datatypes.TierFallback {
		t.Fatalf("tier = %s, want fallback", content.TierOrigin)
	}
	if reqs, _ := f.budget.Remaining(SynthResource); reqs != 9 {
		t.Errorf("remaining = %d, want 9 after one live attempt", reqs)
	}
	if f.backend.calls.Load() != 0 {
		t.Error("empty aggregation must not call the backend")
	}
}

// NoLive suppresses provider calls entirely.
func TestResolve_NoLiveSkipsProviders(t *testing.T) {
	f := newFixture(t)

	content := f.resolver.Resolve(context.Background(),
		datatypes.ResolveRequest{Title: "Some Unknown Song", NoLive: true}, nil)

	if content.TierOrigin != datatypes.TierFallback {
		t.Fatalf("tier = %s, want fallback", content.TierOrigin)
	}
	if f.provider.searches.Load() != 0 {
		t.Error("NoLive must not call providers")
	}
}

// Concurrent identical queries without a chunk observer share one
// pipeline run.
func TestResolve_CoalescesConcurrentIdenticalQueries(t *testing.T) {
	slowRelevant := &countingProvider{
		name:  "wiki",
		tier:  datatypes.ReliabilityHigh,
		delay: 30 * time.Millisecond,
		record: &datatypes.SourceRecord{
			Fields: datatypes.SourceFields{Title: "Ha Trang", Artist: "Khanh Ly"},
		},
	}
	f := newFixture(t, slowRelevant)
	req := datatypes.ResolveRequest{Title: "Hạ Trắng", Artist: "Khánh Ly"}

	var wg sync.WaitGroup
	results := make([]datatypes.ResolvedContent, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.resolver.Resolve(context.Background(), req, nil)
		}(i)
	}
	wg.Wait()

	if got := slowRelevant.searches.Load(); got != 1 {
		t.Errorf("provider searched %d times, want 1 (coalesced)", got)
	}
	for i := 1; i < 4; i++ {
		if results[i].Narrative != results[0].Narrative {
			t.Error("coalesced callers must see the same narrative")
		}
	}
}

// Observer hooks fire in stage order during a live resolution.
func TestResolve_ObserverPhases(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var phases []string
	var chunks int
	obs := &Observer{
		Phase: func(p string) {
			mu.Lock()
			phases = append(phases, p)
			mu.Unlock()
		},
		Chunk: func(string) {
			mu.Lock()
			chunks++
			mu.Unlock()
		},
	}

	content := f.resolver.Resolve(context.Background(),
		datatypes.ResolveRequest{Title: "Hạ Trắng", Artist: "Khánh Ly"}, obs)

	if content.TierOrigin != datatypes.TierLive {
		t.Fatalf("tier = %s, want live", content.TierOrigin)
	}
	if len(phases) != 2 || phases[0] != "searching" || phases[1] != "synthesizing" {
		t.Errorf("phases = %v, want [searching synthesizing]", phases)
	}
	if chunks == 0 {
		t.Error("chunk observer should receive narrative fragments")
	}
}
