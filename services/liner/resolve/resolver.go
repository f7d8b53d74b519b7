// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve orchestrates the tiered answer pipeline: curated
// catalog, result cache, budgeted live fetch with synthesis, and the
// honest fallback. The Resolver always terminates with exactly one
// ResolvedContent and never returns an error to the caller.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/liner/services/liner/budget"
	"github.com/AleutianAI/liner/services/liner/cache"
	"github.com/AleutianAI/liner/services/liner/catalog"
	"github.com/AleutianAI/liner/services/liner/datatypes"
	"github.com/AleutianAI/liner/services/liner/sources"
	"github.com/AleutianAI/liner/services/liner/synth"
	"github.com/AleutianAI/liner/services/llm"
)

var tracer = otel.Tracer("liner.resolve")

// SynthResource is the budget resource name for generative-backend calls.
const SynthResource = "synth"

const defaultPerSourceTimeout = 8 * time.Second

// Observer receives progress callbacks during one resolution. All fields
// are optional. A non-nil Chunk hook switches synthesis to streaming and
// disables request coalescing, since fragments cannot be shared between
// callers.
type Observer struct {
	// Phase is called on entry to the searching and synthesizing stages.
	Phase func(phase string)

	// Source is called once per provider outcome during the live fetch.
	Source func(sources.SourceStatus)

	// Chunk receives incremental narrative fragments during synthesis.
	Chunk func(fragment string)
}

// Resolver walks the tiers for one query.
//
// # Thread Safety
//
//	Resolver is safe for concurrent use. Concurrent identical queries
//	without a Chunk observer are coalesced into one pipeline run.
type Resolver struct {
	catalog     *catalog.Catalog
	cache       *cache.ResultCache
	budget      *budget.Manager
	aggregator  *sources.Aggregator
	synthesizer *synth.Synthesizer

	group            singleflight.Group
	perSourceTimeout time.Duration
	logger           *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPerSourceTimeout overrides the per-provider deadline for the live
// fetch.
func WithPerSourceTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.perSourceTimeout = d
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver over its collaborators. Any collaborator may be
// nil; the corresponding tier is skipped.
func New(cat *catalog.Catalog, resultCache *cache.ResultCache, budgetMgr *budget.Manager,
	aggregator *sources.Aggregator, synthesizer *synth.Synthesizer, opts ...Option) *Resolver {

	r := &Resolver{
		catalog:          cat,
		cache:            resultCache,
		budget:           budgetMgr,
		aggregator:       aggregator,
		synthesizer:      synthesizer,
		perSourceTimeout: defaultPerSourceTimeout,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve answers one request, walking verified, cache, live, and
// fallback in order.
//
// # Description
//
//	Every sub-step failure degrades to the next tier instead of aborting.
//	Identical concurrent queries are coalesced when obs carries no Chunk
//	hook.
//
// # Inputs
//   - ctx: Cancellation for external calls; tier bookkeeping itself
//     never blocks.
//   - req: The validated resolve request.
//   - obs: Optional progress observer; may be nil.
func (r *Resolver) Resolve(ctx context.Context, req datatypes.ResolveRequest, obs *Observer) datatypes.ResolvedContent {
	q := datatypes.NewQuery(req.Title, req.Artist)
	ctx, span := tracer.Start(ctx, "Resolver.Resolve",
		trace.WithAttributes(
			attribute.String("liner.title", q.NormalizedTitle),
			attribute.Bool("liner.no_live", req.NoLive),
		),
	)
	defer span.End()
	if q.IsEmpty() {
		return r.fallback(nil)
	}

	// Tier 1: curated catalog. No budget consumed, no cache involved.
	if content, ok := r.verified(ctx, req); ok {
		span.SetAttributes(attribute.String("liner.tier", string(datatypes.TierVerified)))
		return content
	}

	// Canonicalize variant spellings so they share one cache entry and
	// one coalescing key.
	q = r.canonicalize(q)

	if obs != nil && obs.Chunk != nil {
		return r.resolveTail(ctx, q, req, obs)
	}

	key := q.Key() + "\x00" + req.Language + "\x00" + string(req.MinConfidence) + "\x00" + fmt.Sprint(req.NoLive)
	v, _, shared := r.group.Do(key, func() (interface{}, error) {
		return r.resolveTail(ctx, q, req, obs), nil
	})
	if shared {
		r.logger.Debug("Coalesced duplicate in-flight query", slog.String("title", q.NormalizedTitle))
	}
	return v.(datatypes.ResolvedContent)
}

// resolveTail runs the cache, live, and fallback tiers.
func (r *Resolver) resolveTail(ctx context.Context, q datatypes.Query,
	req datatypes.ResolveRequest, obs *Observer) datatypes.ResolvedContent {

	// Tier 2: result cache, gated by the caller's confidence floor.
	if content, ok := r.cached(ctx, q, req.MinConfidence); ok {
		return content
	}

	// Tier 3: live fetch plus synthesis.
	if !req.NoLive && r.aggregator != nil {
		if content, ok := r.live(ctx, q, req.Language, obs); ok {
			r.writeThrough(q, content)
			return content
		}
	}

	content := r.fallback(r.checkedProviders())
	r.writeThrough(q, content)
	return content
}

// verified consults the curated catalog. A hit with an assigned
// confidence label short-circuits the pipeline.
func (r *Resolver) verified(ctx context.Context, req datatypes.ResolveRequest) (datatypes.ResolvedContent, bool) {
	if r.catalog == nil {
		return datatypes.ResolvedContent{}, false
	}
	_, span := tracer.Start(ctx, "Resolver.verified")
	defer span.End()

	entry, ok := r.catalog.Search(req.Title, req.Artist)
	if !ok || entry.Confidence == datatypes.ConfidenceUnknown || entry.Confidence == "" {
		return datatypes.ResolvedContent{}, false
	}

	sourceInfos := make([]datatypes.SourceInfo, 0, len(entry.Citations)+1)
	sourceInfos = append(sourceInfos, datatypes.SourceInfo{
		Provider: "catalog",
		Tier:     datatypes.ReliabilityVerified,
	})
	for _, c := range entry.Citations {
		sourceInfos = append(sourceInfos, datatypes.SourceInfo{Provider: c.Source})
	}

	return datatypes.ResolvedContent{
		Narrative:  entry.Narrative,
		Confidence: entry.Confidence,
		Sources:    sourceInfos,
		TierOrigin: datatypes.TierVerified,
		CreatedAt:  time.Now().UTC(),
	}, true
}

// canonicalize substitutes the catalog's corrected title/artist when the
// query matches an alias.
func (r *Resolver) canonicalize(q datatypes.Query) datatypes.Query {
	if r.catalog == nil {
		return q
	}
	title, artist, ok := r.catalog.Canonical(q)
	if !ok {
		return q
	}
	corrected := datatypes.NewQuery(title, artist)
	r.logger.Debug("Canonicalized query",
		slog.String("from", q.NormalizedTitle),
		slog.String("to", corrected.NormalizedTitle),
	)
	return corrected
}

// cached returns a fresh cache hit that meets the caller's floor.
func (r *Resolver) cached(ctx context.Context, q datatypes.Query,
	minConfidence datatypes.Confidence) (datatypes.ResolvedContent, bool) {

	if r.cache == nil {
		return datatypes.ResolvedContent{}, false
	}
	_, span := tracer.Start(ctx, "Resolver.cached")
	defer span.End()

	entry, ok := r.cache.Get(q)
	if !ok {
		return datatypes.ResolvedContent{}, false
	}
	if minConfidence != "" && !entry.Data.Confidence.AtLeast(minConfidence) {
		r.logger.Debug("Cache hit below caller floor",
			slog.String("have", string(entry.Data.Confidence)),
			slog.String("want", string(minConfidence)),
		)
		return datatypes.ResolvedContent{}, false
	}

	content := entry.Data
	content.TierOrigin = datatypes.TierCached
	return content, true
}

// live runs the budget check, the fan-out fetch, and synthesis, in that
// order. Returns false when no provider yielded an accepted record or
// synthesis had nothing to work with.
func (r *Resolver) live(ctx context.Context, q datatypes.Query, language string, obs *Observer) (datatypes.ResolvedContent, bool) {
	ctx, span := tracer.Start(ctx, "Resolver.live")
	defer span.End()

	// Budget gate before any live work. A denial still fetches: the
	// raw-source path costs no backend call.
	allowed := true
	if r.budget != nil {
		if d := r.budget.CheckLimit(SynthResource); !d.Allowed {
			allowed = false
			r.logger.Info("Synthesis budget denied, serving raw source",
				slog.String("reason", d.Reason),
				slog.Duration("retry_after", d.RetryAfter),
			)
		}
	}

	phase(obs, "searching")
	var statusFn sources.StatusFunc
	if obs != nil && obs.Source != nil {
		statusFn = obs.Source
	}
	agg := r.aggregator.FetchAll(ctx, q, language, r.perSourceTimeout, statusFn)
	span.SetAttributes(attribute.Int("liner.accepted_sources", len(agg.Records)))

	// An allowed live pass consumes one budget request, accepted sources
	// or not — the window covers the whole live attempt.
	if allowed && r.budget != nil {
		r.budget.RecordRequest(SynthResource)
	}

	if len(agg.Records) == 0 || r.synthesizer == nil {
		return datatypes.ResolvedContent{}, false
	}

	var result synth.Result
	var err error
	if allowed {
		phase(obs, "synthesizing")
		result, err = r.synthesize(ctx, agg, obs)
	} else {
		result, err = r.synthesizer.RawOnly(agg)
		if err == nil {
			result.Warning = "synthesis budget exhausted, returning unprocessed source text"
		}
	}
	if err != nil {
		r.logger.Warn("Synthesis and raw fallback both failed",
			slog.String("title", q.NormalizedTitle),
			slog.String("error", err.Error()),
		)
		return datatypes.ResolvedContent{}, false
	}

	return datatypes.ResolvedContent{
		Narrative:  result.Narrative,
		Confidence: result.Confidence,
		Sources:    datatypes.SourceInfos(agg.Records),
		TierOrigin: datatypes.TierLive,
		IsRaw:      result.IsRaw,
		Warning:    result.Warning,
		CreatedAt:  time.Now().UTC(),
	}, true
}

// synthesize runs the backend, streaming when a chunk observer is
// attached.
func (r *Resolver) synthesize(ctx context.Context, agg datatypes.AggregatedResult, obs *Observer) (synth.Result, error) {
	if obs != nil && obs.Chunk != nil {
		return r.synthesizer.SynthesizeStream(ctx, agg, func(ev llm.StreamEvent) error {
			if ev.Content != "" {
				obs.Chunk(ev.Content)
			}
			return nil
		})
	}
	return r.synthesizer.Synthesize(ctx, agg)
}

// fallback is the honest terminal answer: no content, and a message
// naming what was searched.
func (r *Resolver) fallback(checked []string) datatypes.ResolvedContent {
	var narrative string
	if len(checked) > 0 {
		narrative = fmt.Sprintf(
			"No verified information about this song was found. Sources checked: %s. "+
				"Nothing reliable turned up, so no narrative is provided.",
			strings.Join(checked, ", "))
	} else {
		narrative = "No verified information about this song was found, and no sources were available to check."
	}
	return datatypes.ResolvedContent{
		Narrative:  narrative,
		Confidence: datatypes.ConfidenceNone,
		TierOrigin: datatypes.TierFallback,
		CreatedAt:  time.Now().UTC(),
	}
}

// checkedProviders lists registered provider names for the fallback
// message when the live tier was skipped or empty.
func (r *Resolver) checkedProviders() []string {
	if r.aggregator == nil {
		return nil
	}
	return r.aggregator.ProviderNames()
}

// writeThrough stores a non-cache result under its confidence TTL.
func (r *Resolver) writeThrough(q datatypes.Query, content datatypes.ResolvedContent) {
	if r.cache == nil {
		return
	}
	r.cache.Set(q, content)
}

func phase(obs *Observer, name string) {
	if obs != nil && obs.Phase != nil {
		obs.Phase(name)
	}
}
