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
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

// SourceStatus reports one provider's outcome during a fetch. The stream
// layer forwards these to subscribers as they arrive.
type SourceStatus struct {
	Provider string                    `json:"provider"`
	Tier     datatypes.ReliabilityTier `json:"tier"`
	Outcome  string                    `json:"outcome"` // accepted | rejected | not_found | timeout | error | unavailable
	Latency  time.Duration             `json:"latency"`
}

// StatusFunc observes per-provider outcomes during FetchAll. Called from
// provider goroutines; implementations must be safe for concurrent use.
type StatusFunc func(SourceStatus)

// Aggregator fans a query out to every registered provider, validates the
// candidates, and merges the survivors into one AggregatedResult.
//
// # Description
//
//	All providers run concurrently, each raced against the per-source
//	timeout via a context deadline. A timeout, transport error, or
//	validation rejection is never fatal to the fetch; the provider simply
//	contributes nothing. FetchAll itself never returns an error.
//
// # Thread Safety
//
//	Aggregator is safe for concurrent use.
type Aggregator struct {
	registry  *Registry
	validator *Validator
	table     ConfidenceTable
	logger    *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithConfidenceTable overrides the aggregation rules.
func WithConfidenceTable(t ConfidenceTable) AggregatorOption {
	return func(a *Aggregator) { a.table = t }
}

// WithValidator overrides the candidate validator.
func WithValidator(v *Validator) AggregatorOption {
	return func(a *Aggregator) {
		if v != nil {
			a.validator = v
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator creates an Aggregator over the given registry.
func NewAggregator(registry *Registry, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		registry:  registry,
		validator: NewValidator(),
		table:     DefaultConfidenceTable(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchAll queries every registered provider concurrently and returns the
// validated merge.
//
// # Inputs
//   - ctx: Carries cancellation for the whole fetch.
//   - q: The normalized query.
//   - language: BCP-47 tag forwarded to providers; empty means any.
//   - perSourceTimeout: Deadline applied to each provider individually.
//   - status: Optional per-provider outcome observer; may be nil.
//
// # Outputs
//   - datatypes.AggregatedResult: Accepted records in priority order with
//     aggregate confidence, plus the full list of checked provider names.
func (a *Aggregator) FetchAll(ctx context.Context, q datatypes.Query, language string,
	perSourceTimeout time.Duration, status StatusFunc) datatypes.AggregatedResult {

	providers := a.registry.List()
	result := datatypes.AggregatedResult{
		Query:   q,
		Checked: make([]string, 0, len(providers)),
	}
	for _, p := range providers {
		result.Checked = append(result.Checked, p.Name())
	}
	if len(providers) == 0 {
		result.Confidence = datatypes.ConfidenceNone
		return result
	}

	// One slot per provider keeps acceptance order deterministic without
	// a results mutex.
	accepted := make([]*datatypes.SourceRecord, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			accepted[i] = a.fetchOne(gctx, p, q, language, perSourceTimeout, status)
			return nil
		})
	}
	// Goroutines never return errors; Wait is a join.
	_ = g.Wait()

	for _, rec := range accepted {
		if rec != nil {
			result.Records = append(result.Records, *rec)
		}
	}
	result.Confidence = a.table.Aggregate(result.Records)

	a.logger.Debug("Source fetch complete",
		slog.String("query", q.NormalizedTitle),
		slog.Int("checked", len(providers)),
		slog.Int("accepted", len(result.Records)),
		slog.String("confidence", string(result.Confidence)),
	)
	return result
}

// ProviderNames lists the registered provider names in priority order.
// The fallback tier uses it to say what would have been checked.
func (a *Aggregator) ProviderNames() []string {
	providers := a.registry.List()
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return names
}

// fetchOne runs a single provider with its own deadline and validates the
// candidate. Returns nil for every non-accepted outcome.
func (a *Aggregator) fetchOne(ctx context.Context, p Provider, q datatypes.Query,
	language string, timeout time.Duration, status StatusFunc) *datatypes.SourceRecord {

	report := func(outcome string, latency time.Duration) {
		recordFetch(p.Name(), outcome)
		if status != nil {
			status(SourceStatus{Provider: p.Name(), Tier: p.Tier(), Outcome: outcome, Latency: latency})
		}
	}

	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if !p.IsAvailable(cctx) {
		a.logger.Debug("Provider unavailable, skipping", slog.String("provider", p.Name()))
		report("unavailable", 0)
		return nil
	}

	start := time.Now()
	rec, err := p.Search(cctx, q, language)
	latency := time.Since(start)

	switch {
	case err != nil:
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrProviderTimeout) {
			outcome = "timeout"
		} else if errors.Is(err, ErrProviderUnavailable) {
			outcome = "unavailable"
		}
		a.logger.Debug("Provider search failed, treating as not found",
			slog.String("provider", p.Name()),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		report(outcome, latency)
		return nil
	case rec == nil:
		report("not_found", latency)
		return nil
	}

	rec.Provider = p.Name()
	rec.Tier = p.Tier()
	rec.FetchedAt = start.UTC()
	rec.Latency = latency

	score, ok := a.validator.Validate(q, rec)
	if !ok {
		a.logger.Debug("Candidate rejected by validation",
			slog.String("provider", p.Name()),
			slog.String("title", rec.Fields.Title),
		)
		report("rejected", latency)
		return nil
	}
	rec.Score = score

	report("accepted", latency)
	return rec
}
