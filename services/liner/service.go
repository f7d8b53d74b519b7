// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package liner wires the resolution pipeline behind an HTTP surface:
// gin handlers for one-shot, SSE, and WebSocket resolution plus the
// debug and health endpoints.
package liner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/liner/services/liner/budget"
	"github.com/AleutianAI/liner/services/liner/cache"
	"github.com/AleutianAI/liner/services/liner/catalog"
	"github.com/AleutianAI/liner/services/liner/config"
	"github.com/AleutianAI/liner/services/liner/datatypes"
	"github.com/AleutianAI/liner/services/liner/resolve"
	"github.com/AleutianAI/liner/services/liner/sources"
	"github.com/AleutianAI/liner/services/liner/stream"
	"github.com/AleutianAI/liner/services/liner/synth"
	"github.com/AleutianAI/liner/services/llm"
)

// ServiceVersion is the liner service version.
const ServiceVersion = "0.1.0"

// Service owns every pipeline collaborator and their lifecycles.
//
// # Thread Safety
//
//	Safe for concurrent use after NewService returns.
type Service struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	cache    *cache.ResultCache
	store    *cache.BadgerStore
	budget   *budget.Manager
	registry *sources.Registry
	resolver *resolve.Resolver
	emitter  *stream.Emitter
	logger   *slog.Logger

	watchCancel context.CancelFunc
}

// NewService builds the full pipeline from configuration.
//
// # Description
//
//	Loads the catalog (external file or embedded), opens the optional
//	BadgerDB cache store, registers configured HTTP providers and the
//	catalog mirror, connects the generative backend, and assembles the
//	resolver. A configured catalog watcher starts immediately and stops
//	on Close.
func NewService(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("NewService: cfg must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var catalogOpts []catalog.Option
	if cfg.Catalog.MinScore > 0 {
		catalogOpts = append(catalogOpts, catalog.WithMinScore(cfg.Catalog.MinScore))
	}
	catalogOpts = append(catalogOpts, catalog.WithLogger(logger))

	var cat *catalog.Catalog
	var err error
	if cfg.Catalog.Path != "" {
		cat, err = catalog.LoadFile(cfg.Catalog.Path, catalogOpts...)
	} else {
		cat, err = catalog.LoadEmbedded(catalogOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	cacheOpts := []cache.Option{
		cache.WithTTLTable(cfg.TTLTable()),
		cache.WithLogger(logger),
	}
	if cfg.Cache.MaxEntries > 0 {
		cacheOpts = append(cacheOpts, cache.WithMaxEntries(cfg.Cache.MaxEntries))
	}
	var store *cache.BadgerStore
	if cfg.Cache.BadgerPath != "" {
		store, err = cache.OpenBadgerStore(cfg.Cache.BadgerPath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening cache store: %w", err)
		}
		cacheOpts = append(cacheOpts, cache.WithStore(store))
	}
	resultCache := cache.New(cacheOpts...)

	registry := sources.NewRegistry()
	for _, rc := range cfg.RESTConfigs(logger) {
		provider, err := sources.NewRESTProvider(rc, logger)
		if err != nil {
			closeStore(store, logger)
			return nil, fmt.Errorf("configuring provider: %w", err)
		}
		registry.Register(provider)
	}
	if cfg.Catalog.MirrorAsSource {
		registry.Register(sources.NewCatalogMirror(cat, cfg.Catalog.MirrorPriority))
	}

	client, err := llm.NewClient(cfg.Synth.Backend)
	if err != nil {
		closeStore(store, logger)
		return nil, fmt.Errorf("connecting generative backend: %w", err)
	}

	var synthOpts []synth.Option
	if cfg.Synth.MaxTokens > 0 {
		synthOpts = append(synthOpts, synth.WithMaxTokens(cfg.Synth.MaxTokens))
	}
	synthOpts = append(synthOpts, synth.WithLogger(logger))

	aggOpts := []sources.AggregatorOption{sources.WithLogger(logger)}
	if cfg.Sources.Confidence != nil {
		aggOpts = append(aggOpts, sources.WithConfidenceTable(*cfg.Sources.Confidence))
	}

	var resolveOpts []resolve.Option
	if d := cfg.PerSourceTimeout(); d > 0 {
		resolveOpts = append(resolveOpts, resolve.WithPerSourceTimeout(d))
	}
	resolveOpts = append(resolveOpts, resolve.WithLogger(logger))

	budgetMgr := budget.NewManager(cfg.BudgetLimits(), budget.WithLogger(logger))
	resolver := resolve.New(
		cat,
		resultCache,
		budgetMgr,
		sources.NewAggregator(registry, aggOpts...),
		synth.New(client, synthOpts...),
		resolveOpts...,
	)

	svc := &Service{
		cfg:      cfg,
		catalog:  cat,
		cache:    resultCache,
		store:    store,
		budget:   budgetMgr,
		registry: registry,
		resolver: resolver,
		emitter:  stream.NewEmitter(resolver, stream.WithEmitterLogger(logger)),
		logger:   logger,
	}

	if cfg.Catalog.Watch && cfg.Catalog.Path != "" {
		watcher, err := catalog.NewWatcher(cat, cfg.Catalog.Path, logger)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("watching catalog: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		svc.watchCancel = cancel
		go watcher.Run(ctx)
	}

	logger.Info("Liner service assembled",
		slog.Int("catalog_entries", cat.Len()),
		slog.Int("providers", registry.Len()),
		slog.String("backend", cfg.Synth.Backend),
		slog.Bool("persistent_cache", store != nil))

	return svc, nil
}

func closeStore(store *cache.BadgerStore, logger *slog.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Warn("Failed to close cache store", slog.String("error", err.Error()))
	}
}

// Resolve runs one blocking resolution.
func (s *Service) Resolve(ctx context.Context, req datatypes.ResolveRequest) datatypes.ResolvedContent {
	return s.resolver.Resolve(ctx, req, nil)
}

// Stream runs one resolution as an ordered event stream.
func (s *Service) Stream(ctx context.Context, req datatypes.ResolveRequest) <-chan stream.Event {
	return s.emitter.Run(ctx, req)
}

// CacheStats returns a point-in-time cache snapshot.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Snapshot()
}

// InvalidateCache drops the entry for one query. An absent entry is not
// an error.
func (s *Service) InvalidateCache(title, artist string) {
	s.cache.Invalidate(datatypes.NewQuery(title, artist))
}

// ResetCache drops every cached entry.
func (s *Service) ResetCache() {
	s.cache.Reset()
}

// BudgetRemaining reports remaining requests and cost headroom for the
// synthesis resource. Unconfigured limits report -1.
func (s *Service) BudgetRemaining() (requests int, cost float64) {
	return s.budget.Remaining(resolve.SynthResource)
}

// CatalogSize reports the number of verified entries currently loaded.
func (s *Service) CatalogSize() int {
	return s.catalog.Len()
}

// Providers lists registered provider names in priority order.
func (s *Service) Providers() []string {
	providers := s.registry.List()
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return names
}

// Ready reports whether the service can answer queries. The catalog and
// fallback tiers always can, so readiness only requires assembly.
func (s *Service) Ready() bool {
	return s.resolver != nil
}

// Close stops the catalog watcher and releases the cache store.
func (s *Service) Close() error {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.store != nil {
		err := s.store.Close()
		s.store = nil
		return err
	}
	return nil
}
