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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/AleutianAI/liner/services/liner/catalog"
	"github.com/AleutianAI/liner/services/liner/datatypes"
)

// =============================================================================
// REST Provider Wire Types
// =============================================================================

// restSearchResponse is the upstream answer envelope. Every field is
// optional; partial answers are normal and parsed defensively. A response
// may carry structured fields, a free-text summary, or both.
type restSearchResponse struct {
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
	Album   string `json:"album,omitempty"`
	Year    int    `json:"year,omitempty"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// REST Provider
// =============================================================================

// RESTConfig configures one HTTP provider instance.
type RESTConfig struct {
	Name      string                    `yaml:"name"`
	Tier      datatypes.ReliabilityTier `yaml:"tier"`
	Priority  int                       `yaml:"priority"`
	Languages []string                  `yaml:"languages,omitempty"`
	BaseURL   string                    `yaml:"base_url"`
	APIKey    string                    `yaml:"api_key,omitempty"`
	Timeout   time.Duration             `yaml:"timeout,omitempty"`
}

// RESTProvider queries an upstream song-metadata HTTP API using raw
// net/http.
//
// # Description
//
//	Sends GET <base_url>?title=..&artist=..&lang=.. and parses the JSON
//	envelope defensively. A 404 or an empty envelope is "not found", not
//	an error. Non-2xx statuses map to ErrProviderUnavailable; a context
//	deadline maps to ErrProviderTimeout.
//
// # Thread Safety
//
//	RESTProvider is safe for concurrent use.
type RESTProvider struct {
	cfg        RESTConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRESTProvider creates a RESTProvider from its configuration.
//
// Outputs:
//   - *RESTProvider: The configured provider.
//   - error: Non-nil if the base URL is missing or unparsable.
func NewRESTProvider(cfg RESTConfig, logger *slog.Logger) (*RESTProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest provider %q: base URL is required", cfg.Name)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("rest provider %q: parsing base URL: %w", cfg.Name, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tier == "" {
		cfg.Tier = datatypes.ReliabilityLow
	}
	return &RESTProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Name implements Provider.
func (p *RESTProvider) Name() string { return p.cfg.Name }

// Tier implements Provider.
func (p *RESTProvider) Tier() datatypes.ReliabilityTier { return p.cfg.Tier }

// Priority implements Provider.
func (p *RESTProvider) Priority() int { return p.cfg.Priority }

// Languages implements Provider.
func (p *RESTProvider) Languages() []string { return p.cfg.Languages }

// IsAvailable implements Provider. Configuration presence is the probe;
// an unreachable upstream surfaces as a Search error and is absorbed by
// the aggregator.
func (p *RESTProvider) IsAvailable(ctx context.Context) bool {
	return p.cfg.BaseURL != ""
}

// Search implements Provider by querying the upstream search endpoint.
func (p *RESTProvider) Search(ctx context.Context, q datatypes.Query, language string) (*datatypes.SourceRecord, error) {
	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: parsing base URL: %w", p.cfg.Name, err)
	}
	params := u.Query()
	params.Set("title", q.NormalizedTitle)
	if q.NormalizedArtist != "" {
		params.Set("artist", q.NormalizedArtist)
	}
	if language != "" {
		params.Set("lang", language)
	}
	u.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: creating HTTP request: %w", p.cfg.Name, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	p.logger.Debug("Querying source provider",
		slog.String("provider", p.cfg.Name),
		slog.String("title", q.NormalizedTitle),
	)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", p.cfg.Name, ErrProviderTimeout)
		}
		return nil, fmt.Errorf("%s: %w: %v", p.cfg.Name, ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w: upstream status %d", p.cfg.Name, ErrProviderUnavailable, resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: reading response body: %w", p.cfg.Name, err)
	}

	var envelope restSearchResponse
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return nil, fmt.Errorf("%s: parsing response JSON: %w", p.cfg.Name, err)
	}
	if envelope.Error != "" {
		p.logger.Debug("Provider returned error envelope",
			slog.String("provider", p.cfg.Name),
			slog.String("error", envelope.Error),
		)
		return nil, nil
	}

	fields := datatypes.SourceFields{
		Title:    envelope.Title,
		Artist:   envelope.Artist,
		Album:    envelope.Album,
		Year:     envelope.Year,
		FreeText: envelope.Summary,
	}
	if !fields.IsStructured() && fields.FreeText == "" {
		return nil, nil
	}
	return &datatypes.SourceRecord{Fields: fields}, nil
}

// =============================================================================
// Catalog Mirror Provider
// =============================================================================

// CatalogMirror exposes the curated catalog to the live tier as a
// verified-tier source, so catalog material still corroborates live
// fetches when the direct verified lookup missed (fuzzy-only matches
// below the short-circuit threshold).
//
// Thread Safety: CatalogMirror is safe for concurrent use.
type CatalogMirror struct {
	cat      *catalog.Catalog
	priority int
}

// NewCatalogMirror wraps the curated catalog as a Provider.
func NewCatalogMirror(cat *catalog.Catalog, priority int) *CatalogMirror {
	return &CatalogMirror{cat: cat, priority: priority}
}

// Name implements Provider.
func (m *CatalogMirror) Name() string { return "catalog" }

// Tier implements Provider.
func (m *CatalogMirror) Tier() datatypes.ReliabilityTier { return datatypes.ReliabilityVerified }

// Priority implements Provider.
func (m *CatalogMirror) Priority() int { return m.priority }

// Languages implements Provider.
func (m *CatalogMirror) Languages() []string { return nil }

// IsAvailable implements Provider.
func (m *CatalogMirror) IsAvailable(ctx context.Context) bool { return m.cat != nil }

// Search implements Provider against the in-process catalog.
func (m *CatalogMirror) Search(ctx context.Context, q datatypes.Query, language string) (*datatypes.SourceRecord, error) {
	entry, ok := m.cat.Search(q.NormalizedTitle, q.NormalizedArtist)
	if !ok {
		return nil, nil
	}
	return &datatypes.SourceRecord{
		Fields: datatypes.SourceFields{
			Title:    entry.Title,
			Artist:   entry.Artist,
			Album:    entry.Album,
			Year:     entry.Year,
			FreeText: entry.Narrative,
		},
	}, nil
}
