// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog implements the verified lookup tier: exact and fuzzy
// search over a curated, fully-trusted dataset of works.
//
// The catalog is a pure read service for the Resolver — a hit costs no
// budget and short-circuits every later tier. Entries load from an
// embedded YAML file, optionally overridden by an external file that can
// be hot-reloaded (see Watcher).
package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

// =============================================================================
// Embedded Default Catalog
// =============================================================================

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// defaultMinScore is the minimum weighted similarity for a fuzzy match.
// Below this the catalog reports not found rather than guessing.
const defaultMinScore = 0.65

// titleWeight and artistWeight bias fuzzy scoring toward the title.
const (
	titleWeight  = 0.7
	artistWeight = 0.3
)

// =============================================================================
// Types
// =============================================================================

// Citation names one authority backing a catalog entry.
type Citation struct {
	Source string `yaml:"source" json:"source"`
	URL    string `yaml:"url,omitempty" json:"url,omitempty"`
}

// Entry is one curated work. The narrative is editorially reviewed and is
// returned verbatim at the verified tier.
type Entry struct {
	Title      string               `yaml:"title" json:"title"`
	Artist     string               `yaml:"artist" json:"artist"`
	Composer   string               `yaml:"composer,omitempty" json:"composer,omitempty"`
	Album      string               `yaml:"album,omitempty" json:"album,omitempty"`
	Year       int                  `yaml:"year,omitempty" json:"year,omitempty"`
	Aliases    []string             `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Confidence datatypes.Confidence `yaml:"confidence" json:"confidence"`
	Citations  []Citation           `yaml:"citations,omitempty" json:"citations,omitempty"`
	Narrative  string               `yaml:"narrative" json:"narrative"`

	// Normalized forms, computed at load time.
	normTitle   string
	normArtist  string
	normAliases []string
	titleWords  []string
}

// catalogFile is the YAML document shape.
type catalogFile struct {
	Entries []*Entry `yaml:"entries"`
}

// Catalog holds the loaded entries and their lookup indexes.
//
// # Thread Safety
//
// Safe for concurrent use. ReplaceAll swaps the indexes under the write
// lock; Search takes the read lock.
type Catalog struct {
	mu       sync.RWMutex
	entries  []*Entry
	byTitle  map[string][]*Entry
	byAlias  map[string][]*Entry
	minScore float64
	logger   *slog.Logger
}

// =============================================================================
// Construction
// =============================================================================

// Option configures a Catalog.
type Option func(*Catalog)

// WithMinScore overrides the fuzzy-match acceptance threshold.
func WithMinScore(score float64) Option {
	return func(c *Catalog) {
		if score > 0 {
			c.minScore = score
		}
	}
}

// WithLogger sets the logger. Nil falls back to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a catalog from already-parsed entries.
func New(entries []*Entry, opts ...Option) *Catalog {
	c := &Catalog{
		minScore: defaultMinScore,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ReplaceAll(entries)
	return c
}

// LoadEmbedded builds a catalog from the compiled-in dataset.
func LoadEmbedded(opts ...Option) (*Catalog, error) {
	entries, err := parseYAML(defaultCatalogYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded catalog: %w", err)
	}
	return New(entries, opts...), nil
}

// LoadFile builds a catalog from an external YAML file. The embedded
// dataset is not merged in — an external file fully replaces it.
func LoadFile(path string, opts ...Option) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	entries, err := parseYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return New(entries, opts...), nil
}

// parseYAML decodes and sanity-checks a catalog document.
func parseYAML(raw []byte) ([]*Entry, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog YAML: %w", err)
	}
	for i, e := range doc.Entries {
		if e.Title == "" {
			return nil, fmt.Errorf("entry %d: missing title", i)
		}
		if e.Confidence == "" {
			e.Confidence = datatypes.ConfidenceUnknown
		}
	}
	return doc.Entries, nil
}

// ReplaceAll swaps in a new entry set, rebuilding all indexes. Used by the
// initial load and by the hot-reload watcher.
func (c *Catalog) ReplaceAll(entries []*Entry) {
	byTitle := make(map[string][]*Entry, len(entries))
	byAlias := make(map[string][]*Entry)
	for _, e := range entries {
		e.normTitle = datatypes.NormalizeText(e.Title)
		e.normArtist = datatypes.NormalizeText(e.Artist)
		e.titleWords = datatypes.SignificantWords(e.Title)
		e.normAliases = e.normAliases[:0]
		for _, a := range e.Aliases {
			na := datatypes.NormalizeText(a)
			if na == "" {
				continue
			}
			e.normAliases = append(e.normAliases, na)
			byAlias[na] = append(byAlias[na], e)
		}
		byTitle[e.normTitle] = append(byTitle[e.normTitle], e)
	}

	c.mu.Lock()
	c.entries = entries
	c.byTitle = byTitle
	c.byAlias = byAlias
	c.mu.Unlock()

	c.logger.Info("catalog loaded", slog.Int("entries", len(entries)))
}

// Len returns the number of loaded entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// =============================================================================
// Search
// =============================================================================

// Search finds the single best entry for a title and optional attributed
// creator. Matching order: exact normalized title, then alias, then
// weighted similarity above the minimum score. Pure read, no side effects.
func (c *Catalog) Search(title, artist string) (*Entry, bool) {
	q := datatypes.NewQuery(title, artist)
	if q.IsEmpty() {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if hits := c.byTitle[q.NormalizedTitle]; len(hits) > 0 {
		return pickByArtist(hits, q.NormalizedArtist), true
	}
	if hits := c.byAlias[q.NormalizedTitle]; len(hits) > 0 {
		return pickByArtist(hits, q.NormalizedArtist), true
	}

	var best *Entry
	bestScore := 0.0
	queryWords := datatypes.SignificantWords(title)
	for _, e := range c.entries {
		score := similarity(q, queryWords, e)
		if score > bestScore {
			best, bestScore = e, score
		}
	}
	if best == nil || bestScore < c.minScore {
		return nil, false
	}
	return best, true
}

// Canonical reports the corrected title/artist for a query when the query
// matches an alias or an artist-less exact title. The Resolver substitutes
// the corrected form before the cache and live tiers so that variant
// spellings share one cache entry.
func (c *Catalog) Canonical(q datatypes.Query) (title, artist string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if hits := c.byAlias[q.NormalizedTitle]; len(hits) > 0 {
		e := pickByArtist(hits, q.NormalizedArtist)
		return e.Title, e.Artist, true
	}
	if q.NormalizedArtist == "" {
		if hits := c.byTitle[q.NormalizedTitle]; len(hits) == 1 {
			return hits[0].Title, hits[0].Artist, true
		}
	}
	return "", "", false
}

// pickByArtist disambiguates same-title entries by attributed creator.
// With no artist given, the first (curation-order) entry wins.
func pickByArtist(hits []*Entry, normArtist string) *Entry {
	if normArtist != "" {
		for _, e := range hits {
			if e.normArtist == normArtist || strings.Contains(e.normArtist, normArtist) {
				return e
			}
		}
	}
	return hits[0]
}

// similarity computes the weighted fuzzy score of an entry against a query:
// 70% title, 30% attributed creator. Title similarity combines substring
// containment with significant-word overlap; a missing query artist
// contributes a neutral score so title-only queries are not penalized.
func similarity(q datatypes.Query, queryWords []string, e *Entry) float64 {
	titleScore := 0.0
	switch {
	case q.NormalizedTitle == e.normTitle:
		titleScore = 1.0
	case strings.Contains(e.normTitle, q.NormalizedTitle) || strings.Contains(q.NormalizedTitle, e.normTitle):
		titleScore = 0.9
	default:
		titleScore = datatypes.WordOverlap(queryWords, e.titleWords)
	}

	artistScore := 0.5 // neutral when the caller gave no creator
	if q.NormalizedArtist != "" {
		switch {
		case q.NormalizedArtist == e.normArtist:
			artistScore = 1.0
		case strings.Contains(e.normArtist, q.NormalizedArtist) || strings.Contains(q.NormalizedArtist, e.normArtist):
			artistScore = 0.8
		default:
			artistScore = 0.0
		}
	}

	return titleWeight*titleScore + artistWeight*artistScore
}
