// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data model for the Liner resolution
// pipeline: queries, source records, aggregates, and resolved content.
//
// Query, SourceRecord, and AggregatedResult are request-scoped — created
// and discarded per resolution. ResolvedContent is the single answer the
// Resolver always produces, whatever tier it came from.
package datatypes

import (
	"time"
)

// =============================================================================
// Trust Labels
// =============================================================================

// Confidence is the qualitative trust label on resolved content.
type Confidence string

const (
	ConfidenceVerified Confidence = "verified"
	ConfidenceHigh     Confidence = "high"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceLow      Confidence = "low"
	ConfidenceNone     Confidence = "none"

	// ConfidenceUnknown marks catalog entries whose trust label was never
	// assigned. A verified-tier hit with unknown confidence does not short
	// circuit the pipeline.
	ConfidenceUnknown Confidence = "unknown"
)

// Rank returns the ordering of a confidence label, higher is more trusted.
// Unknown ranks below none so that comparisons against caller thresholds
// never accept an unlabeled answer.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceVerified:
		return 5
	case ConfidenceHigh:
		return 4
	case ConfidenceMedium:
		return 3
	case ConfidenceLow:
		return 2
	case ConfidenceNone:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c meets or exceeds the threshold label.
func (c Confidence) AtLeast(threshold Confidence) bool {
	return c.Rank() >= threshold.Rank()
}

// Max returns the higher-ranked of c and other.
func (c Confidence) Max(other Confidence) Confidence {
	if other.Rank() > c.Rank() {
		return other
	}
	return c
}

// TierOrigin identifies which resolution stage produced the final answer.
type TierOrigin string

const (
	TierVerified TierOrigin = "verified"
	TierCached   TierOrigin = "cached"
	TierLive     TierOrigin = "live"
	TierFallback TierOrigin = "fallback"
)

// ReliabilityTier is a provider-level trust classification, independent of
// any single query.
type ReliabilityTier string

const (
	ReliabilityVerified ReliabilityTier = "verified"
	ReliabilityHigh     ReliabilityTier = "high"
	ReliabilityMedium   ReliabilityTier = "medium"
	ReliabilityLow      ReliabilityTier = "low"
)

// Rank returns the ordering of a reliability tier, higher is more reliable.
func (t ReliabilityTier) Rank() int {
	switch t {
	case ReliabilityVerified:
		return 4
	case ReliabilityHigh:
		return 3
	case ReliabilityMedium:
		return 2
	case ReliabilityLow:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// Source Records
// =============================================================================

// SourceFields holds the structured and free-text fields one provider
// returned for a candidate. Missing fields stay zero — upstream responses
// are parsed defensively and partial answers are normal.
type SourceFields struct {
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Year     int    `json:"year,omitempty"`
	FreeText string `json:"free_text,omitempty"`
}

// IsStructured reports whether the record carries explicit title/artist
// fields, as opposed to a free-text blob. Validation applies different
// acceptance rules to each shape.
func (f SourceFields) IsStructured() bool {
	return f.Title != "" || f.Artist != ""
}

// SourceRecord is one provider's raw candidate answer for a query.
//
// Score is the per-record match confidence in [0,1], assigned by
// validation. An attributed-creator mismatch penalizes Score without
// rejecting the record.
type SourceRecord struct {
	Provider  string          `json:"provider"`
	Tier      ReliabilityTier `json:"tier"`
	FetchedAt time.Time       `json:"fetched_at"`
	Latency   time.Duration   `json:"latency"`
	Fields    SourceFields    `json:"fields"`
	Score     float64         `json:"score"`
}

// AggregatedResult is the merge of all source records accepted by
// validation, with a computed aggregate confidence.
//
// Confidence is monotonic non-decreasing in both the count of accepted
// records and the best reliability tier among them.
type AggregatedResult struct {
	Query      Query          `json:"query"`
	Records    []SourceRecord `json:"records"`
	Confidence Confidence     `json:"confidence"`

	// Checked lists every provider that was asked, accepted or not. The
	// fallback tier uses it to tell the caller honestly what was searched.
	Checked []string `json:"checked,omitempty"`
}

// Best returns the accepted record with the highest Score, breaking ties
// by reliability tier. Returns nil when no records were accepted.
func (a *AggregatedResult) Best() *SourceRecord {
	var best *SourceRecord
	for i := range a.Records {
		r := &a.Records[i]
		if best == nil || r.Score > best.Score ||
			(r.Score == best.Score && r.Tier.Rank() > best.Tier.Rank()) {
			best = r
		}
	}
	return best
}

// =============================================================================
// Resolved Content
// =============================================================================

// SourceInfo is the caller-visible citation for one corroborating source.
type SourceInfo struct {
	Provider string          `json:"provider"`
	Tier     ReliabilityTier `json:"tier,omitempty"`
	Score    float64         `json:"score,omitempty"`
}

// ResolvedContent is the final answer for one query. The Resolver always
// terminates with exactly one ResolvedContent; worst case it is the fixed,
// honestly-labeled "no information found" message with Confidence none.
type ResolvedContent struct {
	Narrative  string       `json:"narrative"`
	Confidence Confidence   `json:"confidence"`
	Sources    []SourceInfo `json:"sources"`
	TierOrigin TierOrigin   `json:"tier_origin"`

	// IsRaw marks content passed through from the best raw source without
	// synthesis (budget denied or backend failed).
	IsRaw bool `json:"is_raw,omitempty"`

	// Warning carries advisory conditions such as a budget denial. Never a
	// hard error — degradation is expressed in Confidence and TierOrigin.
	Warning string `json:"warning,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SourceInfos converts accepted records into caller-visible citations.
func SourceInfos(records []SourceRecord) []SourceInfo {
	infos := make([]SourceInfo, 0, len(records))
	for _, r := range records {
		infos = append(infos, SourceInfo{Provider: r.Provider, Tier: r.Tier, Score: r.Score})
	}
	return infos
}

// Message is a single chat message exchanged with a generative backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
