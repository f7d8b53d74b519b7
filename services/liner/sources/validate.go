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
	"strings"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

// defaultVocabulary is the domain-relevance term list for free-text
// candidates. A blob that mentions none of these is about something other
// than the song and gets rejected regardless of title overlap.
var defaultVocabulary = []string{
	"song", "ballad", "lyric", "lyrics", "album", "single", "track",
	"melody", "composer", "composed", "wrote", "written", "recorded",
	"released", "music", "singer", "performed", "cover", "bài hát",
	"nhạc", "ca khúc", "sáng tác", "trình bày",
}

const (
	// defaultArtistPenalty scales a candidate's score when the attributed
	// creator is present but does not match.
	defaultArtistPenalty = 0.6

	// defaultOverlapThreshold is the minimum title word-overlap ratio for
	// structured candidates without an exact or substring title match.
	defaultOverlapThreshold = 0.5

	// strongTitleScore marks a title match solid enough that a free-text
	// candidate may proceed at reduced confidence despite an unmatched
	// artist.
	strongTitleScore = 0.9
)

// Validator decides whether a provider candidate actually answers the
// query, and scores how well. Structured and free-text candidates follow
// different acceptance rules.
//
// Thread Safety: Validator is immutable after construction and safe for
// concurrent use.
type Validator struct {
	vocabulary       []string
	artistPenalty    float64
	overlapThreshold float64
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithVocabulary replaces the domain-relevance term list.
func WithVocabulary(terms []string) ValidatorOption {
	return func(v *Validator) {
		if len(terms) > 0 {
			v.vocabulary = terms
		}
	}
}

// WithArtistPenalty overrides the creator-mismatch score multiplier.
func WithArtistPenalty(p float64) ValidatorOption {
	return func(v *Validator) {
		if p > 0 && p <= 1 {
			v.artistPenalty = p
		}
	}
}

// NewValidator creates a Validator with the default vocabulary and
// thresholds.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		vocabulary:       defaultVocabulary,
		artistPenalty:    defaultArtistPenalty,
		overlapThreshold: defaultOverlapThreshold,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate scores a candidate against the query.
//
// # Description
//
//	Structured candidates (explicit title/artist fields) are accepted on an
//	exact or substring title match, or a significant-word overlap at or
//	above the threshold. A creator mismatch penalizes the score without
//	rejecting. Free-text candidates must mention a domain vocabulary term
//	and carry the title, either verbatim or as a majority of its
//	significant words; an unmatched creator rejects unless the title match
//	was strong, in which case the score is penalized instead.
//
// # Outputs
//   - float64: Match score in (0, 1], meaningful only when accepted.
//   - bool: Whether the candidate is accepted.
func (v *Validator) Validate(q datatypes.Query, rec *datatypes.SourceRecord) (float64, bool) {
	if rec == nil || q.IsEmpty() {
		return 0, false
	}
	if rec.Fields.IsStructured() {
		return v.validateStructured(q, rec.Fields)
	}
	return v.validateFreeText(q, rec.Fields.FreeText)
}

func (v *Validator) validateStructured(q datatypes.Query, f datatypes.SourceFields) (float64, bool) {
	candTitle := datatypes.NormalizeText(f.Title)
	if candTitle == "" {
		return 0, false
	}

	var score float64
	switch {
	case candTitle == q.NormalizedTitle:
		score = 1.0
	case strings.Contains(candTitle, q.NormalizedTitle) ||
		strings.Contains(q.NormalizedTitle, candTitle):
		score = 0.9
	default:
		overlap := datatypes.WordOverlap(
			datatypes.SignificantWords(q.NormalizedTitle),
			datatypes.SignificantWords(candTitle),
		)
		if overlap < v.overlapThreshold {
			return 0, false
		}
		score = overlap
	}

	if q.NormalizedArtist != "" && f.Artist != "" {
		candArtist := datatypes.NormalizeText(f.Artist)
		if !artistMatches(q.NormalizedArtist, candArtist) {
			score *= v.artistPenalty
		}
	}
	return score, true
}

func (v *Validator) validateFreeText(q datatypes.Query, text string) (float64, bool) {
	norm := datatypes.NormalizeText(text)
	if norm == "" {
		return 0, false
	}

	if !v.containsVocabulary(norm) {
		return 0, false
	}

	var score float64
	if strings.Contains(norm, q.NormalizedTitle) {
		score = strongTitleScore
	} else {
		words := datatypes.SignificantWords(q.NormalizedTitle)
		if len(words) == 0 {
			return 0, false
		}
		found := 0
		for _, w := range words {
			if strings.Contains(norm, w) {
				found++
			}
		}
		ratio := float64(found) / float64(len(words))
		if ratio < 0.5 {
			return 0, false
		}
		score = 0.5 + ratio/4
	}

	if q.NormalizedArtist != "" && !strings.Contains(norm, q.NormalizedArtist) {
		if score < strongTitleScore {
			return 0, false
		}
		score *= v.artistPenalty
	}
	return score, true
}

func (v *Validator) containsVocabulary(norm string) bool {
	for _, term := range v.vocabulary {
		if strings.Contains(norm, datatypes.NormalizeText(term)) {
			return true
		}
	}
	return false
}

// artistMatches compares normalized artist strings, accepting containment
// either way so that "khanh ly" matches "khanh ly band" listings.
func artistMatches(want, got string) bool {
	if want == got {
		return true
	}
	if got == "" {
		return false
	}
	return strings.Contains(got, want) || strings.Contains(want, got)
}
