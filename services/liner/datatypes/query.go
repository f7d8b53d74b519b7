// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Query is the normalized cache/lookup key for one resolution. Two queries
// with equal normalized fields are identical regardless of surface spelling
// or diacritics.
type Query struct {
	NormalizedTitle  string `json:"normalized_title"`
	NormalizedArtist string `json:"normalized_artist"`
}

// NewQuery normalizes a raw title and optional attributed creator into a
// Query key.
func NewQuery(title, artist string) Query {
	return Query{
		NormalizedTitle:  NormalizeText(title),
		NormalizedArtist: NormalizeText(artist),
	}
}

// Key returns the canonical string key for cache and coalescing maps.
func (q Query) Key() string {
	return q.NormalizedTitle + "\x00" + q.NormalizedArtist
}

// IsEmpty reports whether the query has no usable title.
func (q Query) IsEmpty() bool {
	return q.NormalizedTitle == ""
}

// stripMarks removes Unicode combining marks after canonical decomposition.
// Built once; transform.String is safe for concurrent use with a fresh
// transformer chain per call, but the runes.Remove set is immutable.
var stripMarks = runes.Remove(runes.In(unicode.Mn))

// baseFolder maps letters that do not decompose to a base Latin form.
// Vietnamese đ is the common case for this catalog's domain.
var baseFolder = strings.NewReplacer(
	"đ", "d",
	"ð", "d",
	"ø", "o",
	"ł", "l",
	"ß", "ss",
	"æ", "ae",
	"œ", "oe",
)

// NormalizeText canonicalizes free-form text into the normalized form used
// for all matching: lower-case, NFD decomposition, combining marks stripped,
// language-specific letters folded to base Latin, non-alphanumerics dropped,
// whitespace collapsed.
//
// NormalizeText("Đà Lạt") == NormalizeText("da lat").
func NormalizeText(s string) string {
	s = strings.ToLower(s)

	decomposed, _, err := transform.String(transform.Chain(norm.NFD, stripMarks, norm.NFC), s)
	if err == nil {
		s = decomposed
	}
	s = baseFolder.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// SignificantWords returns the normalized words of s longer than two runes.
// Short connective words carry no matching signal and are excluded from
// overlap ratios.
func SignificantWords(s string) []string {
	var words []string
	for _, w := range strings.Fields(NormalizeText(s)) {
		if len([]rune(w)) > 2 {
			words = append(words, w)
		}
	}
	return words
}

// WordOverlap returns the fraction of a's words that also occur in b.
// Returns 0 when a has no words.
func WordOverlap(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, w := range b {
		set[w] = struct{}{}
	}
	matched := 0
	for _, w := range a {
		if _, ok := set[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(a))
}
