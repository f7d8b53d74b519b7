// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// InsufficientInfoMessage replaces output that did not survive filtering.
const InsufficientInfoMessage = "There is not enough verified information " +
	"about this song to provide a reliable background narrative."

// minNarrativeLength is the shortest filtered output still considered a
// usable narrative, in runes.
const minNarrativeLength = 40

// bannedPatterns match sentences that fabricate quotations or reproduce
// quoted spans long enough to be lyric text. Matching is per sentence,
// case-insensitive where marked.
var bannedPatterns = []*regexp.Regexp{
	// Fabricated-quotation markers
	regexp.MustCompile(`(?i)the (?:lyrics|words) (?:say|go|read|state)`),
	regexp.MustCompile(`(?i)as the song (?:goes|says)`),
	regexp.MustCompile(`(?i)quot(?:e|ing) the (?:song|lyrics|chorus|verse)`),
	regexp.MustCompile(`(?i)the (?:chorus|verse|refrain) (?:reads|goes)`),
	// Quoted spans above the lyric-length threshold, straight or curly
	regexp.MustCompile(`"[^"]{60,}"`),
	regexp.MustCompile(`“[^”]{60,}”`),
}

// defaultDecoys are known decoy strings some upstream mirrors inject into
// scraped song pages. A sentence containing one is dropped outright.
var defaultDecoys = []string{
	"lorem ipsum",
	"click here to read more",
	"all rights reserved",
	"download the full lyrics",
}

// sentenceEnd splits narrative text after terminal punctuation followed
// by whitespace. The ellipsis is terminal too.
var sentenceEnd = regexp.MustCompile(`(?:[.!?…])(?:["”']?)(?:\s+|\z)`)

// ContentFilter drops fabrication-marked sentences from synthesized
// narratives.
//
// Thread Safety: ContentFilter is immutable after construction and safe
// for concurrent use.
type ContentFilter struct {
	patterns []*regexp.Regexp
	decoys   []string
}

// FilterOption configures a ContentFilter.
type FilterOption func(*ContentFilter)

// WithDecoys replaces the decoy-string list.
func WithDecoys(decoys []string) FilterOption {
	return func(f *ContentFilter) { f.decoys = decoys }
}

// NewContentFilter creates a ContentFilter with the default banned
// patterns and decoy strings.
func NewContentFilter(opts ...FilterOption) *ContentFilter {
	f := &ContentFilter{
		patterns: bannedPatterns,
		decoys:   defaultDecoys,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Filter splits text into sentences, drops every banned sentence, and
// rejoins the survivors.
//
// # Outputs
//   - string: The surviving narrative; empty when nothing survived.
//   - int: Count of dropped sentences.
func (f *ContentFilter) Filter(text string) (string, int) {
	sentences := SplitSentences(text)
	kept := make([]string, 0, len(sentences))
	dropped := 0
	for _, s := range sentences {
		if f.Banned(s) {
			dropped++
			continue
		}
		kept = append(kept, strings.TrimSpace(s))
	}
	return strings.Join(kept, " "), dropped
}

// Banned reports whether one sentence matches any banned pattern or
// contains a decoy string.
func (f *ContentFilter) Banned(sentence string) bool {
	for _, p := range f.patterns {
		if p.MatchString(sentence) {
			return true
		}
	}
	lower := strings.ToLower(sentence)
	for _, d := range f.decoys {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// TooShort reports whether a filtered narrative is below the minimum
// usable length.
func TooShort(narrative string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(narrative)) < minNarrativeLength
}

// SplitSentences splits text after terminal punctuation. Text after the
// last terminator is returned as a final, unterminated sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	rest := text
	for {
		loc := sentenceEnd.FindStringIndex(rest)
		if loc == nil {
			break
		}
		out = append(out, strings.TrimSpace(rest[:loc[1]]))
		rest = rest[loc[1]:]
		if rest == "" {
			return out
		}
	}
	out = append(out, strings.TrimSpace(rest))
	return out
}
