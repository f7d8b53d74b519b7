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

import "strings"

// StreamFilter applies the content filter to a token stream without
// leaking banned material.
//
// # Description
//
//	Backend fragments arrive at sub-sentence granularity, so a banned
//	sentence cannot be recognized until its terminator arrives. The
//	filter buffers fragments, releases only complete sentences that pass
//	the content filter, and holds the unterminated tail until Flush.
//	Emitted text is therefore always clean, at the cost of sentence-level
//	latency.
//
// # Thread Safety
//
//	StreamFilter is NOT safe for concurrent use. One instance serves one
//	stream.
type StreamFilter struct {
	filter  *ContentFilter
	buf     strings.Builder
	dropped int
}

// NewStreamFilter creates a StreamFilter over the given content filter.
func NewStreamFilter(filter *ContentFilter) *StreamFilter {
	return &StreamFilter{filter: filter}
}

// Write buffers one fragment and returns any complete sentences that
// passed filtering, ready to emit.
func (sf *StreamFilter) Write(fragment string) []string {
	sf.buf.WriteString(fragment)
	text := sf.buf.String()

	// Slice the raw buffer at the last terminator so the unterminated
	// tail keeps its exact spacing for the next fragment.
	cut := lastSentenceEnd(text)
	if cut <= 0 {
		return nil
	}
	head, tail := text[:cut], text[cut:]
	sf.buf.Reset()
	sf.buf.WriteString(tail)

	return sf.release(SplitSentences(head))
}

// Flush filters and returns whatever remains buffered. Call once, after
// the stream ends.
func (sf *StreamFilter) Flush() []string {
	rest := strings.TrimSpace(sf.buf.String())
	sf.buf.Reset()
	if rest == "" {
		return nil
	}
	return sf.release([]string{rest})
}

// Dropped returns the count of sentences removed so far.
func (sf *StreamFilter) Dropped() int {
	return sf.dropped
}

func (sf *StreamFilter) release(sentences []string) []string {
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if sf.filter.Banned(s) {
			sf.dropped++
			continue
		}
		out = append(out, s)
	}
	return out
}

// lastSentenceEnd returns the byte offset just past the final sentence
// terminator, or 0 when no complete sentence is buffered. A terminator at
// the very end of the buffer counts: a later fragment would start the
// next sentence anyway.
func lastSentenceEnd(text string) int {
	locs := sentenceEnd.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return 0
	}
	return locs[len(locs)-1][1]
}
