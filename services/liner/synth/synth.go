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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/liner/services/liner/datatypes"
	"github.com/AleutianAI/liner/services/llm"
)

// ErrSynthesisFailed reports that neither synthesis nor the raw-source
// fallback produced usable content.
var ErrSynthesisFailed = errors.New("synthesis failed")

// systemInstruction pins the backend to the aggregated facts. Temperature
// zero plus this instruction is the anti-fabrication contract.
const systemInstruction = "You are a music liner-notes writer. Write a short " +
	"background narrative about the song using ONLY the facts provided below. " +
	"Do not invent names, dates, places, or events that are not in the facts. " +
	"Do not reproduce song lyrics verbatim or quote lyrical passages. " +
	"If the facts are thin, write less rather than padding."

const (
	defaultMaxTokens = 768

	// freeTextChunkSize bounds how much of one provider's free text goes
	// into the fact sheet. Oversized blobs are split and only the leading
	// chunk is used.
	freeTextChunkSize    = 2000
	freeTextChunkOverlap = 0
)

// Result is the outcome of one synthesis attempt.
type Result struct {
	// Narrative is the filtered output text.
	Narrative string

	// Confidence is the aggregate confidence, possibly forced down when
	// filtering left too little text.
	Confidence datatypes.Confidence

	// IsRaw marks the raw-source fallback path: Narrative is the best
	// accepted source's text, unsynthesized.
	IsRaw bool

	// Warning is a human-readable note on degraded output, empty when
	// the narrative is clean.
	Warning string
}

// Synthesizer turns an aggregated source set into one narrative via a
// generative backend.
//
// # Thread Safety
//
//	Synthesizer is safe for concurrent use.
type Synthesizer struct {
	client    llm.LLMClient
	filter    *ContentFilter
	splitter  textsplitter.TextSplitter
	maxTokens int
	logger    *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithMaxTokens overrides the output length cap.
func WithMaxTokens(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithContentFilter overrides the post-generation filter.
func WithContentFilter(f *ContentFilter) Option {
	return func(s *Synthesizer) {
		if f != nil {
			s.filter = f
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Synthesizer over the given backend client.
func New(client llm.LLMClient, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		client: client,
		filter: NewContentFilter(),
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(freeTextChunkSize),
			textsplitter.WithChunkOverlap(freeTextChunkOverlap),
		),
		maxTokens: defaultMaxTokens,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize produces a filtered narrative from the aggregated sources.
//
// # Description
//
//	Calls the backend at temperature zero with the fact sheet, then runs
//	the content filter. Empty or too-short filtered output becomes the
//	fixed insufficient-information message at confidence none. A backend
//	failure falls back to the best raw accepted source (IsRaw, confidence
//	capped at medium); with no raw source either, ErrSynthesisFailed.
func (s *Synthesizer) Synthesize(ctx context.Context, agg datatypes.AggregatedResult) (Result, error) {
	raw, err := s.client.Chat(ctx, s.buildMessages(agg), s.params())
	if err != nil {
		s.logger.Warn("Synthesis backend failed, trying raw fallback",
			slog.String("error", err.Error()))
		return s.rawFallback(agg, err)
	}
	return s.finish(raw, agg.Confidence), nil
}

// SynthesizeStream produces the narrative incrementally.
//
// # Description
//
//	Streams backend fragments through a sentence-buffering filter so the
//	callback only ever sees clean, complete sentences. The returned
//	Result carries the full filtered narrative, identical to joining the
//	callback fragments.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, agg datatypes.AggregatedResult,
	callback llm.StreamCallback) (Result, error) {

	sf := NewStreamFilter(s.filter)
	var assembled []string
	emit := func(sentences []string) error {
		for _, sentence := range sentences {
			assembled = append(assembled, sentence)
			if callback != nil {
				ev := llm.StreamEvent{Type: llm.StreamEventToken, Content: sentence + " "}
				if err := callback(ev); err != nil {
					return err
				}
			}
		}
		return nil
	}

	err := s.client.ChatStream(ctx, s.buildMessages(agg), s.params(), func(ev llm.StreamEvent) error {
		switch ev.Type {
		case llm.StreamEventToken:
			return emit(sf.Write(ev.Content))
		case llm.StreamEventError:
			return fmt.Errorf("backend stream error: %s", ev.Error)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Streaming synthesis failed, trying raw fallback",
			slog.String("error", err.Error()))
		return s.rawFallback(agg, err)
	}
	if emitErr := emit(sf.Flush()); emitErr != nil {
		return Result{}, emitErr
	}

	return s.finish(strings.Join(assembled, " "), agg.Confidence), nil
}

func (s *Synthesizer) params() llm.GenerationParams {
	temp := float32(0)
	maxTokens := s.maxTokens
	return llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}
}

// finish applies the content filter and the minimum-length rule.
func (s *Synthesizer) finish(raw string, confidence datatypes.Confidence) Result {
	narrative, dropped := s.filter.Filter(raw)
	if dropped > 0 {
		s.logger.Debug("Content filter dropped sentences", slog.Int("dropped", dropped))
	}
	if TooShort(narrative) {
		return Result{
			Narrative:  InsufficientInfoMessage,
			Confidence: datatypes.ConfidenceNone,
			Warning:    "synthesized narrative did not survive content filtering",
		}
	}
	return Result{Narrative: narrative, Confidence: confidence}
}

// rawFallback returns the best accepted source's text unsynthesized.
func (s *Synthesizer) rawFallback(agg datatypes.AggregatedResult, cause error) (Result, error) {
	best := agg.Best()
	if best == nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, cause)
	}
	narrative := best.Fields.FreeText
	if narrative == "" {
		narrative = structuredSummary(best.Fields)
	}
	if strings.TrimSpace(narrative) == "" {
		return Result{}, fmt.Errorf("%w: best source carried no text: %v", ErrSynthesisFailed, cause)
	}

	// Raw text skips synthesis but not the filter.
	narrative, _ = s.filter.Filter(narrative)
	if TooShort(narrative) {
		return Result{}, fmt.Errorf("%w: raw source text did not survive filtering: %v", ErrSynthesisFailed, cause)
	}

	confidence := agg.Confidence
	if confidence.Rank() > datatypes.ConfidenceMedium.Rank() {
		confidence = datatypes.ConfidenceMedium
	}
	return Result{
		Narrative:  narrative,
		Confidence: confidence,
		IsRaw:      true,
		Warning:    "synthesis unavailable, returning unprocessed source text",
	}, nil
}

// RawOnly returns the raw-source result without attempting the backend.
// The budget-denied path uses it to skip synthesis entirely.
func (s *Synthesizer) RawOnly(agg datatypes.AggregatedResult) (Result, error) {
	return s.rawFallback(agg, errors.New("synthesis skipped"))
}

// buildMessages assembles the system instruction and fact sheet.
func (s *Synthesizer) buildMessages(agg datatypes.AggregatedResult) []datatypes.Message {
	return []datatypes.Message{
		{Role: "system", Content: systemInstruction},
		{Role: "user", Content: s.factSheet(agg)},
	}
}

// factSheet renders the accepted records as a per-source fact list.
// Oversized free text is split and truncated to its leading chunk.
func (s *Synthesizer) factSheet(agg datatypes.AggregatedResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Song: %s\n", agg.Query.NormalizedTitle)
	if agg.Query.NormalizedArtist != "" {
		fmt.Fprintf(&sb, "Artist: %s\n", agg.Query.NormalizedArtist)
	}
	sb.WriteString("\nFacts from sources:\n")

	for i, rec := range agg.Records {
		fmt.Fprintf(&sb, "\n[source %d: %s, reliability %s]\n", i+1, rec.Provider, rec.Tier)
		if rec.Fields.Title != "" {
			fmt.Fprintf(&sb, "- title: %s\n", rec.Fields.Title)
		}
		if rec.Fields.Artist != "" {
			fmt.Fprintf(&sb, "- artist: %s\n", rec.Fields.Artist)
		}
		if rec.Fields.Album != "" {
			fmt.Fprintf(&sb, "- album: %s\n", rec.Fields.Album)
		}
		if rec.Fields.Year != 0 {
			fmt.Fprintf(&sb, "- year: %d\n", rec.Fields.Year)
		}
		if text := rec.Fields.FreeText; text != "" {
			if len(text) > freeTextChunkSize {
				chunks, err := s.splitter.SplitText(text)
				if err == nil && len(chunks) > 0 {
					text = chunks[0]
				} else {
					text = text[:freeTextChunkSize]
				}
			}
			fmt.Fprintf(&sb, "- notes: %s\n", text)
		}
	}
	return sb.String()
}

// structuredSummary renders structured-only fields as a minimal sentence
// for the raw fallback.
func structuredSummary(f datatypes.SourceFields) string {
	var parts []string
	if f.Title != "" {
		parts = append(parts, fmt.Sprintf("%q", f.Title))
	}
	if f.Artist != "" {
		parts = append(parts, "performed by "+f.Artist)
	}
	if f.Album != "" {
		parts = append(parts, "from the album "+f.Album)
	}
	if f.Year != 0 {
		parts = append(parts, fmt.Sprintf("released in %d", f.Year))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ") + "."
}
