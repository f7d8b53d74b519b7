// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/liner/services/liner/datatypes"
	"github.com/AleutianAI/liner/services/liner/resolve"
	"github.com/AleutianAI/liner/services/liner/sources"
)

// Phase names carried by TypePhase events, in emission order.
const (
	PhaseStarting     = "starting"
	PhaseSearching    = "searching"
	PhaseSynthesizing = "synthesizing"
)

const defaultBufferSize = 32

// Emitter drives the resolver and publishes its progress as an ordered
// event stream.
//
// # Description
//
//	Every stream begins with phase(starting) and basic, and ends with
//	exactly one terminal event (complete or error). When the subscriber
//	context is cancelled, emission stops and in-flight work is
//	discarded; no terminal is forced onto a closed ear.
//
// # Thread Safety
//
//	Emitter is safe for concurrent use. Each Run call owns its channel.
type Emitter struct {
	resolver   *resolve.Resolver
	bufferSize int
	logger     *slog.Logger
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets the event channel capacity. A full buffer applies
// backpressure to the pipeline rather than dropping events.
func WithBufferSize(n int) EmitterOption {
	return func(e *Emitter) {
		if n > 0 {
			e.bufferSize = n
		}
	}
}

// WithEmitterLogger overrides the default slog logger.
func WithEmitterLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmitter creates an Emitter over the given resolver.
func NewEmitter(resolver *resolve.Resolver, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		resolver:   resolver,
		bufferSize: defaultBufferSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run resolves req and streams progress events.
//
// # Inputs
//   - ctx: Subscriber lifetime. Cancellation stops emission; the channel
//     is closed without a terminal event.
//   - req: The resolve request. Validation failures surface as a
//     TypeError terminal, not a panic.
//
// # Outputs
//   - <-chan Event: Closed after the terminal event. Never nil.
func (e *Emitter) Run(ctx context.Context, req datatypes.ResolveRequest) <-chan Event {
	ch := make(chan Event, e.bufferSize)

	go func() {
		defer close(ch)

		requestID := uuid.NewString()
		start := time.Now()

		send := func(ev Event) bool {
			ev.Timestamp = time.Now().UTC()
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(Event{Type: TypePhase, Phase: PhaseStarting}) {
			return
		}

		if err := req.Validate(); err != nil {
			e.logger.Warn("stream request rejected",
				"request_id", requestID, "error", err)
			send(Event{Type: TypeError, Error: err.Error()})
			return
		}

		if !send(Event{Type: TypeBasic, Basic: &BasicPayload{Title: req.Title, Artist: req.Artist}}) {
			return
		}
		if !send(Event{Type: TypeMetadata, Metadata: &MetadataPayload{
			RequestID: requestID,
			Language:  req.Language,
		}}) {
			return
		}

		// The Source hook fires from concurrent provider goroutines, so
		// the liveness flag is atomic. A failed send only marks the
		// stream dead; Resolve still finishes.
		var alive atomic.Bool
		alive.Store(true)
		obs := &resolve.Observer{
			Phase: func(phase string) {
				if alive.Load() && !send(Event{Type: TypePhase, Phase: phase}) {
					alive.Store(false)
				}
			},
			Source: func(status sources.SourceStatus) {
				if alive.Load() {
					s := status
					if !send(Event{Type: TypeSource, Source: &s}) {
						alive.Store(false)
					}
				}
			},
			Chunk: func(fragment string) {
				if alive.Load() && !send(Event{Type: TypeChunk, Chunk: fragment}) {
					alive.Store(false)
				}
			},
		}

		content := e.resolver.Resolve(ctx, req, obs)
		if !alive.Load() || ctx.Err() != nil {
			e.logger.Debug("stream subscriber gone, discarding result",
				"request_id", requestID)
			return
		}

		if !send(Event{Type: TypeContent, Content: &content}) {
			return
		}
		send(Event{Type: TypeComplete, Complete: &CompletePayload{
			DurationMs:  time.Since(start).Milliseconds(),
			SourceCount: len(content.Sources),
		}})
	}()

	return ch
}
