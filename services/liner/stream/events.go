// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stream turns one resolution into an ordered, JSON-serializable
// event sequence for SSE and WebSocket transports.
package stream

import (
	"time"

	"github.com/AleutianAI/liner/services/liner/datatypes"
	"github.com/AleutianAI/liner/services/liner/sources"
)

// Type discriminates stream events.
type Type string

const (
	// TypePhase marks a stage transition: starting, searching,
	// synthesizing.
	TypePhase Type = "phase"

	// TypeBasic echoes the accepted query back to the subscriber.
	TypeBasic Type = "basic"

	// TypeMetadata carries request bookkeeping (request id, language).
	TypeMetadata Type = "metadata"

	// TypeSource reports one provider outcome during the live fetch.
	TypeSource Type = "source"

	// TypeChunk carries one incremental narrative fragment.
	TypeChunk Type = "chunk"

	// TypeContent carries the final ResolvedContent. At most one per
	// stream.
	TypeContent Type = "content"

	// TypeComplete is the success terminal.
	TypeComplete Type = "complete"

	// TypeError is the failure terminal.
	TypeError Type = "error"
)

// BasicPayload echoes the query as understood by the pipeline.
type BasicPayload struct {
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
}

// MetadataPayload carries request bookkeeping.
type MetadataPayload struct {
	RequestID string `json:"request_id"`
	Language  string `json:"language,omitempty"`
}

// CompletePayload summarizes a finished stream.
type CompletePayload struct {
	DurationMs  int64 `json:"duration_ms"`
	SourceCount int   `json:"source_count"`
}

// Event is one unit of the stream wire protocol. Exactly one payload
// field matching Type is set.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Phase    string                     `json:"phase,omitempty"`
	Basic    *BasicPayload              `json:"basic,omitempty"`
	Metadata *MetadataPayload           `json:"metadata,omitempty"`
	Source   *sources.SourceStatus      `json:"source,omitempty"`
	Chunk    string                     `json:"chunk,omitempty"`
	Content  *datatypes.ResolvedContent `json:"content,omitempty"`
	Complete *CompletePayload           `json:"complete,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}
