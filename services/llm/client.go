// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

// GenerationParams tunes a single generation call. Nil pointer fields fall
// back to backend defaults.
type GenerationParams struct {
	Temperature   *float32 `json:"temperature"`
	TopK          *int     `json:"top_k"`
	TopP          *float32 `json:"top_p"`
	MaxTokens     *int     `json:"max_tokens"`
	Stop          []string `json:"stop"`
	ModelOverride string   `json:"model_override,omitempty"`
}

// =============================================================================
// Streaming Events
// =============================================================================

// StreamEventType discriminates streaming callback events.
type StreamEventType string

const (
	// StreamEventToken carries one incremental content fragment.
	StreamEventToken StreamEventType = "token"

	// StreamEventError carries a mid-stream failure. The stream ends
	// after an error event.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one unit of streaming output from a backend.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StreamCallback receives streaming events in generation order. Returning
// a non-nil error aborts the stream; the backend stops reading and
// returns that error from ChatStream.
type StreamCallback func(StreamEvent) error

// =============================================================================
// Client Contract
// =============================================================================

// LLMClient is the standard interface for any generative backend.
//
// # Thread Safety
//
//	Implementations must be safe for concurrent use.
type LLMClient interface {
	// Generate produces a completion for a single prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat produces a completion for a multi-turn conversation.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)

	// ChatStream produces a completion incrementally, invoking callback
	// for each fragment. Returns after the terminal event is delivered
	// or the callback aborts.
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, callback StreamCallback) error
}
