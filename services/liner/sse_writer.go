// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package liner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/liner/services/liner/stream"
)

// sseEnvelope wraps one stream event with wire metadata. Each envelope
// carries a hash chained to the previous one so clients can verify that
// no event was dropped or reordered in transit.
type sseEnvelope struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	Hash      string `json:"hash"`
	PrevHash  string `json:"prev_hash,omitempty"`

	stream.Event
}

// sseWriter serializes stream events in SSE wire format:
//
//	event: {type}
//	data: {json}
//
// # Thread Safety
//
//	Safe for concurrent use; the hash chain stays consistent under
//	concurrent writes.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// newSSEWriter wraps the ResponseWriter. The caller must have set SSE
// headers via setSSEHeaders first.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// WriteEvent envelopes, chains, and flushes one event.
func (w *sseWriter) WriteEvent(ev stream.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	env := sseEnvelope{
		ID:        uuid.NewString(),
		CreatedAt: ev.Timestamp.UnixMilli(),
		PrevHash:  w.prevHash,
		Event:     ev,
	}
	env.Hash = computeEnvelopeHash(env)
	w.prevHash = env.Hash

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteKeepAlive sends an SSE comment to reset load-balancer idle
// timers. Comments do not join the hash chain.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// computeEnvelopeHash hashes the envelope's identifying fields plus the
// serialized event payload. Hash itself must be empty when called.
func computeEnvelopeHash(env sseEnvelope) string {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		payload = nil
	}
	input := fmt.Sprintf("%s|%d|%s|%s", env.ID, env.CreatedAt, env.PrevHash, payload)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// setSSEHeaders configures the response for event streaming. Must run
// before the first write.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
