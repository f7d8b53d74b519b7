// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Request and response types for the resolve endpoints. Validation uses
// go-playground/validator; size limits guard against unbounded input.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxTitleBytes bounds the raw title field of a resolve request.
	MaxTitleBytes = 512

	// MaxArtistBytes bounds the raw attributed-creator field.
	MaxArtistBytes = 256
)

// resolveValidate is the shared validator instance for request types.
var resolveValidate = validator.New()

// ResolveRequest is the body of POST /v1/liner/resolve and the query
// parameters of the stream endpoints.
type ResolveRequest struct {
	// Title is the work title as the caller typed it. Required.
	Title string `json:"title" form:"title" validate:"required,max=512"`

	// Artist is the optional attributed creator.
	Artist string `json:"artist,omitempty" form:"artist" validate:"max=256"`

	// Language hints which provider language to prefer. Optional.
	Language string `json:"language,omitempty" form:"language" validate:"omitempty,bcp47_language_tag"`

	// MinConfidence is the lowest cache confidence the caller will accept
	// as a cached answer. Empty means any.
	MinConfidence Confidence `json:"min_confidence,omitempty" form:"min_confidence" validate:"omitempty,oneof=verified high medium low none"`

	// NoLive disables the live tier; only verified/cache/fallback answers
	// are produced. Used by presentation layers that must never block on
	// external providers.
	NoLive bool `json:"no_live,omitempty" form:"no_live"`
}

// Validate checks field constraints and returns a caller-safe error.
func (r *ResolveRequest) Validate() error {
	if err := resolveValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid resolve request: %w", err)
	}
	if len(r.Title) > MaxTitleBytes {
		return fmt.Errorf("title exceeds %d bytes", MaxTitleBytes)
	}
	if len(r.Artist) > MaxArtistBytes {
		return fmt.Errorf("artist exceeds %d bytes", MaxArtistBytes)
	}
	if NewQuery(r.Title, r.Artist).IsEmpty() {
		return fmt.Errorf("title is empty after normalization")
	}
	return nil
}

// ResolveResponse is the one-shot JSON answer.
type ResolveResponse struct {
	RequestID string          `json:"request_id"`
	Content   ResolvedContent `json:"content"`
}
