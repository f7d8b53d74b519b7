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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRequest_Validate_Accepts(t *testing.T) {
	tests := []struct {
		name string
		req  ResolveRequest
	}{
		{"title only", ResolveRequest{Title: "Diễm Xưa"}},
		{"title and artist", ResolveRequest{Title: "Diễm Xưa", Artist: "Trịnh Công Sơn"}},
		{"language hint", ResolveRequest{Title: "Diễm Xưa", Language: "vi"}},
		{"min confidence", ResolveRequest{Title: "Diễm Xưa", MinConfidence: ConfidenceHigh}},
		{"no live", ResolveRequest{Title: "Diễm Xưa", NoLive: true}},
		{"title at limit", ResolveRequest{Title: strings.Repeat("a", MaxTitleBytes)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.req.Validate())
		})
	}
}

func TestResolveRequest_Validate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		req  ResolveRequest
	}{
		{"empty title", ResolveRequest{}},
		{"whitespace title", ResolveRequest{Title: "   "}},
		{"punctuation-only title", ResolveRequest{Title: "!!! ???"}},
		{"oversized title", ResolveRequest{Title: strings.Repeat("a", MaxTitleBytes+1)}},
		{"oversized artist", ResolveRequest{Title: "ok", Artist: strings.Repeat("b", MaxArtistBytes+1)}},
		{"bad language tag", ResolveRequest{Title: "ok", Language: "not a tag"}},
		{"unknown confidence", ResolveRequest{Title: "ok", MinConfidence: "certain"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			require.Error(t, err)
			assert.NotContains(t, err.Error(), "panic")
		})
	}
}

// Multi-byte titles are bounded in bytes, not runes. A title of 200
// three-byte runes is 600 bytes and must be rejected even though it is
// well under 512 characters.
func TestResolveRequest_Validate_ByteBudget(t *testing.T) {
	req := ResolveRequest{Title: strings.Repeat("ễ", 200)}
	require.Greater(t, len(req.Title), MaxTitleBytes)
	assert.Error(t, req.Validate())
}
