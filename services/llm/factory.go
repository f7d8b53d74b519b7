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
	"fmt"
	"log/slog"
)

// Supported backend names.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// NewClient creates the LLMClient for the named backend.
//
// # Description
//
//	Central creation point for generative backends. Each backend reads
//	its own environment configuration (OLLAMA_BASE_URL/OLLAMA_MODEL or
//	OPENAI_API_KEY/OPENAI_MODEL).
//
// # Inputs
//   - backend: One of BackendOllama, BackendOpenAI.
//
// # Outputs
//   - LLMClient: The configured client.
//   - error: Non-nil if the backend is unsupported or misconfigured.
func NewClient(backend string) (LLMClient, error) {
	switch backend {
	case BackendOllama:
		return NewOllamaClient()
	case BackendOpenAI:
		return NewOpenAIClient()
	default:
		slog.Error("Unsupported LLM backend requested", "backend", backend)
		return nil, fmt.Errorf("llm: unsupported backend %q", backend)
	}
}
