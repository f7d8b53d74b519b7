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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Stream {
			t.Error("Chat should not set stream")
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"A quiet song."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-4o-mini", srv.URL)
	got, err := client.Chat(context.Background(), testMessages(), GenerationParams{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "A quiet song." {
		t.Errorf("Chat = %q", got)
	}
}

func TestOpenAIClient_ChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-4o-mini", srv.URL)
	if _, err := client.Chat(context.Background(), testMessages(), GenerationParams{}); err == nil {
		t.Error("API error envelope should surface as error")
	}
}

func TestOpenAIClient_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if !req.Stream {
			t.Error("ChatStream should set stream")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"A \"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"quiet \"}}]}\n\n"))
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"song.\"}}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := NewOpenAIClientWithConfig("test-key", "gpt-4o-mini", srv.URL)
	var sb strings.Builder
	err := client.ChatStream(context.Background(), testMessages(), GenerationParams{},
		func(ev StreamEvent) error {
			sb.WriteString(ev.Content)
			return nil
		})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if sb.String() != "A quiet song." {
		t.Errorf("assembled = %q", sb.String())
	}
}

func TestSafeLogString(t *testing.T) {
	in := "request with sk-abcdefghijklmnopqrstuv123456 failed"
	out := SafeLogString(in)
	if strings.Contains(out, "sk-abcdefghijklmnop") {
		t.Errorf("API key survived redaction: %q", out)
	}
	if !strings.Contains(out, "[REDACTED:openai_key]") {
		t.Errorf("missing redaction label: %q", out)
	}
	if got := SafeLogString("no secrets here"); got != "no secrets here" {
		t.Errorf("clean string altered: %q", got)
	}
}
