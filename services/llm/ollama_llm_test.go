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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

func testMessages() []datatypes.Message {
	return []datatypes.Message{
		{Role: "system", Content: "You are a music archivist."},
		{Role: "user", Content: "Tell me about this song."},
	}
}

func TestOllamaClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s, want /api/chat", r.URL.Path)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"A ballad from 1967."},"done":true}`))
	}))
	defer srv.Close()

	client := NewOllamaClientWithConfig(srv.URL, "test-model")
	got, err := client.Chat(context.Background(), testMessages(), GenerationParams{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "A ballad from 1967." {
		t.Errorf("Chat = %q", got)
	}
}

func TestOllamaClient_ChatModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'test-model' not found"}`))
	}))
	defer srv.Close()

	client := NewOllamaClientWithConfig(srv.URL, "test-model")
	_, err := client.Chat(context.Background(), testMessages(), GenerationParams{})
	if err == nil || !strings.Contains(err.Error(), "ollama pull") {
		t.Errorf("err = %v, want a pull hint", err)
	}
}

func TestOllamaClient_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"A "},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":"ballad."},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}` + "\n"))
	}))
	defer srv.Close()

	client := NewOllamaClientWithConfig(srv.URL, "test-model")
	var sb strings.Builder
	err := client.ChatStream(context.Background(), testMessages(), GenerationParams{},
		func(ev StreamEvent) error {
			if ev.Type != StreamEventToken {
				t.Errorf("event type = %s, want token", ev.Type)
			}
			sb.WriteString(ev.Content)
			return nil
		})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if sb.String() != "A ballad." {
		t.Errorf("assembled = %q", sb.String())
	}
}

func TestOllamaClient_ChatStreamCallbackAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"one"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":"two"},"done":false}` + "\n"))
		w.Write([]byte(`{"done":true}` + "\n"))
	}))
	defer srv.Close()

	abort := errors.New("subscriber gone")
	client := NewOllamaClientWithConfig(srv.URL, "test-model")
	calls := 0
	err := client.ChatStream(context.Background(), testMessages(), GenerationParams{},
		func(ev StreamEvent) error {
			calls++
			return abort
		})
	if !errors.Is(err, abort) {
		t.Errorf("err = %v, want callback abort", err)
	}
	if calls != 1 {
		t.Errorf("callback called %d times, want 1", calls)
	}
}

func TestOllamaClient_ChatStreamMidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"partial"},"done":false}` + "\n"))
		w.Write([]byte(`{"error":"backend exploded"}` + "\n"))
	}))
	defer srv.Close()

	client := NewOllamaClientWithConfig(srv.URL, "test-model")
	var sawError bool
	err := client.ChatStream(context.Background(), testMessages(), GenerationParams{},
		func(ev StreamEvent) error {
			if ev.Type == StreamEventError {
				sawError = true
			}
			return nil
		})
	if err == nil {
		t.Error("mid-stream error should surface from ChatStream")
	}
	if !sawError {
		t.Error("callback should see an error event before ChatStream returns")
	}
}

func TestNewClient_UnsupportedBackend(t *testing.T) {
	if _, err := NewClient("mystery"); err == nil {
		t.Error("unsupported backend should error")
	}
}
