// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/liner/services/liner/datatypes"
)

func TestLoad_EmbeddedDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Synth.Backend != "ollama" {
		t.Errorf("backend = %q, want ollama", cfg.Synth.Backend)
	}
	if !cfg.Catalog.MirrorAsSource {
		t.Error("catalog mirror should be on by default")
	}

	limits := cfg.BudgetLimits()
	synth, ok := limits["synth"]
	if !ok {
		t.Fatal("default budget must include the synth resource")
	}
	if synth.Window != time.Minute || synth.MaxRequests != 30 {
		t.Errorf("synth limits = %+v", synth)
	}

	if cfg.PerSourceTimeout() != 8*time.Second {
		t.Errorf("per-source timeout = %v, want 8s", cfg.PerSourceTimeout())
	}
}

func TestLoadFile_OverridesMergeWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liner.yaml")
	override := `
server:
  addr: ":9090"
cache:
  ttl_seconds:
    medium: 60
sources:
  providers:
    - name: "songdb"
      tier: "high"
      priority: 9
      base_url: "http://songdb.internal/v1/search"
      timeout_seconds: 3
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want override :9090", cfg.Server.Addr)
	}
	// Untouched fields keep their embedded defaults.
	if cfg.Synth.Backend != "ollama" {
		t.Errorf("backend = %q, want default ollama", cfg.Synth.Backend)
	}

	table := cfg.TTLTable()
	if table[datatypes.ConfidenceMedium] != time.Minute {
		t.Errorf("medium TTL = %v, want 1m", table[datatypes.ConfidenceMedium])
	}
	if table[datatypes.ConfidenceVerified] != 30*24*time.Hour {
		t.Errorf("verified TTL = %v, want built-in 30d", table[datatypes.ConfidenceVerified])
	}

	rest := cfg.RESTConfigs(nil)
	if len(rest) != 1 || rest[0].Name != "songdb" {
		t.Fatalf("rest configs = %+v", rest)
	}
	if rest[0].Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", rest[0].Timeout)
	}
	if rest[0].Tier != datatypes.ReliabilityHigh {
		t.Errorf("tier = %q, want high", rest[0].Tier)
	}
}

func TestLoadFile_RejectsBadBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liner.yaml")
	if err := os.WriteFile(path, []byte("synth:\n  backend: \"parrot\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("unknown backend must be rejected")
	}
}

func TestLoadFile_RejectsDuplicateProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liner.yaml")
	bad := `
sources:
  providers:
    - name: "songdb"
      base_url: "http://a"
    - name: "songdb"
      base_url: "http://b"
`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("duplicate provider names must be rejected")
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("LINER_ADDR", ":7070")
	t.Setenv("LINER_BACKEND", "openai")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %q, want env override :7070", cfg.Server.Addr)
	}
	if cfg.Synth.Backend != "openai" {
		t.Errorf("backend = %q, want env override openai", cfg.Synth.Backend)
	}
}

func TestRESTConfigs_ResolvesAPIKeyFromEnv(t *testing.T) {
	t.Setenv("SONGDB_API_KEY", "secret-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Sources.Providers = []RESTProviderConfig{{
		Name:      "songdb",
		BaseURL:   "http://songdb.internal/v1/search",
		APIKeyEnv: "SONGDB_API_KEY",
	}}

	rest := cfg.RESTConfigs(nil)
	if rest[0].APIKey != "secret-token" {
		t.Errorf("api key = %q, want value from env", rest[0].APIKey)
	}
}
