// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the liner service configuration from YAML with
// compiled-in defaults and environment overrides.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/liner/services/liner/budget"
	"github.com/AleutianAI/liner/services/liner/cache"
	"github.com/AleutianAI/liner/services/liner/datatypes"
	"github.com/AleutianAI/liner/services/liner/sources"
	"github.com/AleutianAI/liner/services/llm"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed defaults.yaml
var defaultConfigYAML []byte

// MaxYAMLFileSize bounds config files to keep parsing cheap and safe.
const MaxYAMLFileSize = 1 * 1024 * 1024

// =============================================================================
// Configuration Types
// =============================================================================

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// Mode is the gin mode: "release" or "debug".
	Mode string `yaml:"mode"`

	// RequestsPerSecond caps inbound request rate. Zero disables
	// throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the throttle bucket size.
	Burst int `yaml:"burst"`
}

// CatalogConfig configures the verified lookup tier.
type CatalogConfig struct {
	// Path points at an external catalog YAML. Empty uses the embedded
	// dataset.
	Path string `yaml:"path,omitempty"`

	// Watch enables fsnotify hot reload of Path.
	Watch bool `yaml:"watch"`

	// MinScore is the similarity floor for fuzzy catalog matches.
	MinScore float64 `yaml:"min_score,omitempty"`

	// MirrorAsSource also registers the catalog as a verified-tier
	// source provider for the live fan-out.
	MirrorAsSource bool `yaml:"mirror_as_source"`

	// MirrorPriority orders the catalog mirror among live providers.
	MirrorPriority int `yaml:"mirror_priority,omitempty"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	// MaxEntries bounds the in-memory cache size.
	MaxEntries int `yaml:"max_entries,omitempty"`

	// TTLSeconds maps confidence level to entry lifetime in seconds.
	// Missing levels keep the built-in policy.
	TTLSeconds map[datatypes.Confidence]int `yaml:"ttl_seconds,omitempty"`

	// BadgerPath enables write-behind persistence at the given
	// directory. Empty disables persistence.
	BadgerPath string `yaml:"badger_path,omitempty"`
}

// BudgetLimits is the YAML shape of one resource budget. Durations are
// plain seconds so operators never write nanosecond integers.
type BudgetLimits struct {
	WindowSeconds  int     `yaml:"window_seconds"`
	MaxRequests    int     `yaml:"max_requests"`
	CostPerRequest float64 `yaml:"cost_per_request"`
	DailyCostCap   float64 `yaml:"daily_cost_cap"`
}

// SourcesConfig configures the live fan-out tier.
type SourcesConfig struct {
	// PerSourceTimeoutSeconds is the deadline for each provider fetch.
	PerSourceTimeoutSeconds int `yaml:"per_source_timeout_seconds"`

	// Confidence overrides the aggregation rules. Zero values keep the
	// defaults.
	Confidence *sources.ConfidenceTable `yaml:"confidence,omitempty"`

	// Providers lists upstream HTTP providers to register.
	Providers []RESTProviderConfig `yaml:"providers,omitempty"`
}

// RESTProviderConfig is the YAML shape of one HTTP provider.
type RESTProviderConfig struct {
	Name           string                    `yaml:"name"`
	Tier           datatypes.ReliabilityTier `yaml:"tier"`
	Priority       int                       `yaml:"priority"`
	Languages      []string                  `yaml:"languages,omitempty"`
	BaseURL        string                    `yaml:"base_url"`
	APIKeyEnv      string                    `yaml:"api_key_env,omitempty"`
	TimeoutSeconds int                       `yaml:"timeout_seconds,omitempty"`
}

// SynthConfig configures the generative backend usage.
type SynthConfig struct {
	// Backend selects the LLM client: "ollama" or "openai".
	Backend string `yaml:"backend"`

	// MaxTokens caps narrative length per synthesis call.
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// Config is the full service configuration.
//
// # Thread Safety
//
//	Immutable after Load; safe for concurrent reads.
type Config struct {
	Server  ServerConfig            `yaml:"server"`
	Catalog CatalogConfig           `yaml:"catalog"`
	Cache   CacheConfig             `yaml:"cache"`
	Budget  map[string]BudgetLimits `yaml:"budget"`
	Sources SourcesConfig           `yaml:"sources"`
	Synth   SynthConfig             `yaml:"synth"`
}

// =============================================================================
// Loading
// =============================================================================

// Load returns the embedded default configuration with environment
// overrides applied.
func Load() (*Config, error) {
	return parse(defaultConfigYAML)
}

// LoadFile loads configuration from an external YAML file. Fields the
// file omits keep their embedded defaults; environment overrides apply
// last.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("config %s exceeds maximum size (%d > %d)",
			path, len(data), MaxYAMLFileSize)
	}

	cfg, err := parse(defaultConfigYAML)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyEnv(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	applyEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv applies LINER_* environment overrides. Backend host and model
// selection stay with the llm package's own OLLAMA_*/OPENAI_* variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LINER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LINER_MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := os.Getenv("LINER_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("LINER_BADGER_PATH"); v != "" {
		cfg.Cache.BadgerPath = v
	}
	if v := os.Getenv("LINER_BACKEND"); v != "" {
		cfg.Synth.Backend = v
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	switch cfg.Server.Mode {
	case "", "release", "debug":
	default:
		return fmt.Errorf("server.mode must be release or debug, got %q", cfg.Server.Mode)
	}
	switch cfg.Synth.Backend {
	case llm.BackendOllama, llm.BackendOpenAI:
	default:
		return fmt.Errorf("synth.backend must be %s or %s, got %q",
			llm.BackendOllama, llm.BackendOpenAI, cfg.Synth.Backend)
	}
	for name, limits := range cfg.Budget {
		if limits.WindowSeconds < 0 || limits.MaxRequests < 0 ||
			limits.CostPerRequest < 0 || limits.DailyCostCap < 0 {
			return fmt.Errorf("budget.%s: limits must not be negative", name)
		}
	}
	seen := make(map[string]bool, len(cfg.Sources.Providers))
	for i, p := range cfg.Sources.Providers {
		if p.Name == "" {
			return fmt.Errorf("sources.providers[%d]: name must not be empty", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("sources.providers[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if p.BaseURL == "" {
			return fmt.Errorf("sources.providers[%d] (%s): base_url must not be empty", i, p.Name)
		}
	}
	return nil
}

// =============================================================================
// Conversions
// =============================================================================

// BudgetLimits converts the YAML budget table into the manager's shape.
func (c *Config) BudgetLimits() map[string]budget.Limits {
	out := make(map[string]budget.Limits, len(c.Budget))
	for name, l := range c.Budget {
		out[name] = budget.Limits{
			Window:         time.Duration(l.WindowSeconds) * time.Second,
			MaxRequests:    l.MaxRequests,
			CostPerRequest: l.CostPerRequest,
			DailyCostCap:   l.DailyCostCap,
		}
	}
	return out
}

// TTLTable converts the YAML TTL overrides into the cache's shape,
// starting from the built-in policy.
func (c *Config) TTLTable() cache.TTLTable {
	table := cache.DefaultTTLTable()
	for level, seconds := range c.Cache.TTLSeconds {
		table[level] = time.Duration(seconds) * time.Second
	}
	return table
}

// PerSourceTimeout returns the live fan-out deadline, or zero when
// unconfigured.
func (c *Config) PerSourceTimeout() time.Duration {
	return time.Duration(c.Sources.PerSourceTimeoutSeconds) * time.Second
}

// RESTConfigs converts provider entries into sources.RESTConfig values,
// resolving API keys from the named environment variables.
func (c *Config) RESTConfigs(logger *slog.Logger) []sources.RESTConfig {
	out := make([]sources.RESTConfig, 0, len(c.Sources.Providers))
	for _, p := range c.Sources.Providers {
		apiKey := ""
		if p.APIKeyEnv != "" {
			apiKey = os.Getenv(p.APIKeyEnv)
			if apiKey == "" && logger != nil {
				logger.Warn("Provider API key env var is empty",
					slog.String("provider", p.Name),
					slog.String("env", p.APIKeyEnv))
			}
		}
		out = append(out, sources.RESTConfig{
			Name:      p.Name,
			Tier:      p.Tier,
			Priority:  p.Priority,
			Languages: p.Languages,
			BaseURL:   p.BaseURL,
			APIKey:    apiKey,
			Timeout:   time.Duration(p.TimeoutSeconds) * time.Second,
		})
	}
	return out
}
