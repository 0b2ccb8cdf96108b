// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads client configuration with priority env > file > defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FOLIO_"

// Config contains all client configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	API           APIConfig           `json:"api" yaml:"api"`
	Cache         CacheConfig         `json:"cache" yaml:"cache"`
	Persist       PersistConfig       `json:"persist" yaml:"persist"`
	Realtime      RealtimeConfig      `json:"realtime" yaml:"realtime"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// APIConfig describes the remote API.
type APIConfig struct {
	BaseURL   string        `json:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`
	RateLimit float64       `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
	Burst     int           `json:"burst" yaml:"burst" validate:"gte=1"`
	Token     string        `json:"token" yaml:"token"`
}

// CacheConfig tunes the store and lists.
type CacheConfig struct {
	PageSize   int           `json:"page_size" yaml:"page_size" validate:"gte=1,lte=100"`
	StaleAfter time.Duration `json:"stale_after" yaml:"stale_after" validate:"gte=0"`
}

// PersistConfig describes the local snapshot database.
type PersistConfig struct {
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	Path       string        `json:"path" yaml:"path" validate:"required_if=Enabled true InMemory false"`
	InMemory   bool          `json:"in_memory" yaml:"in_memory"`
	SyncWrites bool          `json:"sync_writes" yaml:"sync_writes"`
	GCInterval time.Duration `json:"gc_interval" yaml:"gc_interval" validate:"gte=0"`
}

// RealtimeConfig describes the push stream.
type RealtimeConfig struct {
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	URL        string        `json:"url" yaml:"url" validate:"required_if=Enabled true"`
	MinBackoff time.Duration `json:"min_backoff" yaml:"min_backoff" validate:"gt=0"`
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff" validate:"gtefield=MinBackoff"`
}

// ObservabilityConfig contains logging, tracing and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	TraceExporter  string `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `json:"metric_exporter" yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `json:"otlp_endpoint" yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	ServiceName    string `json:"service_name" yaml:"service_name" validate:"required"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:   "http://localhost:8080",
			Timeout:   15 * time.Second,
			RateLimit: 20,
			Burst:     10,
		},
		Cache: CacheConfig{
			PageSize:   20,
			StaleAfter: 5 * time.Minute,
		},
		Persist: PersistConfig{
			Enabled:    false,
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		},
		Realtime: RealtimeConfig{
			Enabled:    false,
			MinBackoff: 500 * time.Millisecond,
			MaxBackoff: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			TraceExporter:  "none",
			MetricExporter: "none",
			ServiceName:    "folio",
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - path: YAML or JSON file. Empty or missing means defaults only.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file is unreadable or the result is invalid.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// API
	str("API_BASE_URL", &cfg.API.BaseURL)
	dur("API_TIMEOUT", &cfg.API.Timeout)
	if v, ok := lookup(EnvPrefix + "API_RATE_LIMIT"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.API.RateLimit = f
		}
	}
	integer("API_BURST", &cfg.API.Burst)
	str("API_TOKEN", &cfg.API.Token)

	// Cache
	integer("CACHE_PAGE_SIZE", &cfg.Cache.PageSize)
	dur("CACHE_STALE_AFTER", &cfg.Cache.StaleAfter)

	// Persist
	boolean("PERSIST_ENABLED", &cfg.Persist.Enabled)
	str("PERSIST_PATH", &cfg.Persist.Path)
	boolean("PERSIST_IN_MEMORY", &cfg.Persist.InMemory)
	boolean("PERSIST_SYNC_WRITES", &cfg.Persist.SyncWrites)
	dur("PERSIST_GC_INTERVAL", &cfg.Persist.GCInterval)

	// Realtime
	boolean("REALTIME_ENABLED", &cfg.Realtime.Enabled)
	str("REALTIME_URL", &cfg.Realtime.URL)
	dur("REALTIME_MIN_BACKOFF", &cfg.Realtime.MinBackoff)
	dur("REALTIME_MAX_BACKOFF", &cfg.Realtime.MaxBackoff)

	// Observability
	str("LOG_LEVEL", &cfg.Observability.LogLevel)
	str("TRACE_EXPORTER", &cfg.Observability.TraceExporter)
	str("METRIC_EXPORTER", &cfg.Observability.MetricExporter)
	str("OTLP_ENDPOINT", &cfg.Observability.OTLPEndpoint)
	str("SERVICE_NAME", &cfg.Observability.ServiceName)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Realtime.Enabled && !strings.HasPrefix(c.Realtime.URL, "ws://") && !strings.HasPrefix(c.Realtime.URL, "wss://") {
		return fmt.Errorf("realtime.url must use ws:// or wss://")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values mean info.
func (o ObservabilityConfig) SlogLevel() slog.Level {
	switch strings.ToLower(o.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
