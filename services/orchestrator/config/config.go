// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads orchestrator settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the orchestrator.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// SessionTimeout is how long a session may stay idle.
	SessionTimeout time.Duration

	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration

	// TurnTimeout is the wall-clock budget for one agent turn.
	TurnTimeout time.Duration

	// OpenAIModel selects the chat model; empty means the adapter default.
	OpenAIModel string

	// DatabasePath is the SQLite file the schema provider and query runner
	// open.
	DatabasePath string

	// SchemaCachePath is where the schema snapshot cache lives.
	SchemaCachePath string

	// SchemaCacheTTL bounds how stale a cached schema snapshot may be.
	SchemaCacheTTL time.Duration

	// ExportDir receives disk copies of transcript exports. Empty disables
	// the disk copy.
	ExportDir string

	// TracingEnabled turns the OTLP trace exporter on.
	TracingEnabled bool

	// OTLPEndpoint is the collector address for traces.
	OTLPEndpoint string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded settings from .env file")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		SessionTimeout:  getDuration("SESSION_TIMEOUT", time.Hour),
		SweepInterval:   getDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		TurnTimeout:     getDuration("TURN_TIMEOUT", 120*time.Second),
		OpenAIModel:     getEnv("OPENAI_MODEL", ""),
		DatabasePath:    getEnv("DATABASE_PATH", "data/warehouse.db"),
		SchemaCachePath: getEnv("SCHEMA_CACHE_PATH", "data/schema-cache.json"),
		SchemaCacheTTL:  getDuration("SCHEMA_CACHE_TTL", 24*time.Hour),
		ExportDir:       getEnv("EXPORT_DIR", "data/exports"),
		TracingEnabled:  getBool("TRACING_ENABLED", false),
		OTLPEndpoint:    getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in environment, using fallback",
			"key", key, "value", raw, "fallback", fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid boolean in environment, using fallback",
			"key", key, "value", raw, "fallback", fallback)
		return fallback
	}
	return b
}
