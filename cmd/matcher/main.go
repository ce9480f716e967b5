// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command matcher starts the TrialScout matcher HTTP server.
//
// This is the main entry point for the containerized matcher service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - MATCHER_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND_TYPE: scoring LLM provider - openai, ollama, claude (default: openai)
//   - MATCHER_DATA_DIR: BadgerDB directory; empty runs in-memory
//   - REGISTRY_BASE_URL: trial registry API base URL (default: ClinicalTrials.gov v2)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector; tracing is off when unset
//   - MATCHER_RATE_LIMIT: requests per client per window (default: 10)
//   - MATCHER_RATE_WINDOW_SECONDS: admission window length (default: 60)
//   - MATCHER_CACHE_TTL_HOURS: eligibility cache TTL (default: 168)
//   - MATCHER_MAX_SCORED_TRIALS: scoring batch cap (default: 25)
//   - MATCHER_VAGUE_TERMS: comma-separated gate blocklist override
//   - MATCHER_CONDITION_ABBREVIATIONS: comma-separated gate allowlist override
//
// # Usage
//
//	# Build
//	go build -o matcher ./cmd/matcher
//
//	# Run
//	./matcher
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/TrialScout/services/matcher"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg := matcher.Config{
		Port:                   getEnvInt("MATCHER_PORT", 12310),
		LLMBackend:             getEnvString("LLM_BACKEND_TYPE", "openai"),
		DataDir:                os.Getenv("MATCHER_DATA_DIR"),
		RegistryBaseURL:        os.Getenv("REGISTRY_BASE_URL"),
		OTelEndpoint:           otelEndpoint,
		EnableTracing:          otelEndpoint != "",
		GinMode:                os.Getenv("GIN_MODE"),
		RateLimit:              getEnvInt("MATCHER_RATE_LIMIT", 10),
		RateWindow:             time.Duration(getEnvInt("MATCHER_RATE_WINDOW_SECONDS", 60)) * time.Second,
		CacheTTL:               time.Duration(getEnvInt("MATCHER_CACHE_TTL_HOURS", 168)) * time.Hour,
		MaxScoredTrials:        getEnvInt("MATCHER_MAX_SCORED_TRIALS", 25),
		VagueTerms:             getEnvList("MATCHER_VAGUE_TERMS"),
		ConditionAbbreviations: getEnvList("MATCHER_CONDITION_ABBREVIATIONS"),
	}

	slog.Info("Starting matcher",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"data_dir", cfg.DataDir,
	)

	svc, err := matcher.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create matcher: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Matcher error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable, dropping
// empty entries.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
