// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matcher

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/TrialScout/services/matcher/registry"
	"github.com/AleutianAI/TrialScout/services/matcher/scoring"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Config Tests
// =============================================================================

// TestApplyConfigDefaults_AllDefaults verifies default values are applied.
func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	result := applyConfigDefaults(Config{})

	assert.Equal(t, 12310, result.Port, "default port should be 12310")
	assert.Equal(t, "openai", result.LLMBackend, "default LLM backend should be openai")
	assert.Equal(t, "trialscout-otel-collector:4317", result.OTelEndpoint)
	assert.Equal(t, 10, result.RateLimit)
	assert.Equal(t, time.Minute, result.RateWindow)
	assert.Equal(t, registry.DefaultEligibilityTTL, result.CacheTTL)
	assert.Equal(t, scoring.MaxScoredTrials, result.MaxScoredTrials)
}

// TestApplyConfigDefaults_PreservesCustomValues verifies custom values
// are not overwritten.
func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	cfg := Config{
		Port:            8080,
		LLMBackend:      "ollama",
		OTelEndpoint:    "custom-collector:4317",
		RateLimit:       3,
		RateWindow:      time.Second,
		CacheTTL:        time.Hour,
		MaxScoredTrials: 5,
	}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, 8080, result.Port)
	assert.Equal(t, "ollama", result.LLMBackend)
	assert.Equal(t, "custom-collector:4317", result.OTelEndpoint)
	assert.Equal(t, 3, result.RateLimit)
	assert.Equal(t, time.Second, result.RateWindow)
	assert.Equal(t, time.Hour, result.CacheTTL)
	assert.Equal(t, 5, result.MaxScoredTrials)
}

// =============================================================================
// Integration Tests
// =============================================================================

// TestNew_Integration exercises full construction with an in-memory
// store and no external collaborators.
func TestNew_Integration(t *testing.T) {
	svc, err := New(Config{
		LLMBackend: "ollama",
		GinMode:    gin.TestMode,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	require.NotNil(t, svc.Router())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	svc.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	svc.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestNew_VagueConditionEndToEnd verifies the gate short-circuits at the
// HTTP surface without any registry stub in place.
func TestNew_VagueConditionEndToEnd(t *testing.T) {
	svc, err := New(Config{
		LLMBackend: "ollama",
		GinMode:    gin.TestMode,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/trials/search",
		bytes.NewBufferString(`{"condition": "cancer", "age": 50}`))
	req.Header.Set("Content-Type", "application/json")
	svc.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "more specifically")
}

// TestServiceImplementsInterface is a compile-time check.
func TestServiceImplementsInterface(t *testing.T) {
	var _ Service = (*service)(nil)
}
