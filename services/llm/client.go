// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides clients for the language-model backends that drive
// eligibility scoring. Backends are selected by environment configuration
// and hidden behind the LLMClient interface so the scorer does not care
// which provider answers.
package llm

import "context"

// GenerationParams are the optional sampling controls passed to a backend.
// Nil pointers mean "use the provider default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
//
// Generate sends a single prompt and returns the raw completion text.
// Implementations must honor ctx cancellation and apply their own
// request timeouts; scoring batches must never hang indefinitely.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
