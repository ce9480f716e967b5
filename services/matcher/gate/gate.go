// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate rejects underspecified medical-condition queries before any
// external call is made.
//
// A vague condition ("cancer", "pain") can never be narrowed into a useful
// registry search, so spending a registry round-trip and an LLM scoring
// batch on it only burns quota. The gate runs first in the pipeline,
// before synonym expansion and before the fetcher.
package gate

import "strings"

// Config holds the term sets driving the vagueness policy.
//
// Both sets are hand-curated defaults that operators may extend through
// configuration; the policy itself (ordering of the rules) is fixed.
type Config struct {
	// VagueTerms are broad, non-actionable condition words matched exactly
	// (case-insensitive) against the whole input.
	VagueTerms []string

	// AllowedAbbreviations are short disease acronyms that are legitimate
	// single-word queries ("als", "copd").
	AllowedAbbreviations []string
}

// DefaultConfig returns the curated default term sets.
func DefaultConfig() Config {
	return Config{
		VagueTerms: []string{
			"cancer", "tumor", "tumour", "pain", "sick", "sickness", "ill",
			"illness", "disease", "diseases", "infection", "virus", "flu",
			"cold", "fever", "cough", "headache", "fatigue", "tired",
			"condition", "symptoms", "unwell", "hurt", "ache", "allergy",
			"allergies", "rash", "nausea", "dizzy", "dizziness", "weak",
			"weakness", "chronic illness", "rare disease", "heart disease",
			"mental illness", "autoimmune disease", "skin condition",
			"stomach pain", "back pain", "chest pain",
		},
		AllowedAbbreviations: []string{
			"als", "ms", "copd", "ibs", "ibd", "ra", "sle", "hiv", "aids",
			"pcos", "cf", "gerd", "ptsd", "ocd", "adhd", "cll", "cml",
			"aml", "all", "mds", "ipf", "nash", "t1d", "t2d", "pkd", "itp",
			"dmd", "sma", "nmo", "pah", "hcm",
		},
	}
}

// Gate applies the vagueness policy for a fixed configuration.
//
// Safe for concurrent use; the term sets are read-only after construction.
type Gate struct {
	vague   map[string]struct{}
	allowed map[string]struct{}
}

// New builds a Gate from the given configuration. Terms are normalized to
// lower case; empty terms are ignored.
func New(cfg Config) *Gate {
	g := &Gate{
		vague:   make(map[string]struct{}, len(cfg.VagueTerms)),
		allowed: make(map[string]struct{}, len(cfg.AllowedAbbreviations)),
	}
	for _, term := range cfg.VagueTerms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			g.vague[term] = struct{}{}
		}
	}
	for _, abbr := range cfg.AllowedAbbreviations {
		abbr = strings.ToLower(strings.TrimSpace(abbr))
		if abbr != "" {
			g.allowed[abbr] = struct{}{}
		}
	}
	return g
}

// IsVague reports whether the condition text is too broad to search.
//
// Policy, applied in order:
//  1. Empty or whitespace-only input is vague.
//  2. An exact case-insensitive match against the vague-term set is vague.
//  3. Single-word input is vague unless it is an allowed abbreviation.
//  4. Everything else passes.
func (g *Gate) IsVague(conditionText string) bool {
	normalized := strings.ToLower(strings.Join(strings.Fields(conditionText), " "))
	if normalized == "" {
		return true
	}

	if _, ok := g.vague[normalized]; ok {
		return true
	}

	if !strings.Contains(normalized, " ") {
		_, ok := g.allowed[normalized]
		return !ok
	}

	return false
}
