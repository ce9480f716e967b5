// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gate

import "testing"

// TestGate_IsVague covers the ordered policy rules against the default
// configuration.
func TestGate_IsVague(t *testing.T) {
	g := New(DefaultConfig())

	cases := []struct {
		condition string
		want      bool
		why       string
	}{
		{"", true, "empty input"},
		{"   ", true, "whitespace-only input"},
		{"cancer", true, "broad term"},
		{"Cancer", true, "broad term, case-insensitive"},
		{"  CANCER  ", true, "broad term, trimmed"},
		{"pain", true, "broad term"},
		{"flu", true, "single short word not in allow-list"},
		{"headache", true, "broad term"},
		{"als", false, "allowed abbreviation"},
		{"ALS", false, "allowed abbreviation, case-insensitive"},
		{"ms", false, "allowed abbreviation"},
		{"copd", false, "allowed abbreviation"},
		{"melanoma", true, "single word not in allow-list"},
		{"stage 3 triple-negative breast cancer", false, "specific multi-word condition"},
		{"type 2 diabetes", false, "specific multi-word condition"},
		{"heart disease", true, "broad multi-word term"},
		{"idiopathic pulmonary fibrosis", false, "specific multi-word condition"},
	}

	for _, tc := range cases {
		if got := g.IsVague(tc.condition); got != tc.want {
			t.Errorf("IsVague(%q) = %v, want %v (%s)", tc.condition, got, tc.want, tc.why)
		}
	}
}

// TestGate_ConfigOverride tests that operator-supplied terms extend the
// policy without code changes.
func TestGate_ConfigOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedAbbreviations = append(cfg.AllowedAbbreviations, "xyz")
	cfg.VagueTerms = append(cfg.VagueTerms, "feeling bad")
	g := New(cfg)

	if g.IsVague("xyz") {
		t.Error("custom abbreviation should not be vague")
	}
	if !g.IsVague("feeling bad") {
		t.Error("custom vague term should be vague")
	}
}

// TestGate_WhitespaceNormalization tests internal whitespace collapsing.
func TestGate_WhitespaceNormalization(t *testing.T) {
	g := New(DefaultConfig())

	if !g.IsVague("heart   disease") {
		t.Error("extra internal whitespace should still match the vague term")
	}
	if g.IsVague("stage  4   lung adenocarcinoma") {
		t.Error("specific condition with odd spacing should pass the gate")
	}
}
