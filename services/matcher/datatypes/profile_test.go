// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"
)

// TestPatientProfile_Validate_Valid tests a fully populated profile passes.
func TestPatientProfile_Validate_Valid(t *testing.T) {
	p := PatientProfile{
		Condition:   "stage 3 triple-negative breast cancer",
		Age:         54,
		Location:    "Boston, MA",
		Medications: []string{"metformin"},
	}
	if err := p.Validate(); err != nil {
		t.Errorf("valid profile should pass validation, got: %v", err)
	}
}

// TestPatientProfile_Validate_MissingCondition tests the required field.
func TestPatientProfile_Validate_MissingCondition(t *testing.T) {
	p := PatientProfile{Age: 30}
	if err := p.Validate(); err == nil {
		t.Error("profile without condition should fail validation")
	}

	p.Condition = "   "
	if err := p.Validate(); err == nil {
		t.Error("whitespace-only condition should fail validation")
	}
}

// TestPatientProfile_Validate_AgeBounds tests the 0-120 age range.
func TestPatientProfile_Validate_AgeBounds(t *testing.T) {
	for _, age := range []int{0, 1, 120} {
		p := PatientProfile{Condition: "type 1 diabetes", Age: age}
		if err := p.Validate(); err != nil {
			t.Errorf("age %d should be valid, got: %v", age, err)
		}
	}
	for _, age := range []int{-1, 121, 500} {
		p := PatientProfile{Condition: "type 1 diabetes", Age: age}
		if err := p.Validate(); err == nil {
			t.Errorf("age %d should be rejected", age)
		}
	}
}

// TestPipelineError_ErrorString tests kind and message appear in Error().
func TestPipelineError_ErrorString(t *testing.T) {
	e := NewPipelineError(ErrUpstreamUnavailable, "registry unreachable", nil)
	got := e.Error()
	if !strings.Contains(got, string(ErrUpstreamUnavailable)) {
		t.Errorf("Error() should contain the kind, got %q", got)
	}
	if !strings.Contains(got, "registry unreachable") {
		t.Errorf("Error() should contain the message, got %q", got)
	}
	if e.UserMessage() != "registry unreachable" {
		t.Errorf("UserMessage() = %q, want registry unreachable", e.UserMessage())
	}
}

// TestRegistryURL tests the canonical listing URL format.
func TestRegistryURL(t *testing.T) {
	got := RegistryURL("NCT01234567")
	want := "https://clinicaltrials.gov/study/NCT01234567"
	if got != want {
		t.Errorf("RegistryURL = %q, want %q", got, want)
	}
}
