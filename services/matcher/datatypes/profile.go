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
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// PatientProfile is the immutable patient input for a single search.
//
// # Description
//
// Condition is required and must survive the vagueness gate before any
// external call is made. Age is bounded to plausible human ages. Location,
// medications, and additional context are optional free text that only the
// scorer consumes.
//
// # Thread Safety
//
// Treated as read-only once constructed; safe to share across goroutines.
type PatientProfile struct {
	Condition      string   `json:"condition" binding:"required" validate:"required"`
	Age            int      `json:"age" validate:"gte=0,lte=120"`
	Location       string   `json:"location,omitempty"`
	Medications    []string `json:"medications,omitempty"`
	AdditionalInfo string   `json:"additionalInfo,omitempty"`
}

// Validate checks structural constraints on the profile.
//
// The vagueness policy is NOT applied here; that belongs to the gate so the
// pipeline can report it as input_rejected rather than a validation failure.
func (p PatientProfile) Validate() error {
	if strings.TrimSpace(p.Condition) == "" {
		return fmt.Errorf("condition is required")
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid patient profile: %w", err)
	}
	return nil
}
