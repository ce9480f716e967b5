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

import "time"

// Search modes distinguish where a SearchRecord originated.
const (
	SearchModeForm = "form"
	SearchModeChat = "chat"
)

// SearchRecord is a completed search persisted under a generated identifier.
//
// Write-once: created after scoring completes, never updated or deleted by
// the pipeline. Retrieval is by opaque identifier only (share links, not a
// search index).
type SearchRecord struct {
	ID             string        `json:"id"`
	Mode           string        `json:"mode"`
	Condition      string        `json:"condition"`
	Age            int           `json:"age"`
	Location       string        `json:"location,omitempty"`
	Medications    []string      `json:"medications,omitempty"`
	AdditionalInfo string        `json:"additionalInfo,omitempty"`
	Results        []ScoredTrial `json:"results"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// SearchRequest is the body of POST /v1/trials/search.
type SearchRequest struct {
	Condition      string   `json:"condition" binding:"required"`
	Age            int      `json:"age" binding:"gte=0,lte=120"`
	Location       string   `json:"location"`
	Medications    []string `json:"medications"`
	AdditionalInfo string   `json:"additionalInfo"`
}

// Profile converts the request into an immutable PatientProfile.
func (r SearchRequest) Profile() PatientProfile {
	return PatientProfile{
		Condition:      r.Condition,
		Age:            r.Age,
		Location:       r.Location,
		Medications:    r.Medications,
		AdditionalInfo: r.AdditionalInfo,
	}
}

// SearchResponse is the body of POST /v1/trials/search.
//
// Upstream failures are communicated in-band via Error with HTTP 200 so the
// client renders a friendly message instead of a transport failure. Trials
// is never nil in a serialized response.
type SearchResponse struct {
	Trials   []ScoredTrial `json:"trials"`
	Count    int           `json:"count"`
	SearchID string        `json:"searchId,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// MatchToolRequest is the conversational tool-call boundary input. This is
// the only place synonym expansion is populated (by the calling LLM, not
// the user).
type MatchToolRequest struct {
	Condition      string   `json:"condition" binding:"required"`
	Synonyms       []string `json:"synonyms"`
	Location       string   `json:"location"`
	Age            int      `json:"age" binding:"gte=0,lte=120"`
	Medications    []string `json:"medications"`
	AdditionalInfo string   `json:"additionalInfo"`
}

// Profile converts the tool request into an immutable PatientProfile.
func (r MatchToolRequest) Profile() PatientProfile {
	return PatientProfile{
		Condition:      r.Condition,
		Age:            r.Age,
		Location:       r.Location,
		Medications:    r.Medications,
		AdditionalInfo: r.AdditionalInfo,
	}
}

// MatchToolResponse is the conversational tool-call boundary output.
type MatchToolResponse struct {
	Trials         []ScoredTrial   `json:"trials"`
	Count          int             `json:"count"`
	PatientProfile *PatientProfile `json:"patientProfile,omitempty"`
	Error          string          `json:"error,omitempty"`
}
