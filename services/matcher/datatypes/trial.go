// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the domain and transfer types shared across the
// matcher service: patient profiles, trial records, scored results, persisted
// search records, and the pipeline error taxonomy.
package datatypes

import "time"

// Match labels are the coarse fit tiers assigned by the scorer.
const (
	MatchLabelExcellent = "excellent"
	MatchLabelGood      = "good"
	MatchLabelFair      = "fair"
	MatchLabelPoor      = "poor"
	MatchLabelUnknown   = "unknown"
)

// NeutralMatchScore is assigned when scoring is unavailable for a trial.
const NeutralMatchScore = 50

// TrialLocation is a single study site.
type TrialLocation struct {
	Facility string `json:"facility,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country,omitempty"`
}

// TrialRecord is the normalized representation of a registry study.
//
// Produced by the registry fetcher, consumed by the scorer. Eligibility
// fields may be empty when per-trial enrichment failed; the scorer treats
// missing eligibility text as weak signal, not an error.
type TrialRecord struct {
	NCTID             string          `json:"nctId"`
	Title             string          `json:"title"`
	Summary           string          `json:"summary,omitempty"`
	Status            string          `json:"status,omitempty"`
	Phase             string          `json:"phase,omitempty"`
	Conditions        []string        `json:"conditions,omitempty"`
	EligibilityText   string          `json:"eligibilityText,omitempty"`
	MinimumAge        string          `json:"minimumAge,omitempty"`
	MaximumAge        string          `json:"maximumAge,omitempty"`
	Sex               string          `json:"sex,omitempty"`
	HealthyVolunteers bool            `json:"healthyVolunteers,omitempty"`
	Locations         []TrialLocation `json:"locations,omitempty"`
	Interventions     []string        `json:"interventions,omitempty"`
	Sponsor           string          `json:"sponsor,omitempty"`
}

// RegistryURL returns the canonical listing URL for a trial identifier.
func RegistryURL(nctID string) string {
	return "https://clinicaltrials.gov/study/" + nctID
}

// ScoredTrial is a TrialRecord plus the scorer's verdict and a canonical
// link back to the registry listing. Produced once per search and never
// mutated afterward.
type ScoredTrial struct {
	TrialRecord

	// MatchScore is the fit estimate on a 0-100 scale.
	MatchScore int `json:"matchScore"`

	// MatchLabel is the coarse tier (excellent/good/fair/poor/unknown).
	MatchLabel string `json:"matchLabel,omitempty"`

	// MatchReason is a short natural-language justification.
	MatchReason string `json:"matchReason,omitempty"`

	// URL is the canonical registry listing.
	URL string `json:"url"`
}

// EligibilityEntry is a cached per-trial eligibility detail row.
//
// Invariant: an entry whose FetchedAt is older than the cache TTL is
// treated as absent, never served stale. At most one row exists per NCTID.
type EligibilityEntry struct {
	NCTID             string    `json:"nctId"`
	Criteria          string    `json:"criteria"`
	MinimumAge        string    `json:"minimumAge,omitempty"`
	MaximumAge        string    `json:"maximumAge,omitempty"`
	Sex               string    `json:"sex,omitempty"`
	HealthyVolunteers bool      `json:"healthyVolunteers,omitempty"`
	FetchedAt         time.Time `json:"fetchedAt"`
}
