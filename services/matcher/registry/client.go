// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry fetches trial listings from the ClinicalTrials.gov v2
// API and enriches them with cached eligibility detail.
//
// The list search and the per-trial eligibility endpoint are separate
// calls: list results change with registry state, but a given trial's
// eligibility text is effectively static, so only the latter goes through
// the cache.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/TrialScout/services/matcher/datatypes"
	"github.com/AleutianAI/TrialScout/services/matcher/observability"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://clinicaltrials.gov/api/v2"
	defaultPageSize = 20

	// listFields trims list-search payloads to the modules TrialRecord
	// needs. Eligibility detail is deliberately excluded; it is fetched
	// per trial through the cache.
	listFields = "protocolSection.identificationModule," +
		"protocolSection.statusModule," +
		"protocolSection.descriptionModule," +
		"protocolSection.designModule," +
		"protocolSection.conditionsModule," +
		"protocolSection.contactsLocationsModule," +
		"protocolSection.armsInterventionsModule," +
		"protocolSection.sponsorCollaboratorsModule"
)

// HTTPClient interface allows injecting mock HTTP clients for testing
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// --- ClinicalTrials.gov v2 API Structs ---

type studiesResponse struct {
	Studies       []study `json:"studies"`
	NextPageToken string  `json:"nextPageToken"`
}

type study struct {
	ProtocolSection protocolSection `json:"protocolSection"`
}

type protocolSection struct {
	Identification identificationModule `json:"identificationModule"`
	Status         statusModule         `json:"statusModule"`
	Description    descriptionModule    `json:"descriptionModule"`
	Design         designModule         `json:"designModule"`
	Conditions     conditionsModule     `json:"conditionsModule"`
	Eligibility    eligibilityModule    `json:"eligibilityModule"`
	Contacts       contactsModule       `json:"contactsLocationsModule"`
	Arms           armsModule           `json:"armsInterventionsModule"`
	Sponsor        sponsorModule        `json:"sponsorCollaboratorsModule"`
}

type identificationModule struct {
	NCTID      string `json:"nctId"`
	BriefTitle string `json:"briefTitle"`
}

type statusModule struct {
	OverallStatus string `json:"overallStatus"`
}

type descriptionModule struct {
	BriefSummary string `json:"briefSummary"`
}

type designModule struct {
	Phases []string `json:"phases"`
}

type conditionsModule struct {
	Conditions []string `json:"conditions"`
}

type eligibilityModule struct {
	EligibilityCriteria string `json:"eligibilityCriteria"`
	MinimumAge          string `json:"minimumAge"`
	MaximumAge          string `json:"maximumAge"`
	Sex                 string `json:"sex"`
	HealthyVolunteers   bool   `json:"healthyVolunteers"`
}

type contactsModule struct {
	Locations []studyLocation `json:"locations"`
}

type studyLocation struct {
	Facility string `json:"facility"`
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
}

type armsModule struct {
	Interventions []intervention `json:"interventions"`
}

type intervention struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type sponsorModule struct {
	LeadSponsor leadSponsor `json:"leadSponsor"`
}

type leadSponsor struct {
	Name string `json:"name"`
}

// API is the registry surface the fetcher consumes. Satisfied by Client;
// tests substitute recording fakes.
type API interface {
	// SearchStudies lists recruiting studies matching a condition term and
	// optional location.
	SearchStudies(ctx context.Context, term, location string) ([]datatypes.TrialRecord, error)

	// FetchEligibility retrieves eligibility detail for one study.
	FetchEligibility(ctx context.Context, nctID string) (datatypes.EligibilityEntry, error)
}

// Client queries the ClinicalTrials.gov v2 API.
//
// Outbound calls are throttled with a token-bucket limiter to stay polite
// to the registry regardless of inbound request volume.
type Client struct {
	httpClient HTTPClient
	baseURL    string
	pageSize   int
	limiter    *rate.Limiter
	now        func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient injects an HTTP client (used by tests).
func WithHTTPClient(hc HTTPClient) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the registry base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithPageSize overrides the list-search page size.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit overrides the outbound requests-per-second budget.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewClient creates a registry client with production defaults: a 15s
// request timeout and 3 req/s outbound throttle.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		pageSize:   defaultPageSize,
		limiter:    rate.NewLimiter(rate.Limit(3), 3),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchStudies implements API.
func (c *Client) SearchStudies(ctx context.Context, term, location string) ([]datatypes.TrialRecord, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("query.cond", term)
	params.Set("filter.overallStatus", "RECRUITING")
	params.Set("pageSize", fmt.Sprintf("%d", c.pageSize))
	params.Set("fields", listFields)
	if location != "" {
		params.Set("query.locn", location)
	}

	var resp studiesResponse
	if err := c.getJSON(ctx, "list_search", c.baseURL+"/studies?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	trials := make([]datatypes.TrialRecord, 0, len(resp.Studies))
	for _, s := range resp.Studies {
		trials = append(trials, toTrialRecord(s))
	}
	return trials, nil
}

// FetchEligibility implements API.
func (c *Client) FetchEligibility(ctx context.Context, nctID string) (datatypes.EligibilityEntry, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("fields", "protocolSection.eligibilityModule")

	endpoint := c.baseURL + "/studies/" + url.PathEscape(nctID) + "?" + params.Encode()

	var s study
	if err := c.getJSON(ctx, "eligibility", endpoint, &s); err != nil {
		return datatypes.EligibilityEntry{}, err
	}

	mod := s.ProtocolSection.Eligibility
	return datatypes.EligibilityEntry{
		NCTID:             nctID,
		Criteria:          mod.EligibilityCriteria,
		MinimumAge:        mod.MinimumAge,
		MaximumAge:        mod.MaximumAge,
		Sex:               mod.Sex,
		HealthyVolunteers: mod.HealthyVolunteers,
		FetchedAt:         c.now().UTC(),
	}, nil
}

// getJSON performs one throttled GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, operation, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("registry throttle wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	observability.RecordRegistryRequest(operation, c.now().Sub(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to call trial registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trial registry returned status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode registry JSON: %w", err)
	}
	return nil
}

// toTrialRecord normalizes one registry study into the domain shape.
func toTrialRecord(s study) datatypes.TrialRecord {
	ps := s.ProtocolSection

	locations := make([]datatypes.TrialLocation, 0, len(ps.Contacts.Locations))
	for _, loc := range ps.Contacts.Locations {
		locations = append(locations, datatypes.TrialLocation{
			Facility: loc.Facility,
			City:     loc.City,
			State:    loc.State,
			Country:  loc.Country,
		})
	}

	interventions := make([]string, 0, len(ps.Arms.Interventions))
	for _, iv := range ps.Arms.Interventions {
		interventions = append(interventions, iv.Name)
	}

	return datatypes.TrialRecord{
		NCTID:             ps.Identification.NCTID,
		Title:             ps.Identification.BriefTitle,
		Summary:           ps.Description.BriefSummary,
		Status:            ps.Status.OverallStatus,
		Phase:             strings.Join(ps.Design.Phases, ", "),
		Conditions:        ps.Conditions.Conditions,
		EligibilityText:   ps.Eligibility.EligibilityCriteria,
		MinimumAge:        ps.Eligibility.MinimumAge,
		MaximumAge:        ps.Eligibility.MaximumAge,
		Sex:               ps.Eligibility.Sex,
		HealthyVolunteers: ps.Eligibility.HealthyVolunteers,
		Locations:         locations,
		Interventions:     interventions,
		Sponsor:           ps.Sponsor.LeadSponsor.Name,
	}
}
