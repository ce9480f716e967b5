// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/TrialScout/services/matcher/datatypes"
)

const (
	// MaxSynonyms caps how many caller-supplied synonyms expand a search.
	MaxSynonyms = 8

	// queryConcurrency bounds simultaneous list searches per pipeline run.
	queryConcurrency = 4

	// enrichConcurrency bounds simultaneous eligibility fetches.
	enrichConcurrency = 4
)

// SanitizeSynonyms normalizes caller-supplied synonyms for condition.
//
// # Description
//
//	Each synonym is whitespace-trimmed; empties and case-insensitive
//	duplicates of the condition itself are dropped; the survivors are
//	capped at MaxSynonyms in their original order. Duplicates among the
//	synonyms themselves are kept, the list-result dedupe absorbs them.
//
// # Inputs
//   - condition: the primary condition term.
//   - synonyms: raw synonym list, possibly nil.
//
// # Outputs
//   - []string: sanitized synonyms, possibly empty, never nil-dereferenced
//     downstream.
func SanitizeSynonyms(condition string, synonyms []string) []string {
	condLower := strings.ToLower(strings.TrimSpace(condition))
	out := make([]string, 0, len(synonyms))
	for _, s := range synonyms {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.ToLower(s) == condLower {
			continue
		}
		out = append(out, s)
		if len(out) == MaxSynonyms {
			break
		}
	}
	return out
}

// FetchInput describes one registry fan-out.
type FetchInput struct {
	Condition string
	Synonyms  []string
	Location  string
}

// FetchResult carries the merged trial list plus a non-fatal degradation
// note. Err is nil on a clean run; when some term queries fail but at
// least one succeeds, Trials holds the partial merge and Err reports the
// degradation so callers can surface it without discarding results.
type FetchResult struct {
	Trials []datatypes.TrialRecord
	Err    *datatypes.PipelineError
}

// Fetcher fans a condition and its synonyms out to the registry, merges
// and dedupes the listings, and enriches them with cached eligibility.
type Fetcher struct {
	api    API
	cache  *EligibilityCache
	logger *slog.Logger
}

// NewFetcher wires a Fetcher. A nil logger falls back to slog.Default.
func NewFetcher(api API, cache *EligibilityCache, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{api: api, cache: cache, logger: logger}
}

// Fetch runs the full fan-out for input.
//
// # Description
//
//	One list search per term (condition first, then sanitized synonyms)
//	runs concurrently under a bounded group, but results are merged in
//	term order so that deduplication by NCT identifier is deterministic:
//	the first term to list a trial owns it. Trials missing eligibility
//	text are then enriched through the cache. Every term query failing
//	is fatal; anything less degrades.
//
// # Outputs
//   - FetchResult: merged trials, or Err with kind upstream_unavailable
//     when no term query succeeded.
func (f *Fetcher) Fetch(ctx context.Context, input FetchInput) FetchResult {
	terms := append([]string{input.Condition}, SanitizeSynonyms(input.Condition, input.Synonyms)...)

	perTerm := make([][]datatypes.TrialRecord, len(terms))
	termErrs := make([]error, len(terms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(queryConcurrency)
	for i, term := range terms {
		g.Go(func() error {
			trials, err := f.api.SearchStudies(gctx, term, input.Location)
			if err != nil {
				// Recorded, not returned: one bad term must not cancel
				// its siblings.
				termErrs[i] = err
				f.logger.Warn("registry term query failed", "term", term, "error", err)
				return nil
			}
			perTerm[i] = trials
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range termErrs {
		if err != nil {
			failed++
		}
	}
	if failed == len(terms) {
		return FetchResult{Err: datatypes.NewPipelineError(
			datatypes.ErrUpstreamUnavailable,
			"The trial registry is currently unavailable. Please try again shortly.",
			termErrs[0],
		)}
	}

	merged := mergeByFirstSeen(perTerm)
	f.enrich(ctx, merged)

	result := FetchResult{Trials: merged}
	if failed > 0 {
		result.Err = datatypes.NewPipelineError(
			datatypes.ErrUpstreamUnavailable,
			"Some registry queries failed; results may be incomplete.",
			nil,
		)
	}
	return result
}

// mergeByFirstSeen flattens per-term listings in term order, keeping the
// first occurrence of each NCT identifier.
func mergeByFirstSeen(perTerm [][]datatypes.TrialRecord) []datatypes.TrialRecord {
	seen := make(map[string]struct{})
	var merged []datatypes.TrialRecord
	for _, trials := range perTerm {
		for _, t := range trials {
			if t.NCTID == "" {
				continue
			}
			if _, dup := seen[t.NCTID]; dup {
				continue
			}
			seen[t.NCTID] = struct{}{}
			merged = append(merged, t)
		}
	}
	return merged
}

// enrich fills missing eligibility detail in place, preferring the cache
// and falling back to the registry. Enrichment failures leave the trial's
// listing data intact; scoring treats absent criteria as unknown.
func (f *Fetcher) enrich(ctx context.Context, trials []datatypes.TrialRecord) {
	if f.cache == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range trials {
		if trials[i].EligibilityText != "" {
			continue
		}
		g.Go(func() error {
			entry, ok, err := f.cache.Get(gctx, trials[i].NCTID)
			if err != nil {
				// Storage trouble is a forced miss; the registry fetch
				// below still runs.
				f.logger.Warn("eligibility cache read failed", "nctId", trials[i].NCTID, "error", err)
				ok = false
			}
			if !ok {
				entry, err = f.api.FetchEligibility(gctx, trials[i].NCTID)
				if err != nil {
					f.logger.Warn("eligibility fetch failed", "nctId", trials[i].NCTID, "error", err)
					return nil
				}
				if err := f.cache.Upsert(gctx, entry); err != nil {
					f.logger.Warn("eligibility cache write failed", "nctId", trials[i].NCTID, "error", err)
				}
			}
			// Each goroutine owns its own slice element.
			trials[i].EligibilityText = entry.Criteria
			trials[i].MinimumAge = entry.MinimumAge
			trials[i].MaximumAge = entry.MaximumAge
			trials[i].Sex = entry.Sex
			trials[i].HealthyVolunteers = entry.HealthyVolunteers
			return nil
		})
	}
	_ = g.Wait()
}
