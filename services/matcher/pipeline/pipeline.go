// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs one trial search end to end: vagueness gate,
// registry fetch, truncation, scoring, persistence. Both the form search
// endpoint and the conversational tool boundary funnel through the same
// entry point; only the persistence mode differs.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/TrialScout/services/matcher/datatypes"
	"github.com/AleutianAI/TrialScout/services/matcher/gate"
	"github.com/AleutianAI/TrialScout/services/matcher/observability"
	"github.com/AleutianAI/TrialScout/services/matcher/registry"
	"github.com/AleutianAI/TrialScout/services/matcher/scoring"
)

// defaultPersistTimeout bounds the background save on the chat path.
const defaultPersistTimeout = 10 * time.Second

// TrialFetcher is the registry fan-out surface (satisfied by
// registry.Fetcher).
type TrialFetcher interface {
	Fetch(ctx context.Context, input registry.FetchInput) registry.FetchResult
}

// TrialScorer ranks trials against a profile (satisfied by
// scoring.Scorer).
type TrialScorer interface {
	Score(ctx context.Context, trials []datatypes.TrialRecord, profile datatypes.PatientProfile) ([]datatypes.ScoredTrial, *datatypes.PipelineError)
}

// SearchSaver persists completed searches (satisfied by
// store.SearchStore).
type SearchSaver interface {
	Save(ctx context.Context, record datatypes.SearchRecord) (string, error)
}

// Input is one search run.
type Input struct {
	// Mode is datatypes.SearchModeForm or datatypes.SearchModeChat. It
	// picks the persistence behavior: form saves before responding, chat
	// saves in the background.
	Mode string

	Profile datatypes.PatientProfile

	// Synonyms expand the condition query. Populated only on the chat
	// path, by the calling model.
	Synonyms []string
}

// Output is the result of one run. Err carries the in-band failure, if
// any; Trials is never nil.
type Output struct {
	Trials   []datatypes.ScoredTrial
	Count    int
	SearchID string
	Err      *datatypes.PipelineError
}

// Pipeline wires the search stages together.
type Pipeline struct {
	gate           *gate.Gate
	fetcher        TrialFetcher
	scorer         TrialScorer
	saver          SearchSaver
	logger         *slog.Logger
	maxScored      int
	persistTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxScoredTrials overrides the per-batch scoring cap.
func WithMaxScoredTrials(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxScored = n
		}
	}
}

// WithPersistTimeout overrides the background save deadline.
func WithPersistTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.persistTimeout = d
		}
	}
}

// New wires a Pipeline. A nil logger falls back to slog.Default.
func New(g *gate.Gate, fetcher TrialFetcher, scorer TrialScorer, saver SearchSaver, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		gate:           g,
		fetcher:        fetcher,
		scorer:         scorer,
		saver:          saver,
		logger:         logger,
		maxScored:      scoring.MaxScoredTrials,
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one search.
//
// # Description
//
//	A vague condition short-circuits with input_rejected before any
//	external call. Registry or scoring trouble degrades the run rather
//	than failing it: partial results are returned with the error carried
//	in-band. Persistence failures never fail the response; the search
//	simply has no share identifier.
func (p *Pipeline) Run(ctx context.Context, in Input) Output {
	if m := observability.DefaultMetrics; m != nil {
		m.ActiveSearches.Inc()
		defer m.ActiveSearches.Dec()
	}

	if p.gate.IsVague(in.Profile.Condition) {
		observability.RecordSearch(in.Mode, observability.OutcomeRejected)
		return Output{
			Trials: []datatypes.ScoredTrial{},
			Err: datatypes.NewPipelineError(
				datatypes.ErrInputRejected,
				"Please describe the condition more specifically, for example the subtype, stage, or full medical name.",
				nil,
			),
		}
	}

	fetched := p.fetcher.Fetch(ctx, registry.FetchInput{
		Condition: in.Profile.Condition,
		Synonyms:  in.Synonyms,
		Location:  in.Profile.Location,
	})
	if fetched.Err != nil && len(fetched.Trials) == 0 {
		observability.RecordSearch(in.Mode, observability.OutcomeDegraded)
		return Output{Trials: []datatypes.ScoredTrial{}, Err: fetched.Err}
	}

	trials := fetched.Trials
	if len(trials) > p.maxScored {
		p.logger.Info("truncating fetch results before scoring",
			"fetched", len(trials), "cap", p.maxScored)
		trials = trials[:p.maxScored]
	}

	scored, scoreErr := p.scorer.Score(ctx, trials, in.Profile)
	if scored == nil {
		scored = []datatypes.ScoredTrial{}
	}

	out := Output{Trials: scored, Count: len(scored)}
	switch {
	case fetched.Err != nil:
		out.Err = fetched.Err
	case scoreErr != nil:
		out.Err = scoreErr
	}

	record := datatypes.SearchRecord{
		Mode:           in.Mode,
		Condition:      in.Profile.Condition,
		Age:            in.Profile.Age,
		Location:       in.Profile.Location,
		Medications:    in.Profile.Medications,
		AdditionalInfo: in.Profile.AdditionalInfo,
		Results:        scored,
	}
	if in.Mode == datatypes.SearchModeChat {
		p.persistAsync(record)
	} else {
		id, err := p.saver.Save(ctx, record)
		if err != nil {
			p.logger.Warn("failed to persist search", "mode", in.Mode, "error", err)
		} else {
			out.SearchID = id
		}
	}

	if out.Err != nil {
		observability.RecordSearch(in.Mode, observability.OutcomeDegraded)
	} else {
		observability.RecordSearch(in.Mode, observability.OutcomeSuccess)
	}
	return out
}

// persistAsync saves the record in the background with its own deadline,
// detached from the already-answered request.
func (p *Pipeline) persistAsync(record datatypes.SearchRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.persistTimeout)
		defer cancel()
		if _, err := p.saver.Save(ctx, record); err != nil {
			p.logger.Warn("failed to persist search", "mode", record.Mode, "error", err)
		}
	}()
}
