// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/TrialScout/services/matcher/datatypes"
	"github.com/AleutianAI/TrialScout/services/matcher/gate"
	"github.com/AleutianAI/TrialScout/services/matcher/registry"
)

type fakeFetcher struct {
	result registry.FetchResult
	calls  int
	last   registry.FetchInput
}

func (f *fakeFetcher) Fetch(_ context.Context, input registry.FetchInput) registry.FetchResult {
	f.calls++
	f.last = input
	return f.result
}

type fakeScorer struct {
	gotTrials []datatypes.TrialRecord
	err       *datatypes.PipelineError
}

func (f *fakeScorer) Score(_ context.Context, trials []datatypes.TrialRecord, _ datatypes.PatientProfile) ([]datatypes.ScoredTrial, *datatypes.PipelineError) {
	f.gotTrials = trials
	scored := make([]datatypes.ScoredTrial, len(trials))
	for i, tr := range trials {
		scored[i] = datatypes.ScoredTrial{TrialRecord: tr, MatchScore: 70, MatchLabel: datatypes.MatchLabelGood}
	}
	return scored, f.err
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []datatypes.SearchRecord
	err   error
	done  chan struct{}
}

func (f *fakeSaver) Save(_ context.Context, record datatypes.SearchRecord) (string, error) {
	f.mu.Lock()
	f.saved = append(f.saved, record)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	if f.err != nil {
		return "", f.err
	}
	return "search-id-1", nil
}

func trials(n int) []datatypes.TrialRecord {
	out := make([]datatypes.TrialRecord, n)
	for i := range out {
		out[i] = datatypes.TrialRecord{NCTID: fmt.Sprintf("NCT%d", i+1)}
	}
	return out
}

func newPipeline(f *fakeFetcher, sc *fakeScorer, sv *fakeSaver, opts ...Option) *Pipeline {
	return New(gate.New(gate.DefaultConfig()), f, sc, sv, nil, opts...)
}

func TestRun_VagueConditionMakesNoExternalCalls(t *testing.T) {
	fetcher := &fakeFetcher{}
	saver := &fakeSaver{}
	p := newPipeline(fetcher, &fakeScorer{}, saver)

	out := p.Run(context.Background(), Input{
		Mode:    datatypes.SearchModeForm,
		Profile: datatypes.PatientProfile{Condition: "cancer", Age: 50},
	})

	if out.Err == nil || out.Err.Kind != datatypes.ErrInputRejected {
		t.Fatalf("expected input_rejected, got %v", out.Err)
	}
	if fetcher.calls != 0 {
		t.Errorf("vague condition must not reach the registry, saw %d calls", fetcher.calls)
	}
	if len(saver.saved) != 0 {
		t.Errorf("vague condition must not be persisted")
	}
	if out.Trials == nil {
		t.Error("trials must be an empty slice, not nil")
	}
}

func TestRun_FormPathPersistsSynchronously(t *testing.T) {
	fetcher := &fakeFetcher{result: registry.FetchResult{Trials: trials(2)}}
	saver := &fakeSaver{}
	p := newPipeline(fetcher, &fakeScorer{}, saver)

	out := p.Run(context.Background(), Input{
		Mode:    datatypes.SearchModeForm,
		Profile: datatypes.PatientProfile{Condition: "systemic lupus erythematosus", Age: 40, Location: "Boston"},
	})

	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Count != 2 || len(out.Trials) != 2 {
		t.Errorf("count = %d, trials = %d", out.Count, len(out.Trials))
	}
	if out.SearchID != "search-id-1" {
		t.Errorf("SearchID = %q, want the saved id", out.SearchID)
	}
	if len(saver.saved) != 1 {
		t.Fatalf("expected 1 synchronous save, got %d", len(saver.saved))
	}
	if saver.saved[0].Mode != datatypes.SearchModeForm {
		t.Errorf("saved mode = %q", saver.saved[0].Mode)
	}
	if fetcher.last.Location != "Boston" {
		t.Errorf("location not forwarded to fetch: %q", fetcher.last.Location)
	}
}

func TestRun_ChatPathPersistsInBackground(t *testing.T) {
	fetcher := &fakeFetcher{result: registry.FetchResult{Trials: trials(1)}}
	saver := &fakeSaver{done: make(chan struct{})}
	p := newPipeline(fetcher, &fakeScorer{}, saver)

	out := p.Run(context.Background(), Input{
		Mode:     datatypes.SearchModeChat,
		Profile:  datatypes.PatientProfile{Condition: "multiple myeloma", Age: 60},
		Synonyms: []string{"plasma cell myeloma"},
	})

	if out.SearchID != "" {
		t.Errorf("chat path should not block on a share id, got %q", out.SearchID)
	}
	if got := fetcher.last.Synonyms; len(got) != 1 || got[0] != "plasma cell myeloma" {
		t.Errorf("synonyms not forwarded: %v", got)
	}

	select {
	case <-saver.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background save never ran")
	}
	saver.mu.Lock()
	defer saver.mu.Unlock()
	if saver.saved[0].Mode != datatypes.SearchModeChat {
		t.Errorf("saved mode = %q", saver.saved[0].Mode)
	}
}

func TestRun_TruncatesBeforeScoring(t *testing.T) {
	fetcher := &fakeFetcher{result: registry.FetchResult{Trials: trials(30)}}
	scorer := &fakeScorer{}
	p := newPipeline(fetcher, scorer, &fakeSaver{}, WithMaxScoredTrials(3))

	out := p.Run(context.Background(), Input{
		Mode:    datatypes.SearchModeForm,
		Profile: datatypes.PatientProfile{Condition: "systemic lupus erythematosus", Age: 40},
	})

	if len(scorer.gotTrials) != 3 {
		t.Errorf("scorer saw %d trials, want 3", len(scorer.gotTrials))
	}
	if out.Count != 3 {
		t.Errorf("count = %d, want truncated count", out.Count)
	}
}

func TestRun_UpstreamFailureIsInBand(t *testing.T) {
	fetcher := &fakeFetcher{result: registry.FetchResult{
		Err: datatypes.NewPipelineError(datatypes.ErrUpstreamUnavailable, "registry down", nil),
	}}
	saver := &fakeSaver{}
	p := newPipeline(fetcher, &fakeScorer{}, saver)

	out := p.Run(context.Background(), Input{
		Mode:    datatypes.SearchModeForm,
		Profile: datatypes.PatientProfile{Condition: "systemic lupus erythematosus", Age: 40},
	})

	if out.Err == nil || out.Err.Kind != datatypes.ErrUpstreamUnavailable {
		t.Fatalf("expected upstream_unavailable, got %v", out.Err)
	}
	if len(out.Trials) != 0 || out.Trials == nil {
		t.Errorf("expected empty non-nil trials, got %v", out.Trials)
	}
	if len(saver.saved) != 0 {
		t.Errorf("total upstream failure should not be persisted")
	}
}

func TestRun_PartialFetchStillScoresAndReportsError(t *testing.T) {
	fetcher := &fakeFetcher{result: registry.FetchResult{
		Trials: trials(2),
		Err:    datatypes.NewPipelineError(datatypes.ErrUpstreamUnavailable, "partial", nil),
	}}
	p := newPipeline(fetcher, &fakeScorer{}, &fakeSaver{})

	out := p.Run(context.Background(), Input{
		Mode:    datatypes.SearchModeForm,
		Profile: datatypes.PatientProfile{Condition: "systemic lupus erythematosus", Age: 40},
	})

	if out.Count != 2 {
		t.Errorf("partial results should still be scored, count = %d", out.Count)
	}
	if out.Err == nil || out.Err.Kind != datatypes.ErrUpstreamUnavailable {
		t.Errorf("degradation should be reported in-band, got %v", out.Err)
	}
}

func TestRun_SaveFailureDoesNotFailResponse(t *testing.T) {
	fetcher := &fakeFetcher{result: registry.FetchResult{Trials: trials(1)}}
	saver := &fakeSaver{err: errors.New("disk full")}
	p := newPipeline(fetcher, &fakeScorer{}, saver)

	out := p.Run(context.Background(), Input{
		Mode:    datatypes.SearchModeForm,
		Profile: datatypes.PatientProfile{Condition: "systemic lupus erythematosus", Age: 40},
	})

	if out.Err != nil {
		t.Fatalf("persistence failure must not fail the search: %v", out.Err)
	}
	if out.SearchID != "" {
		t.Errorf("failed save should leave SearchID empty, got %q", out.SearchID)
	}
	if out.Count != 1 {
		t.Errorf("count = %d", out.Count)
	}
}
