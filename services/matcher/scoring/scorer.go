// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring ranks trials against a patient profile. Cheap
// deterministic checks (age bounds) run first; everything that survives
// them is judged qualitatively in a single LLM batch call.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/TrialScout/services/llm"
	"github.com/AleutianAI/TrialScout/services/matcher/datatypes"
	"github.com/AleutianAI/TrialScout/services/matcher/observability"
)

// MaxScoredTrials caps one scoring batch; larger fetch results are
// truncated before scoring to bound latency and token cost.
const MaxScoredTrials = 25

// eligibilityExcerptLimit bounds per-trial eligibility text in the
// batch prompt.
const eligibilityExcerptLimit = 1200

// Scorer evaluates trials against a patient profile.
type Scorer struct {
	client llm.LLMClient
	logger *slog.Logger
}

// NewScorer wires a Scorer. A nil logger falls back to slog.Default.
func NewScorer(client llm.LLMClient, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{client: client, logger: logger}
}

// Score evaluates every trial against profile.
//
// # Description
//
//	Output preserves input order and length exactly: every input trial
//	yields one ScoredTrial. Trials whose age bounds exclude the patient
//	are scored deterministically and skip the LLM batch. The remainder
//	go out in one batch call; any trial the model fails to account for,
//	and every trial when the call itself fails, falls back to a neutral
//	score with a reason saying scoring was unavailable.
//
// # Outputs
//   - []datatypes.ScoredTrial: one entry per input trial, same order.
//   - *datatypes.PipelineError: non-nil with kind scoring_failure when
//     the batch call failed; the scored list is still complete.
func (s *Scorer) Score(ctx context.Context, trials []datatypes.TrialRecord, profile datatypes.PatientProfile) ([]datatypes.ScoredTrial, *datatypes.PipelineError) {
	scored := make([]datatypes.ScoredTrial, len(trials))
	var batchIdx []int
	for i, tr := range trials {
		scored[i] = datatypes.ScoredTrial{TrialRecord: tr, URL: datatypes.RegistryURL(tr.NCTID)}
		if verdict, decided := ageVerdict(tr, profile.Age); decided {
			scored[i].MatchScore = verdict.score
			scored[i].MatchLabel = verdict.label
			scored[i].MatchReason = verdict.reason
			continue
		}
		batchIdx = append(batchIdx, i)
	}
	if len(batchIdx) == 0 {
		return scored, nil
	}

	batch := make([]datatypes.TrialRecord, len(batchIdx))
	for j, i := range batchIdx {
		batch[j] = trials[i]
	}

	start := time.Now()
	verdicts, err := s.scoreBatch(ctx, batch, profile)
	observability.RecordScoringBatch(len(batch), time.Since(start).Seconds())

	var pipeErr *datatypes.PipelineError
	if err != nil {
		s.logger.Error("scoring batch failed", "trials", len(batch), "error", err)
		pipeErr = datatypes.NewPipelineError(
			datatypes.ErrScoringFailure,
			"Automated scoring was unavailable; trials are shown unranked.",
			err,
		)
	}

	for _, i := range batchIdx {
		v, ok := verdicts[scored[i].NCTID]
		if !ok {
			scored[i].MatchScore = datatypes.NeutralMatchScore
			scored[i].MatchLabel = datatypes.MatchLabelUnknown
			scored[i].MatchReason = "Scoring was unavailable for this trial."
			continue
		}
		scored[i].MatchScore = clampScore(v.Score)
		scored[i].MatchLabel = normalizeLabel(v.Label, scored[i].MatchScore)
		scored[i].MatchReason = v.Reason
	}
	return scored, pipeErr
}

// verdict is a deterministic pre-check outcome.
type verdict struct {
	score  int
	label  string
	reason string
}

// ageVerdict applies the trial's structured age bounds. It only decides
// when the patient is clearly outside the range; everything else is left
// to the qualitative pass.
func ageVerdict(tr datatypes.TrialRecord, age int) (verdict, bool) {
	if age <= 0 {
		return verdict{}, false
	}
	if min, ok := parseAgeYears(tr.MinimumAge); ok && float64(age) < min {
		return verdict{
			score:  10,
			label:  datatypes.MatchLabelPoor,
			reason: fmt.Sprintf("Patient age %d is below the trial minimum of %s.", age, tr.MinimumAge),
		}, true
	}
	if max, ok := parseAgeYears(tr.MaximumAge); ok && float64(age) > max {
		return verdict{
			score:  10,
			label:  datatypes.MatchLabelPoor,
			reason: fmt.Sprintf("Patient age %d is above the trial maximum of %s.", age, tr.MaximumAge),
		}, true
	}
	return verdict{}, false
}

// parseAgeYears reads registry age strings like "18 Years", "6 Months",
// or "30 Days" into years.
func parseAgeYears(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, false
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(fields[1]) {
	case "year", "years":
		return n, true
	case "month", "months":
		return n / 12, true
	case "week", "weeks":
		return n / 52, true
	case "day", "days":
		return n / 365, true
	}
	return 0, false
}

// batchVerdict is one entry of the model's JSON-array reply.
type batchVerdict struct {
	NCTID  string `json:"nctId"`
	Score  int    `json:"score"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// scoreBatch sends one batch prompt and indexes the reply by NCT id.
func (s *Scorer) scoreBatch(ctx context.Context, trials []datatypes.TrialRecord, profile datatypes.PatientProfile) (map[string]batchVerdict, error) {
	prompt := buildBatchPrompt(trials, profile)

	maxTokens := 4096
	temperature := float32(0.2)
	raw, err := s.client.Generate(ctx, prompt, llm.GenerationParams{
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("llm generate: %w", err)
	}

	verdicts, err := parseBatchReply(raw)
	if err != nil {
		return nil, err
	}
	return verdicts, nil
}

// buildBatchPrompt lays out the profile and one compact block per trial,
// then pins the reply format to a bare JSON array.
func buildBatchPrompt(trials []datatypes.TrialRecord, profile datatypes.PatientProfile) string {
	var b strings.Builder
	b.WriteString("Evaluate how well each clinical trial fits this patient.\n\n")
	b.WriteString("Patient profile:\n")
	fmt.Fprintf(&b, "- Condition: %s\n", profile.Condition)
	if profile.Age > 0 {
		fmt.Fprintf(&b, "- Age: %d\n", profile.Age)
	}
	if profile.Location != "" {
		fmt.Fprintf(&b, "- Location: %s\n", profile.Location)
	}
	if len(profile.Medications) > 0 {
		fmt.Fprintf(&b, "- Current medications: %s\n", strings.Join(profile.Medications, ", "))
	}
	if profile.AdditionalInfo != "" {
		fmt.Fprintf(&b, "- Additional context: %s\n", profile.AdditionalInfo)
	}

	b.WriteString("\nTrials:\n")
	for i, tr := range trials {
		fmt.Fprintf(&b, "\n[%d] %s: %s\n", i+1, tr.NCTID, tr.Title)
		if tr.Phase != "" {
			fmt.Fprintf(&b, "Phase: %s\n", tr.Phase)
		}
		if len(tr.Conditions) > 0 {
			fmt.Fprintf(&b, "Conditions: %s\n", strings.Join(tr.Conditions, "; "))
		}
		if tr.Sex != "" && !strings.EqualFold(tr.Sex, "all") {
			fmt.Fprintf(&b, "Sex: %s\n", tr.Sex)
		}
		if tr.HealthyVolunteers {
			b.WriteString("Accepts healthy volunteers.\n")
		}
		if text := tr.EligibilityText; text != "" {
			if len(text) > eligibilityExcerptLimit {
				text = text[:eligibilityExcerptLimit]
			}
			fmt.Fprintf(&b, "Eligibility criteria: %s\n", text)
		} else {
			b.WriteString("Eligibility criteria: not available.\n")
		}
	}

	b.WriteString("\nReply with ONLY a JSON array, one object per trial, shaped like:\n")
	b.WriteString(`[{"nctId": "NCT...", "score": 0, "label": "excellent|good|fair|poor", "reason": "one sentence"}]` + "\n")
	b.WriteString("Score each trial 0-100 for fit. Base the score primarily on the eligibility criteria; ")
	b.WriteString("use a score near 50 with label \"unknown\" when the criteria give too little signal.\n")
	return b.String()
}

// parseBatchReply extracts the JSON array from raw model output,
// tolerating prose around it.
func parseBatchReply(raw string) (map[string]batchVerdict, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in scoring reply")
	}
	var entries []batchVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse scoring reply: %w", err)
	}
	verdicts := make(map[string]batchVerdict, len(entries))
	for _, e := range entries {
		if e.NCTID == "" {
			continue
		}
		verdicts[e.NCTID] = e
	}
	return verdicts, nil
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// normalizeLabel keeps a recognized model label, otherwise derives the
// tier from the score.
func normalizeLabel(label string, score int) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case datatypes.MatchLabelExcellent:
		return datatypes.MatchLabelExcellent
	case datatypes.MatchLabelGood:
		return datatypes.MatchLabelGood
	case datatypes.MatchLabelFair:
		return datatypes.MatchLabelFair
	case datatypes.MatchLabelPoor:
		return datatypes.MatchLabelPoor
	case datatypes.MatchLabelUnknown:
		return datatypes.MatchLabelUnknown
	}
	switch {
	case score >= 80:
		return datatypes.MatchLabelExcellent
	case score >= 60:
		return datatypes.MatchLabelGood
	case score >= 40:
		return datatypes.MatchLabelFair
	default:
		return datatypes.MatchLabelPoor
	}
}
