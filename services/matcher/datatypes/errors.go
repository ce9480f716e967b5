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

import "fmt"

// ErrorKind tags a pipeline failure with its recovery semantics.
//
// Only admission_denied maps to a distinct HTTP status (429); every other
// kind is normalized into the response body so the UI has one place to
// render failure state.
type ErrorKind string

const (
	// ErrAdmissionDenied: rate limit exceeded. Recovered by caller backoff.
	ErrAdmissionDenied ErrorKind = "admission_denied"

	// ErrInputRejected: condition too vague. Zero external calls were made.
	ErrInputRejected ErrorKind = "input_rejected"

	// ErrUpstreamUnavailable: registry or LLM call failed or timed out.
	ErrUpstreamUnavailable ErrorKind = "upstream_unavailable"

	// ErrScoringFailure: scoring degraded; results carry neutral scores.
	ErrScoringFailure ErrorKind = "scoring_failure"

	// ErrCacheUnavailable: cache read/write failed; treated as a forced miss.
	ErrCacheUnavailable ErrorKind = "cache_unavailable"
)

// PipelineError is the tagged error carried between pipeline components.
// It is flattened to a plain string only at the HTTP serialization edge.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// UserMessage returns the human-readable text embedded in responses.
func (e *PipelineError) UserMessage() string {
	return e.Message
}

// NewPipelineError builds a tagged error wrapping an optional cause.
func NewPipelineError(kind ErrorKind, message string, cause error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: cause}
}
