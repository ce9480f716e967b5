// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/TrialScout/services/matcher/datatypes"
	"github.com/AleutianAI/TrialScout/services/matcher/pipeline"
)

// MatchTrials handles POST /v1/tools/match-trials, the conversational
// tool-call boundary. The caller is a model, not a person: this is the
// one entry point where synonym expansion arrives populated, and the
// echoed patient profile lets the model ground its follow-up turns.
func MatchTrials(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.MatchToolRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("rejected malformed match-trials call", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		slog.Info("Received match-trials tool call",
			"condition", req.Condition, "synonyms", len(req.Synonyms), "age", req.Age)

		out := p.Run(c.Request.Context(), pipeline.Input{
			Mode:     datatypes.SearchModeChat,
			Profile:  req.Profile(),
			Synonyms: req.Synonyms,
		})

		resp := datatypes.MatchToolResponse{
			Trials: out.Trials,
			Count:  out.Count,
		}
		if out.Err != nil {
			resp.Error = out.Err.UserMessage()
		}
		if out.Count > 0 {
			profile := req.Profile()
			resp.PatientProfile = &profile
		}
		c.JSON(http.StatusOK, resp)
	}
}
