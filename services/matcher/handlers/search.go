// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers holds the gin handlers for the matcher HTTP surface.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/TrialScout/services/matcher/datatypes"
	"github.com/AleutianAI/TrialScout/services/matcher/pipeline"
)

// SearchTrials handles POST /v1/trials/search.
//
// Pipeline failures after admission are reported in-band with HTTP 200;
// only a malformed body earns a 400. The UI has exactly one place to
// render failure state, the error field.
func SearchTrials(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("rejected malformed search request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		slog.Info("Received trial search request",
			"condition", req.Condition, "age", req.Age, "location", req.Location)

		out := p.Run(c.Request.Context(), pipeline.Input{
			Mode:    datatypes.SearchModeForm,
			Profile: req.Profile(),
		})

		resp := datatypes.SearchResponse{
			Trials:   out.Trials,
			Count:    out.Count,
			SearchID: out.SearchID,
		}
		if out.Err != nil {
			resp.Error = out.Err.UserMessage()
		}
		c.JSON(http.StatusOK, resp)
	}
}
