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

	"github.com/AleutianAI/TrialScout/services/matcher/store"
)

// GetSearch handles GET /v1/searches/:searchId. Searches are retrieved
// by opaque identifier only; an unknown identifier is a 404.
func GetSearch(searches *store.SearchStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("searchId")

		record, found, err := searches.Load(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to load search record", "searchId", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load search"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "search not found"})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}
