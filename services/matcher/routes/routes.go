// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/TrialScout/services/matcher/handlers"
	"github.com/AleutianAI/TrialScout/services/matcher/pipeline"
	"github.com/AleutianAI/TrialScout/services/matcher/ratelimit"
	"github.com/AleutianAI/TrialScout/services/matcher/store"
)

// RateLimitConfig is the admission budget applied to the two pipeline
// entry points. Read-only routes are not limited.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func SetupRoutes(router *gin.Engine, p *pipeline.Pipeline, searches *store.SearchStore,
	limiter *ratelimit.Limiter, rl RateLimitConfig) {

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		admission := ratelimit.Middleware(limiter, rl.Limit, rl.Window)

		v1.POST("/trials/search", admission, handlers.SearchTrials(p))
		v1.GET("/searches/:searchId", handlers.GetSearch(searches))

		// Conversational tool-call boundary
		tools := v1.Group("/tools")
		{
			tools.POST("/match-trials", admission, handlers.MatchTrials(p))
		}
	}
}
