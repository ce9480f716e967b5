// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/TrialScout/services/matcher/observability"
)

// unknownClient is the shared bucket for requests with no identifying
// headers. Coarser than per-client limiting but a safe default: anonymous
// traffic collectively shares one window instead of bypassing the limiter.
const unknownClient = "unknown"

// ClientKey derives the rate-limit key for a request.
//
// Prefers the trusted proxy-supplied X-Real-IP header, falls back to the
// first X-Forwarded-For entry, else the unknown sentinel. Callers must not
// rely on this being spoof-proof across untrusted proxies; it is an
// admission-control key, not an identity.
func ClientKey(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return unknownClient
}

// Middleware creates a gin middleware enforcing a fixed-window limit per
// client+route composite key.
//
// Admitted requests carry the X-RateLimit-* headers; rejected requests get
// HTTP 429 with a Retry-After hint and a JSON error body. This is the only
// failure in the pipeline reported with a distinct HTTP status.
func Middleware(limiter *Limiter, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ClientKey(c) + "|" + c.FullPath()
		decision := limiter.Check(key, limit, window)

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.OK {
			slog.Warn("Rate limit exceeded",
				"key", key,
				"retry_after_s", decision.RetryAfterSeconds)
			observability.RecordRateLimitRejection()
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests. Please wait before trying again.",
			})
			return
		}

		c.Next()
	}
}
