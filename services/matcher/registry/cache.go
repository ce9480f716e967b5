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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/AleutianAI/TrialScout/pkg/storage/badger"
	"github.com/AleutianAI/TrialScout/services/matcher/datatypes"
	"github.com/AleutianAI/TrialScout/services/matcher/observability"
)

// DefaultEligibilityTTL bounds how long cached eligibility detail is
// served before being re-fetched from the registry.
const DefaultEligibilityTTL = 7 * 24 * time.Hour

const eligibilityKeyPrefix = "eligibility/"

// EligibilityCache stores per-trial eligibility detail in BadgerDB,
// keyed by NCT identifier. Entries carry their fetch timestamp and are
// treated as misses once older than the TTL.
type EligibilityCache struct {
	db  *badgerstore.DB
	ttl time.Duration
	now func() time.Time
}

// CacheOption configures an EligibilityCache.
type CacheOption func(*EligibilityCache)

// WithCacheClock injects a clock (used by tests to age entries).
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *EligibilityCache) { c.now = now }
}

// NewEligibilityCache wraps db with TTL-based eligibility caching. A
// non-positive ttl falls back to DefaultEligibilityTTL.
func NewEligibilityCache(db *badgerstore.DB, ttl time.Duration, opts ...CacheOption) *EligibilityCache {
	if ttl <= 0 {
		ttl = DefaultEligibilityTTL
	}
	c := &EligibilityCache{db: db, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks up the cached eligibility entry for nctID.
//
// The boolean reports a usable hit. Absent keys, expired entries, and
// undecodable values all come back (zero, false, nil): the caller's
// recovery is identical for each, a fresh registry fetch. Only storage
// failures surface as errors.
func (c *EligibilityCache) Get(ctx context.Context, nctID string) (datatypes.EligibilityEntry, bool, error) {
	var raw []byte
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(eligibilityKeyPrefix + nctID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		observability.RecordCacheOp(observability.CacheMiss)
		return datatypes.EligibilityEntry{}, false, nil
	}
	if err != nil {
		observability.RecordCacheOp(observability.CacheError)
		return datatypes.EligibilityEntry{}, false, fmt.Errorf("failed to read eligibility cache: %w", err)
	}

	var entry datatypes.EligibilityEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt value is indistinguishable from a miss for the caller.
		observability.RecordCacheOp(observability.CacheMiss)
		return datatypes.EligibilityEntry{}, false, nil
	}

	if c.now().Sub(entry.FetchedAt) > c.ttl {
		observability.RecordCacheOp(observability.CacheExpired)
		return datatypes.EligibilityEntry{}, false, nil
	}

	observability.RecordCacheOp(observability.CacheHit)
	return entry, true, nil
}

// Upsert writes entry under its NCT identifier, replacing any prior
// value in a single transaction.
func (c *EligibilityCache) Upsert(ctx context.Context, entry datatypes.EligibilityEntry) error {
	if entry.NCTID == "" {
		return fmt.Errorf("eligibility entry missing nctId")
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal eligibility entry: %w", err)
	}
	err = c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(eligibilityKeyPrefix+entry.NCTID), raw)
	})
	if err != nil {
		observability.RecordCacheOp(observability.CacheError)
		return fmt.Errorf("failed to write eligibility cache: %w", err)
	}
	return nil
}
