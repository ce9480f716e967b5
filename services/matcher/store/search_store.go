// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists completed searches for later retrieval by
// opaque identifier. Records are write-once share links, not a query
// index: there is no listing or lookup by profile.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	badgerstore "github.com/AleutianAI/TrialScout/pkg/storage/badger"
	"github.com/AleutianAI/TrialScout/services/matcher/datatypes"
)

const searchKeyPrefix = "search/"

// SearchStore records completed searches in BadgerDB under generated
// identifiers.
type SearchStore struct {
	db  *badgerstore.DB
	now func() time.Time
}

// StoreOption configures a SearchStore.
type StoreOption func(*SearchStore)

// WithClock injects a clock (used by tests).
func WithClock(now func() time.Time) StoreOption {
	return func(s *SearchStore) { s.now = now }
}

// NewSearchStore wraps db with search persistence.
func NewSearchStore(db *badgerstore.DB, opts ...StoreOption) *SearchStore {
	s := &SearchStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save assigns record a fresh identifier and creation timestamp, writes
// it, and returns the identifier. Records are never updated afterward.
func (s *SearchStore) Save(ctx context.Context, record datatypes.SearchRecord) (string, error) {
	record.ID = uuid.NewString()
	record.CreatedAt = s.now().UTC()

	raw, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal search record: %w", err)
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(searchKeyPrefix+record.ID), raw)
	})
	if err != nil {
		return "", fmt.Errorf("failed to persist search record: %w", err)
	}
	return record.ID, nil
}

// Load retrieves a search record by identifier. An unknown identifier
// is reported through the boolean, not as an error.
func (s *SearchStore) Load(ctx context.Context, id string) (datatypes.SearchRecord, bool, error) {
	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(searchKeyPrefix + id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.SearchRecord{}, false, nil
	}
	if err != nil {
		return datatypes.SearchRecord{}, false, fmt.Errorf("failed to read search record: %w", err)
	}

	var record datatypes.SearchRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return datatypes.SearchRecord{}, false, fmt.Errorf("failed to decode search record %s: %w", id, err)
	}
	return record, true, nil
}
