// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	badgerstore "github.com/AleutianAI/TrialScout/pkg/storage/badger"
	"github.com/AleutianAI/TrialScout/services/matcher/datatypes"
)

func newTestStore(t *testing.T) *SearchStore {
	t.Helper()
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return NewSearchStore(db, WithClock(func() time.Time { return fixed }))
}

func TestSearchStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := datatypes.SearchRecord{
		Mode:      datatypes.SearchModeForm,
		Condition: "systemic lupus erythematosus",
		Age:       42,
		Location:  "Boston",
		Results: []datatypes.ScoredTrial{
			{
				TrialRecord: datatypes.TrialRecord{NCTID: "NCT1", Title: "Study"},
				MatchScore:  80,
				MatchLabel:  datatypes.MatchLabelExcellent,
				MatchReason: "Strong fit.",
				URL:         datatypes.RegistryURL("NCT1"),
			},
		},
	}

	id, err := s.Save(ctx, record)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, found, err := s.Load(ctx, id)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, id, got.ID)
	assert.False(t, got.CreatedAt.IsZero(), "creation timestamp should be assigned")
	assert.Equal(t, record.Mode, got.Mode)
	assert.Equal(t, record.Condition, got.Condition)
	assert.Equal(t, record.Age, got.Age)
	assert.Equal(t, record.Results, got.Results)
}

func TestSearchStore_UnknownIDIsAbsent(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.Load(context.Background(), "does-not-exist")
	require.NoError(t, err, "unknown id must not be an error")
	assert.False(t, found)
}

func TestSearchStore_SavesAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Save(ctx, datatypes.SearchRecord{Mode: datatypes.SearchModeForm, Condition: "a"})
	require.NoError(t, err)
	id2, err := s.Save(ctx, datatypes.SearchRecord{Mode: datatypes.SearchModeChat, Condition: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2, "each save gets a fresh identifier")

	got, found, err := s.Load(ctx, id2)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", got.Condition)
}
