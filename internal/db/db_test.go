package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "history", "qtrace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestRecordAndListTraces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &TraceRecord{
		Deployment: "QmDep",
		QueryID:    "q-1",
		Block:      17000000,
		Elapsed:    200 * time.Millisecond,
		QueryTime:  120 * time.Millisecond,
		OtherTime:  80 * time.Millisecond,
		CreatedAt:  base,
	}
	second := &TraceRecord{
		Deployment:   "QmDep",
		QueryID:      "q-2",
		Block:        17000001,
		Elapsed:      100 * time.Millisecond,
		QueryTime:    150 * time.Millisecond,
		Inconsistent: true,
		CreatedAt:    base.Add(time.Minute),
	}
	other := &TraceRecord{Deployment: "QmOther", QueryID: "q-3", CreatedAt: base}

	for _, rec := range []*TraceRecord{first, second, other} {
		require.NoError(t, db.RecordTrace(ctx, rec))
		assert.NotEmpty(t, rec.ID)
	}

	records, err := db.RecentTraces(ctx, "QmDep", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "q-2", records[0].QueryID)
	assert.True(t, records[0].Inconsistent)
	assert.Equal(t, 150*time.Millisecond, records[0].QueryTime)

	assert.Equal(t, "q-1", records[1].QueryID)
	assert.Equal(t, first.ID, records[1].ID)
	assert.Equal(t, uint64(17000000), records[1].Block)
	assert.Equal(t, 200*time.Millisecond, records[1].Elapsed)
	assert.Equal(t, 80*time.Millisecond, records[1].OtherTime)
	assert.False(t, records[1].Inconsistent)
	assert.True(t, base.Equal(records[1].CreatedAt))

	records, err = db.RecentTraces(ctx, "QmDep", 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecordFillsDefaults(t *testing.T) {
	db := openTestDB(t)

	rec := &TraceRecord{Deployment: "QmDep", QueryID: "q"}
	require.NoError(t, db.RecordTrace(context.Background(), rec))

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Migrate())
}
