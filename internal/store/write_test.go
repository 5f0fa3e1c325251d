package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

func TestCreateRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	note, err := s.CreateRecord(ctx, "alice", 5)
	require.NoError(t, err)
	assert.True(t, note.IsCreate())
	assert.Equal(t, ir.Number(5), note.After.Number)
	assert.Equal(t, "evt-1", note.EventID)

	rec, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, ir.Number(5), rec.Number)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, []ir.RecordID{}, rec.Friends)
	assert.True(t, rec.NumberLastUpdatedAt.IsZero(), "only the reconciler sets it")
}

func TestCreateRecord_Duplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.CreateRecord(ctx, "alice", 5)
	require.NoError(t, err)

	_, err = s.CreateRecord(ctx, "alice", 6)
	assert.ErrorIs(t, err, txn.ErrExists)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "failed create appends no change")
}

func TestSetNumber(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	created, err := s.CreateRecord(ctx, "alice", 5)
	require.NoError(t, err)

	note, err := s.SetNumber(ctx, "alice", 7)
	require.NoError(t, err)
	require.NotNil(t, note.Before)
	assert.Equal(t, ir.Number(5), note.Before.Number)
	assert.Equal(t, ir.Number(7), note.After.Number)
	assert.True(t, note.Timestamp.After(created.Timestamp))

	rec, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, ir.Number(7), rec.Number)
	assert.Equal(t, int64(2), rec.Version)
}

func TestSetNumber_SameValue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.CreateRecord(ctx, "alice", 5)
	require.NoError(t, err)

	note, err := s.SetNumber(ctx, "alice", 5)
	require.NoError(t, err)
	assert.Equal(t, note.Before.Number, note.After.Number)

	rec, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version, "unchanged number does not bump version")

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "every write still emits a change")
}

func TestSetNumber_Missing(t *testing.T) {
	s := createTestStore(t)
	_, err := s.SetNumber(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, txn.ErrNotFound)
}

func TestNextEventTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, base.Add(time.Second), nextEventTime(base.Add(time.Second), base))
	assert.Equal(t, base.Add(time.Nanosecond), nextEventTime(base, base))
	assert.Equal(t, base.Add(time.Nanosecond), nextEventTime(base.Add(-time.Hour), base))
}
