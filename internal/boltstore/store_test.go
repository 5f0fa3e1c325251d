package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/testutil"
)

func TestBackendSuite(t *testing.T) {
	testutil.RunBackendSuite(t, func(t *testing.T, now func() time.Time, ids ir.EventIDGenerator) testutil.Backend {
		s, err := Open(filepath.Join(t.TempDir(), "suite.bolt"), WithClock(now), WithEventIDs(ids))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bolt")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.CreateRecord(ctx, "a", 7)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, ir.Number(7), rec.Number)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNumberIndex_TracksSetNumber(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "data.bolt"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.CreateRecord(ctx, "a", 1)
	require.NoError(t, err)
	_, err = s.SetNumber(ctx, "a", 2)
	require.NoError(t, err)

	var keys int
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketByNumber).ForEach(func(_, _ []byte) error {
			keys++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, keys, "stale index entry removed")
}

func TestNumberKey_Ordering(t *testing.T) {
	neg := numberKey(-5, "a")
	zero := numberKey(0, "a")
	pos := numberKey(5, "a")

	assert.Less(t, string(neg), string(zero))
	assert.Less(t, string(zero), string(pos))
}

func TestNextEventTime(t *testing.T) {
	base := testutil.Epoch
	assert.Equal(t, base.Add(time.Nanosecond), nextEventTime(base, base))
	assert.Equal(t, base.Add(time.Minute), nextEventTime(base.Add(time.Minute), base))
}
