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

func TestCommit_AppliesWritesAndBumpsOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s, map[ir.RecordID]ir.Number{"a": 1, "b": 1, "c": 1})

	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	err := s.Commit(ctx, txn.NewReadSet(), []txn.Write{
		txn.Update("a", ts, []ir.RecordID{"b", "c"}),
		txn.AddFriend("b", "a"),
		txn.AddFriend("c", "a"),
		txn.AddFriend("c", "b"),
	})
	require.NoError(t, err)

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []ir.RecordID{"b", "c"}, a.Friends)
	assert.True(t, ts.Equal(a.NumberLastUpdatedAt))
	assert.Equal(t, int64(2), a.Version)

	c, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []ir.RecordID{"a", "b"}, c.Friends)
	assert.Equal(t, int64(2), c.Version, "two writes to c bump once")
}

func TestCommit_NoOpWritesDoNotBump(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s, map[ir.RecordID]ir.Number{"a": 1, "b": 1})

	err := s.Commit(ctx, txn.NewReadSet(), []txn.Write{
		txn.RemoveFriend("a", "b"),
	})
	require.NoError(t, err)

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Version)
}

func TestCommit_UpdateReplacesFriendRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s, map[ir.RecordID]ir.Number{"a": 1, "b": 1, "c": 2})
	link(t, s, "a", "b")

	err := s.Commit(ctx, txn.NewReadSet(), []txn.Write{
		txn.Update("a", time.Unix(100, 0).UTC(), []ir.RecordID{"c"}),
	})
	require.NoError(t, err)

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []ir.RecordID{"c"}, a.Friends)
}

func TestCommit_ConflictWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s, map[ir.RecordID]ir.Number{"a": 1, "b": 2})

	var got []txn.Write
	runner := txn.NewRunner(s, txn.WithPolicy(txn.Policy{MaxAttempts: 1}))
	_, err := runner.Run(ctx, func(ctx context.Context, tx *txn.Tx) error {
		if _, err := tx.FindByNumber(ctx, 2); err != nil {
			return err
		}
		// concurrent external write joins group 2 between read and commit
		_, err := s.SetNumber(ctx, "a", 2)
		require.NoError(t, err)

		tx.Apply(txn.AddFriend("b", "a"))
		got = tx.Writes()
		return nil
	})

	require.Error(t, err)
	assert.True(t, txn.IsConflict(err))
	require.Len(t, got, 1)

	b, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, b.Friends, "conflicting commit applied nothing")
}

func TestCommit_RejectsSelfLink(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seed(t, s, map[ir.RecordID]ir.Number{"a": 1})

	err := s.Commit(ctx, txn.NewReadSet(), []txn.Write{txn.AddFriend("a", "a")})
	assert.ErrorIs(t, err, txn.ErrSelfLink)

	err = s.Commit(ctx, txn.NewReadSet(), []txn.Write{
		txn.Update("a", time.Unix(1, 0), []ir.RecordID{"a"}),
	})
	assert.ErrorIs(t, err, txn.ErrSelfLink)
}

func TestCommit_MissingRecord(t *testing.T) {
	s := createTestStore(t)
	err := s.Commit(context.Background(), txn.NewReadSet(), []txn.Write{
		txn.Update("ghost", time.Unix(1, 0), nil),
	})
	assert.ErrorIs(t, err, txn.ErrNotFound)
}
