package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

// Backend is the full surface shared by the record stores.
type Backend interface {
	txn.Backend
	CreateRecord(ctx context.Context, id ir.RecordID, n ir.Number) (ir.Notification, error)
	SetNumber(ctx context.Context, id ir.RecordID, n ir.Number) (ir.Notification, error)
	ListRecords(ctx context.Context) ([]ir.Record, error)
	Pending(ctx context.Context, limit int) ([]ir.Change, error)
	Ack(ctx context.Context, seq int64) error
	Release(ctx context.Context, seq int64) error
	PendingCount(ctx context.Context) (int, error)
}

// OpenFunc opens a fresh, empty backend using the given clock and event IDs.
// Implementations register cleanup with t.
type OpenFunc func(t *testing.T, now func() time.Time, ids ir.EventIDGenerator) Backend

// RunBackendSuite runs the behavior every record store must share.
func RunBackendSuite(t *testing.T, open OpenFunc) {
	fresh := func(t *testing.T) Backend {
		return open(t, NewDeterministicClock().Now, NewSequenceGenerator("evt"))
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		b := fresh(t)
		ctx := context.Background()

		note, err := b.CreateRecord(ctx, "alice", 5)
		require.NoError(t, err)
		assert.True(t, note.IsCreate())
		assert.Equal(t, "evt-1", note.EventID)

		rec, err := b.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, ir.Number(5), rec.Number)
		assert.Equal(t, int64(1), rec.Version)
		assert.Equal(t, []ir.RecordID{}, rec.Friends)
		assert.True(t, rec.NumberLastUpdatedAt.IsZero())

		_, err = b.CreateRecord(ctx, "alice", 6)
		assert.ErrorIs(t, err, txn.ErrExists)
	})

	t.Run("GetMissing", func(t *testing.T) {
		b := fresh(t)
		_, err := b.Get(context.Background(), "ghost")
		assert.ErrorIs(t, err, txn.ErrNotFound)

		_, err = b.SetNumber(context.Background(), "ghost", 1)
		assert.ErrorIs(t, err, txn.ErrNotFound)
	})

	t.Run("SetNumberMovesGroups", func(t *testing.T) {
		b := fresh(t)
		ctx := context.Background()
		mustCreate(t, b, "a", 1)
		mustCreate(t, b, "b", 1)

		note, err := b.SetNumber(ctx, "a", 2)
		require.NoError(t, err)
		require.NotNil(t, note.Before)
		assert.Equal(t, ir.Number(1), note.Before.Number)

		one, err := b.FindByNumber(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []ir.RecordID{"b"}, ir.IDsOf(one, ""))

		two, err := b.FindByNumber(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []ir.RecordID{"a"}, ir.IDsOf(two, ""))

		rec, err := b.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Version)

		_, err = b.SetNumber(ctx, "a", 2)
		require.NoError(t, err)
		rec, err = b.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Version, "same number does not bump")
	})

	t.Run("NegativeNumbersGroupSeparately", func(t *testing.T) {
		b := fresh(t)
		ctx := context.Background()
		mustCreate(t, b, "neg", -1)
		mustCreate(t, b, "pos", 1)

		recs, err := b.FindByNumber(ctx, -1)
		require.NoError(t, err)
		assert.Equal(t, []ir.RecordID{"neg"}, ir.IDsOf(recs, ""))
	})

	t.Run("EventTimesStrictlyIncreasePerRecord", func(t *testing.T) {
		b := open(t, NewSteppingClock(Epoch, 0).Now, NewSequenceGenerator(""))
		ctx := context.Background()

		first, err := b.CreateRecord(ctx, "a", 1)
		require.NoError(t, err)
		second, err := b.SetNumber(ctx, "a", 2)
		require.NoError(t, err)
		third, err := b.SetNumber(ctx, "a", 2)
		require.NoError(t, err)

		assert.True(t, second.Timestamp.After(first.Timestamp))
		assert.True(t, third.Timestamp.After(second.Timestamp))
	})

	t.Run("CommitAppliesAndBumpsOnce", func(t *testing.T) {
		b := fresh(t)
		ctx := context.Background()
		mustCreate(t, b, "a", 1)
		mustCreate(t, b, "b", 1)
		mustCreate(t, b, "c", 1)

		ts := Epoch.Add(time.Hour)
		err := b.Commit(ctx, txn.NewReadSet(), []txn.Write{
			txn.Update("a", ts, []ir.RecordID{"b", "c"}),
			txn.AddFriend("c", "a"),
			txn.AddFriend("c", "b"),
			txn.RemoveFriend("b", "z"),
		})
		require.NoError(t, err)

		a, err := b.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []ir.RecordID{"b", "c"}, a.Friends)
		assert.True(t, ts.Equal(a.NumberLastUpdatedAt))
		assert.Equal(t, int64(2), a.Version)

		bRec, err := b.Get(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, int64(1), bRec.Version, "no-op removal does not bump")

		c, err := b.Get(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, []ir.RecordID{"a", "b"}, c.Friends)
		assert.Equal(t, int64(2), c.Version)

		linked, err := b.FindByFriend(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []ir.RecordID{"c"}, ir.IDsOf(linked, ""))
	})

	t.Run("CommitRejectsStaleReads", func(t *testing.T) {
		b := fresh(t)
		ctx := context.Background()
		mustCreate(t, b, "a", 1)
		mustCreate(t, b, "b", 2)

		runner := txn.NewRunner(b, txn.WithPolicy(txn.Policy{MaxAttempts: 1}))
		_, err := runner.Run(ctx, func(ctx context.Context, tx *txn.Tx) error {
			if _, err := tx.FindByNumber(ctx, 2); err != nil {
				return err
			}
			if _, err := b.SetNumber(ctx, "a", 2); err != nil {
				return err
			}
			tx.Apply(txn.AddFriend("b", "a"))
			return nil
		})
		assert.True(t, txn.IsConflict(err), "got %v", err)

		rec, err := b.Get(ctx, "b")
		require.NoError(t, err)
		assert.Empty(t, rec.Friends)
	})

	t.Run("CommitRejectsSelfLink", func(t *testing.T) {
		b := fresh(t)
		mustCreate(t, b, "a", 1)

		err := b.Commit(context.Background(), txn.NewReadSet(), []txn.Write{txn.AddFriend("a", "a")})
		assert.ErrorIs(t, err, txn.ErrSelfLink)
	})

	t.Run("Outbox", func(t *testing.T) {
		b := fresh(t)
		ctx := context.Background()
		mustCreate(t, b, "a", 1)
		_, err := b.SetNumber(ctx, "a", 2)
		require.NoError(t, err)
		mustCreate(t, b, "b", 3)

		pending, err := b.Pending(ctx, 2)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Less(t, pending[0].Seq, pending[1].Seq)
		assert.Equal(t, "evt-1", pending[0].Notification.EventID)
		assert.Nil(t, pending[0].Notification.Before)
		require.NotNil(t, pending[1].Notification.Before)
		assert.Equal(t, ir.Number(2), pending[1].Notification.After.Number)

		require.NoError(t, b.Ack(ctx, pending[0].Seq))
		require.NoError(t, b.Ack(ctx, pending[0].Seq))
		require.NoError(t, b.Release(ctx, pending[1].Seq))

		count, err := b.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		pending, err = b.Pending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, 1, pending[0].Attempts)
		assert.Equal(t, ir.RecordID("b"), pending[1].Notification.RecordID)
	})

	t.Run("ListRecordsSorted", func(t *testing.T) {
		b := fresh(t)
		ctx := context.Background()

		recs, err := b.ListRecords(ctx)
		require.NoError(t, err)
		assert.NotNil(t, recs)
		assert.Empty(t, recs)

		mustCreate(t, b, "b", 1)
		mustCreate(t, b, "a", 1)
		recs, err = b.ListRecords(ctx)
		require.NoError(t, err)
		assert.Equal(t, []ir.RecordID{"a", "b"}, []ir.RecordID{recs[0].ID, recs[1].ID})
	})
}

func mustCreate(t *testing.T, b Backend, id ir.RecordID, n ir.Number) {
	t.Helper()
	_, err := b.CreateRecord(context.Background(), id, n)
	require.NoError(t, err)
}
