package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/store"
	"github.com/roach88/friendsync/internal/testutil"
	"github.com/roach88/friendsync/internal/txn"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// setupTestStore creates a SQLite store with deterministic time and IDs.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithClock(testutil.NewDeterministicClock().Now),
		store.WithEventIDs(testutil.NewSequenceGenerator("")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newReconciler(b txn.Backend) *Reconciler {
	return New(b,
		WithLogger(quiet),
		WithPolicy(txn.Policy{MaxAttempts: 0, Backoff: time.Millisecond}),
	)
}

// drain handles and acks every pending change in outbox order.
func drain(t *testing.T, s *store.Store, r *Reconciler) {
	t.Helper()
	ctx := context.Background()
	for {
		pending, err := s.Pending(ctx, 100)
		require.NoError(t, err)
		if len(pending) == 0 {
			return
		}
		for _, c := range pending {
			_, err := r.Handle(ctx, c.Notification)
			require.NoError(t, err)
			require.NoError(t, s.Ack(ctx, c.Seq))
		}
	}
}

func friendsOf(t *testing.T, s *store.Store, id ir.RecordID) []ir.RecordID {
	t.Helper()
	rec, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return rec.Friends
}

func requireConsistent(t *testing.T, s *store.Store) {
	t.Helper()
	violations, err := Audit(context.Background(), s)
	require.NoError(t, err)
	require.Empty(t, violations)
}

func create(t *testing.T, s *store.Store, id ir.RecordID, n ir.Number) ir.Notification {
	t.Helper()
	note, err := s.CreateRecord(context.Background(), id, n)
	require.NoError(t, err)
	return note
}

func setNumber(t *testing.T, s *store.Store, id ir.RecordID, n ir.Number) ir.Notification {
	t.Helper()
	note, err := s.SetNumber(context.Background(), id, n)
	require.NoError(t, err)
	return note
}

func TestHandle_EndToEnd(t *testing.T) {
	s := setupTestStore(t)
	r := newReconciler(s)
	ctx := context.Background()

	create(t, s, "X", 5)
	create(t, s, "Y", 5)
	create(t, s, "Z", 7)
	drain(t, s, r)
	assert.Equal(t, []ir.RecordID{"Y"}, friendsOf(t, s, "X"))
	assert.Equal(t, []ir.RecordID{"X"}, friendsOf(t, s, "Y"))

	note := setNumber(t, s, "X", 7)
	out, err := r.Handle(ctx, note)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)

	assert.Equal(t, []ir.RecordID{"Z"}, friendsOf(t, s, "X"))
	assert.Equal(t, []ir.RecordID{"X"}, friendsOf(t, s, "Z"))
	assert.Equal(t, []ir.RecordID{}, friendsOf(t, s, "Y"))
	requireConsistent(t, s)

	before, err := s.ListRecords(ctx)
	require.NoError(t, err)

	out, err = r.Handle(ctx, note)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, out.Status)
	assert.Equal(t, 0, out.Writes)

	after, err := s.ListRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "redelivery changed nothing")
}

func TestHandle_DuplicateDeliveryIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	r := newReconciler(s)
	ctx := context.Background()

	create(t, s, "a", 1)
	create(t, s, "b", 1)
	drain(t, s, r)

	note := setNumber(t, s, "a", 2)
	first, err := r.Handle(ctx, note)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, first.Status)
	assert.Positive(t, first.Writes)

	for i := 0; i < 3; i++ {
		again, err := r.Handle(ctx, note)
		require.NoError(t, err)
		assert.Equal(t, StatusStale, again.Status)
		assert.Equal(t, 0, again.Writes)
	}
	requireConsistent(t, s)
}

func TestHandle_OutOfOrderDelivery(t *testing.T) {
	s := setupTestStore(t)
	r := newReconciler(s)
	ctx := context.Background()

	create(t, s, "a", 1)
	create(t, s, "p", 2)
	drain(t, s, r)

	n1 := setNumber(t, s, "a", 2)
	n2 := setNumber(t, s, "a", 1)
	n3 := setNumber(t, s, "a", 2)
	require.True(t, n3.Timestamp.After(n1.Timestamp))

	out, err := r.Handle(ctx, n3)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)

	state, err := s.Get(ctx, "a")
	require.NoError(t, err)

	for _, late := range []ir.Notification{n1, n2} {
		out, err := r.Handle(ctx, late)
		require.NoError(t, err)
		assert.Equal(t, StatusStale, out.Status, "event %s", late.EventID)
	}

	after, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, state, after)
	assert.Equal(t, []ir.RecordID{"p"}, after.Friends)
}

func TestHandle_DroppedIntermediateTransition(t *testing.T) {
	s := setupTestStore(t)
	r := newReconciler(s)
	ctx := context.Background()

	create(t, s, "a", 1)
	create(t, s, "b", 1)
	create(t, s, "c", 2)
	drain(t, s, r)

	n1 := setNumber(t, s, "a", 2)
	n2 := setNumber(t, s, "a", 3)

	out, err := r.Handle(ctx, n1)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, out.Status)

	out, err = r.Handle(ctx, n2)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)

	assert.Equal(t, []ir.RecordID{}, friendsOf(t, s, "a"))
	assert.Equal(t, []ir.RecordID{}, friendsOf(t, s, "b"), "link from group 1 swept")
	assert.Equal(t, []ir.RecordID{}, friendsOf(t, s, "c"))
	requireConsistent(t, s)
}

func TestHandle_Unchanged(t *testing.T) {
	s := setupTestStore(t)
	r := newReconciler(s)

	create(t, s, "a", 1)
	note := setNumber(t, s, "a", 1)

	before := counterValue(t, "unchanged")
	out, err := r.Handle(context.Background(), note)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: StatusUnchanged}, out)
	assert.Equal(t, before+1, counterValue(t, "unchanged"))
}

func counterValue(t *testing.T, outcome string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, reconcileTotal.WithLabelValues(outcome).Write(&m))
	return m.GetCounter().GetValue()
}

func TestHandle_UnknownRecord(t *testing.T) {
	s := setupTestStore(t)
	r := newReconciler(s)

	_, err := r.Handle(context.Background(), ir.Notification{
		RecordID:  "ghost",
		After:     ir.Snapshot{Number: 1},
		Timestamp: time.Now(),
	})
	assert.ErrorIs(t, err, txn.ErrNotFound)
}

// interleaveBackend runs hook once, just before the first commit.
type interleaveBackend struct {
	txn.Backend
	once sync.Once
	hook func()
}

func (b *interleaveBackend) Commit(ctx context.Context, rs *txn.ReadSet, writes []txn.Write) error {
	b.once.Do(b.hook)
	return b.Backend.Commit(ctx, rs, writes)
}

func TestHandle_ConcurrentConvergentTransition(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	create(t, s, "A", 1)
	create(t, s, "B", 1)
	drain(t, s, newReconciler(s))

	moveA := setNumber(t, s, "A", 2)

	// C is created and reconciled between A's reads and A's commit.
	other := newReconciler(s)
	interleaved := &interleaveBackend{Backend: s}
	interleaved.hook = func() {
		createC := create(t, s, "C", 2)
		out, err := other.Handle(ctx, createC)
		require.NoError(t, err)
		require.Equal(t, StatusApplied, out.Status)
	}

	out, err := newReconciler(interleaved).Handle(ctx, moveA)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, 2, out.Attempts, "first commit conflicts with C")

	assert.Equal(t, []ir.RecordID{"C"}, friendsOf(t, s, "A"))
	assert.Equal(t, []ir.RecordID{"A"}, friendsOf(t, s, "C"))
	assert.Equal(t, []ir.RecordID{}, friendsOf(t, s, "B"))
	requireConsistent(t, s)
}

func TestHandle_RetryExhaustion(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	create(t, s, "a", 1)
	create(t, s, "b", 2)
	note := setNumber(t, s, "a", 2)

	churn := &churnBackend{Backend: s, store: s}
	r := New(churn, WithLogger(quiet), WithPolicy(txn.Policy{MaxAttempts: 3}))

	out, err := r.Handle(ctx, note)
	require.Error(t, err)
	assert.True(t, txn.IsConflict(err))
	var exhausted *txn.RetryExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, out.Attempts)

	assert.Equal(t, []ir.RecordID{}, friendsOf(t, s, "b"), "no partial writes")
}

// churnBackend moves b between groups before every commit.
type churnBackend struct {
	txn.Backend
	store *store.Store
	flip  bool
}

func (b *churnBackend) Commit(ctx context.Context, rs *txn.ReadSet, writes []txn.Write) error {
	b.flip = !b.flip
	n := ir.Number(2)
	if b.flip {
		n = 3
	}
	if _, err := b.store.SetNumber(ctx, "b", n); err != nil {
		return err
	}
	return b.Backend.Commit(ctx, rs, writes)
}

func TestHandle_ConcurrentShuffledDeliveryConverges(t *testing.T) {
	s := setupTestStore(t)
	r := newReconciler(s)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	ids := []ir.RecordID{"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7"}
	var notes []ir.Notification
	for _, id := range ids {
		notes = append(notes, create(t, s, id, ir.Number(rng.Intn(3))))
	}
	for i := 0; i < 40; i++ {
		id := ids[rng.Intn(len(ids))]
		notes = append(notes, setNumber(t, s, id, ir.Number(rng.Intn(3))))
	}
	rng.Shuffle(len(notes), func(i, j int) { notes[i], notes[j] = notes[j], notes[i] })

	work := make(chan ir.Notification)
	var wg sync.WaitGroup
	errs := make(chan error, len(notes))
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range work {
				if _, err := r.Handle(ctx, n); err != nil {
					errs <- err
				}
			}
		}()
	}
	for _, n := range notes {
		work <- n
	}
	close(work)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	requireConsistent(t, s)
}
