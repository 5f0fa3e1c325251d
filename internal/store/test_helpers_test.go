package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/testutil"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithClock(testutil.NewDeterministicClock().Now),
		WithEventIDs(testutil.NewSequenceGenerator("evt")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seed creates records with the given numbers.
func seed(t *testing.T, s *Store, numbers map[ir.RecordID]ir.Number) {
	t.Helper()
	for id, n := range numbers {
		_, err := s.CreateRecord(context.Background(), id, n)
		require.NoError(t, err)
	}
}

// link inserts a friendship row directly.
func link(t *testing.T, s *Store, from, to ir.RecordID) {
	t.Helper()
	_, err := s.db.Exec(`INSERT INTO friendships (record_id, friend_id) VALUES (?, ?)`, string(from), string(to))
	require.NoError(t, err)
}
