package boltstore

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

// Commit validates rs and applies writes in one bolt update transaction.
// Returns an error wrapping txn.ErrConflict if any read is stale.
func (s *Store) Commit(ctx context.Context, rs *txn.ReadSet, writes []txn.Write) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		v := view{tx}
		if err := rs.Validate(ctx, v); err != nil {
			return err
		}

		// Apply in memory first so a record written twice is stored and
		// versioned once.
		staged := make(map[ir.RecordID]*ir.Record)
		var order []ir.RecordID
		changed := make(map[ir.RecordID]bool)
		for _, w := range writes {
			rec, ok := staged[w.RecordID]
			if !ok {
				r, err := v.Get(ctx, w.RecordID)
				if err != nil {
					return fmt.Errorf("commit: %s %s: %w", w.Op, w.RecordID, err)
				}
				rec = &r
				staged[w.RecordID] = rec
				order = append(order, w.RecordID)
			}
			ok, err := txn.ApplyWrite(rec, w)
			if err != nil {
				return fmt.Errorf("commit: %w", err)
			}
			if ok {
				changed[w.RecordID] = true
			}
		}

		records := tx.Bucket(bucketRecords)
		for _, id := range order {
			if !changed[id] {
				continue
			}
			_, stored, err := decodeRecord([]byte(id), records.Get([]byte(id)))
			if err != nil {
				return err
			}
			rec := staged[id]
			rec.Version++
			if err := putRecord(tx, *rec, stored.WrittenAt); err != nil {
				return fmt.Errorf("commit: %w", err)
			}
		}
		return nil
	})
}
