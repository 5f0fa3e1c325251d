package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/roach88/friendsync/internal/ir"
)

// Pending returns up to limit unacknowledged changes in outbox order.
func (s *Store) Pending(_ context.Context, limit int) ([]ir.Change, error) {
	changes := []ir.Change{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChanges).Cursor()
		for k, raw := c.First(); k != nil && len(changes) < limit; k, raw = c.Next() {
			var v changeValue
			if err := msgpack.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("decode change: %w", err)
			}
			if v.Acked {
				continue
			}
			changes = append(changes, v.change(binary.BigEndian.Uint64(k)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pending changes: %w", err)
	}
	return changes, nil
}

// Ack marks a change delivered. Acking twice is harmless.
func (s *Store) Ack(_ context.Context, seq int64) error {
	err := s.updateChange(seq, func(v *changeValue) { v.Acked = true })
	if err != nil {
		return fmt.Errorf("ack change %d: %w", seq, err)
	}
	return nil
}

// Release returns a change to the outbox after a failed delivery attempt.
func (s *Store) Release(_ context.Context, seq int64) error {
	err := s.updateChange(seq, func(v *changeValue) { v.Attempts++ })
	if err != nil {
		return fmt.Errorf("release change %d: %w", seq, err)
	}
	return nil
}

// PendingCount returns the number of unacknowledged changes.
func (s *Store) PendingCount(_ context.Context) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChanges).ForEach(func(_, raw []byte) error {
			var v changeValue
			if err := msgpack.Unmarshal(raw, &v); err != nil {
				return err
			}
			if !v.Acked {
				count++
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("count pending changes: %w", err)
	}
	return count, nil
}

func (s *Store) updateChange(seq int64, fn func(*changeValue)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		changes := tx.Bucket(bucketChanges)
		key := seqKey(uint64(seq))
		raw := changes.Get(key)
		if raw == nil {
			return nil
		}
		var v changeValue
		if err := msgpack.Unmarshal(raw, &v); err != nil {
			return err
		}
		if v.Acked {
			return nil
		}
		fn(&v)
		val, err := msgpack.Marshal(v)
		if err != nil {
			return err
		}
		return changes.Put(key, val)
	})
}
