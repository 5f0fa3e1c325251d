package boltstore

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

// CreateRecord inserts a new record with an empty friend set and appends a
// creation change, atomically. Returns txn.ErrExists if the ID is taken.
func (s *Store) CreateRecord(_ context.Context, id ir.RecordID, n ir.Number) (ir.Notification, error) {
	var note ir.Notification
	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		if records.Get([]byte(id)) != nil {
			return fmt.Errorf("create record %s: %w", id, txn.ErrExists)
		}

		eventTime := nextEventTime(s.now(), ir.NeverUpdated)
		rec := ir.Record{ID: id, Number: n, Friends: []ir.RecordID{}, Version: 1}
		if err := putRecord(tx, rec, toNanos(eventTime)); err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		if err := tx.Bucket(bucketByNumber).Put(numberKey(n, id), nil); err != nil {
			return fmt.Errorf("create record: index: %w", err)
		}

		note = ir.Notification{
			RecordID:  id,
			After:     ir.Snapshot{Number: n},
			Timestamp: eventTime,
			EventID:   s.events.Generate(),
		}
		return appendChange(tx, note)
	})
	if err != nil {
		return ir.Notification{}, err
	}
	return note, nil
}

// SetNumber updates a record's number and appends a change, atomically.
// A change is appended even when the number is unchanged; the version is
// bumped only when it changes.
func (s *Store) SetNumber(_ context.Context, id ir.RecordID, n ir.Number) (ir.Notification, error) {
	var note ir.Notification
	err := s.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRecords).Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("set number %s: %w", id, txn.ErrNotFound)
		}
		rec, stored, err := decodeRecord([]byte(id), raw)
		if err != nil {
			return err
		}

		before := rec.Number
		eventTime := nextEventTime(s.now(), fromNanos(stored.WrittenAt))
		if before != n {
			index := tx.Bucket(bucketByNumber)
			if err := index.Delete(numberKey(before, id)); err != nil {
				return fmt.Errorf("set number: unindex: %w", err)
			}
			if err := index.Put(numberKey(n, id), nil); err != nil {
				return fmt.Errorf("set number: index: %w", err)
			}
			rec.Number = n
			rec.Version++
		}
		if err := putRecord(tx, rec, toNanos(eventTime)); err != nil {
			return fmt.Errorf("set number: %w", err)
		}

		note = ir.Notification{
			RecordID:  id,
			Before:    &ir.Snapshot{Number: before},
			After:     ir.Snapshot{Number: n},
			Timestamp: eventTime,
			EventID:   s.events.Generate(),
		}
		return appendChange(tx, note)
	})
	if err != nil {
		return ir.Notification{}, err
	}
	return note, nil
}

func putRecord(tx *bolt.Tx, rec ir.Record, writtenAt int64) error {
	val, err := encodeRecord(rec, writtenAt)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return tx.Bucket(bucketRecords).Put([]byte(rec.ID), val)
}

func appendChange(tx *bolt.Tx, n ir.Notification) error {
	changes := tx.Bucket(bucketChanges)
	seq, err := changes.NextSequence()
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	v := changeValue{
		EventID:   n.EventID,
		RecordID:  string(n.RecordID),
		After:     int64(n.After.Number),
		EventTime: toNanos(n.Timestamp),
	}
	if n.Before != nil {
		v.HasBefore = true
		v.Before = int64(n.Before.Number)
	}
	val, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("append change: encode: %w", err)
	}
	return changes.Put(seqKey(seq), val)
}
