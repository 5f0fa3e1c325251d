package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

// CreateRecord inserts a new record with an empty friend set and appends a
// creation change to the outbox, atomically.
// Returns txn.ErrExists if the ID is taken.
func (s *Store) CreateRecord(ctx context.Context, id ir.RecordID, n ir.Number) (ir.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Notification{}, fmt.Errorf("create record: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	eventTime := nextEventTime(s.now(), ir.NeverUpdated)
	result, err := tx.ExecContext(ctx, `
		INSERT INTO records (id, number, number_last_updated_at, number_written_at, version)
		VALUES (?, ?, NULL, ?, 1)
		ON CONFLICT(id) DO NOTHING
	`, string(id), int64(n), toNanos(eventTime))
	if err != nil {
		return ir.Notification{}, fmt.Errorf("create record: insert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return ir.Notification{}, fmt.Errorf("create record: rows affected: %w", err)
	}
	if affected == 0 {
		return ir.Notification{}, fmt.Errorf("create record %s: %w", id, txn.ErrExists)
	}

	note := ir.Notification{
		RecordID:  id,
		After:     ir.Snapshot{Number: n},
		Timestamp: eventTime,
		EventID:   s.events.Generate(),
	}
	if err := appendChange(ctx, tx, note); err != nil {
		return ir.Notification{}, fmt.Errorf("create record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ir.Notification{}, fmt.Errorf("create record: commit: %w", err)
	}
	return note, nil
}

// SetNumber is the external writer for the watched field. It updates the
// record's number and appends a change to the outbox, atomically.
//
// A change is appended even when the number is unchanged, as any update
// trigger would fire; the reconciler's trigger-level filter discards it.
// The version is bumped only when the number actually changes.
func (s *Store) SetNumber(ctx context.Context, id ir.RecordID, n ir.Number) (ir.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Notification{}, fmt.Errorf("set number: begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		before    ir.Number
		writtenAt int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT number, number_written_at FROM records WHERE id = ?
	`, string(id)).Scan(&before, &writtenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Notification{}, fmt.Errorf("set number %s: %w", id, txn.ErrNotFound)
	}
	if err != nil {
		return ir.Notification{}, fmt.Errorf("set number: select: %w", err)
	}

	eventTime := nextEventTime(s.now(), fromNanos(writtenAt))
	bump := 0
	if before != n {
		bump = 1
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE records
		SET number = ?, number_written_at = ?, version = version + ?
		WHERE id = ?
	`, int64(n), toNanos(eventTime), bump, string(id))
	if err != nil {
		return ir.Notification{}, fmt.Errorf("set number: update: %w", err)
	}

	note := ir.Notification{
		RecordID:  id,
		Before:    &ir.Snapshot{Number: before},
		After:     ir.Snapshot{Number: n},
		Timestamp: eventTime,
		EventID:   s.events.Generate(),
	}
	if err := appendChange(ctx, tx, note); err != nil {
		return ir.Notification{}, fmt.Errorf("set number: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ir.Notification{}, fmt.Errorf("set number: commit: %w", err)
	}
	return note, nil
}

func appendChange(ctx context.Context, tx *sql.Tx, n ir.Notification) error {
	var before sql.NullInt64
	if n.Before != nil {
		before = sql.NullInt64{Int64: int64(n.Before.Number), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO changes (event_id, record_id, before_number, after_number, event_time)
		VALUES (?, ?, ?, ?, ?)
	`, n.EventID, string(n.RecordID), before, int64(n.After.Number), toNanos(n.Timestamp))
	if err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	return nil
}
