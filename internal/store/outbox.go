package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/friendsync/internal/ir"
)

// Pending returns up to limit unacknowledged changes in outbox order.
func (s *Store) Pending(ctx context.Context, limit int) ([]ir.Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, event_id, record_id, before_number, after_number, event_time, attempts
		FROM changes
		WHERE acked_at IS NULL
		ORDER BY seq ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending changes: %w", err)
	}
	defer rows.Close()

	changes := []ir.Change{}
	for rows.Next() {
		var (
			c         ir.Change
			before    sql.NullInt64
			eventTime int64
		)
		if err := rows.Scan(
			&c.Seq, &c.Notification.EventID, &c.Notification.RecordID,
			&before, &c.Notification.After.Number, &eventTime, &c.Attempts,
		); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if before.Valid {
			c.Notification.Before = &ir.Snapshot{Number: ir.Number(before.Int64)}
		}
		c.Notification.Timestamp = fromNanos(eventTime)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return changes, nil
}

// Ack marks a change delivered. Acking twice is harmless.
func (s *Store) Ack(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE changes SET acked_at = ? WHERE seq = ? AND acked_at IS NULL
	`, toNanos(s.now()), seq)
	if err != nil {
		return fmt.Errorf("ack change %d: %w", seq, err)
	}
	return nil
}

// Release records a failed delivery attempt; the change stays pending.
func (s *Store) Release(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE changes SET attempts = attempts + 1 WHERE seq = ?
	`, seq)
	if err != nil {
		return fmt.Errorf("release change %d: %w", seq, err)
	}
	return nil
}

// PendingCount returns the number of unacknowledged changes.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM changes WHERE acked_at IS NULL
	`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}
