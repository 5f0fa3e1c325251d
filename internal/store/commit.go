package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

// Commit validates rs and applies writes in one SQL transaction.
// Returns an error wrapping txn.ErrConflict if any read is stale; nothing is
// written in that case.
func (s *Store) Commit(ctx context.Context, rs *txn.ReadSet, writes []txn.Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback()

	v := view{tx}
	if err := rs.Validate(ctx, v); err != nil {
		return err
	}

	touched := make(map[ir.RecordID]bool)
	for _, w := range writes {
		changed, err := applyWrite(ctx, v, w)
		if err != nil {
			return fmt.Errorf("commit: %s %s: %w", w.Op, w.RecordID, err)
		}
		if changed {
			touched[w.RecordID] = true
		}
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE records SET version = version + 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("commit: bump version %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// applyWrite persists one write and reports whether the record changed.
func applyWrite(ctx context.Context, v view, w txn.Write) (bool, error) {
	switch w.Op {
	case txn.OpAddFriend:
		if w.FriendID == w.RecordID {
			return false, txn.ErrSelfLink
		}
		res, err := v.q.ExecContext(ctx, `
			INSERT OR IGNORE INTO friendships (record_id, friend_id) VALUES (?, ?)
		`, string(w.RecordID), string(w.FriendID))
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err

	case txn.OpRemoveFriend:
		res, err := v.q.ExecContext(ctx, `
			DELETE FROM friendships WHERE record_id = ? AND friend_id = ?
		`, string(w.RecordID), string(w.FriendID))
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err

	case txn.OpUpdate:
		rec, err := v.Get(ctx, w.RecordID)
		if err != nil {
			return false, err
		}
		previous := rec.Friends
		changed, err := txn.ApplyWrite(&rec, w)
		if err != nil || !changed {
			return false, err
		}
		if _, err := v.q.ExecContext(ctx, `
			UPDATE records SET number_last_updated_at = ? WHERE id = ?
		`, nullableNanos(rec.NumberLastUpdatedAt), string(rec.ID)); err != nil {
			return false, err
		}
		return true, syncFriends(ctx, v, rec.ID, previous, rec.Friends)

	default:
		return false, fmt.Errorf("unknown write op %d", int(w.Op))
	}
}

// syncFriends rewrites the friendship rows of id from previous to next.
func syncFriends(ctx context.Context, v view, id ir.RecordID, previous, next []ir.RecordID) error {
	for _, f := range previous {
		if !ir.ContainsID(next, f) {
			if _, err := v.q.ExecContext(ctx, `
				DELETE FROM friendships WHERE record_id = ? AND friend_id = ?
			`, string(id), string(f)); err != nil {
				return err
			}
		}
	}
	for _, f := range next {
		if !ir.ContainsID(previous, f) {
			if _, err := v.q.ExecContext(ctx, `
				INSERT OR IGNORE INTO friendships (record_id, friend_id) VALUES (?, ?)
			`, string(id), string(f)); err != nil {
				return err
			}
		}
	}
	return nil
}
