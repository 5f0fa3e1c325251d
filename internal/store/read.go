package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

// view implements txn.Reader over a *sql.DB or an open *sql.Tx.
//
// With a single pooled connection, every result set must be closed before
// the next statement runs; helpers below drain rows before returning.
type view struct {
	q querier
}

// Get returns the record with the given ID, or txn.ErrNotFound.
func (s *Store) Get(ctx context.Context, id ir.RecordID) (ir.Record, error) {
	return view{s.db}.Get(ctx, id)
}

// FindByNumber returns all records whose number equals n, ordered by ID.
func (s *Store) FindByNumber(ctx context.Context, n ir.Number) ([]ir.Record, error) {
	return view{s.db}.FindByNumber(ctx, n)
}

// FindByFriend returns all records whose friends contain id, ordered by ID.
func (s *Store) FindByFriend(ctx context.Context, id ir.RecordID) ([]ir.Record, error) {
	return view{s.db}.FindByFriend(ctx, id)
}

// ListRecords returns every record ordered by ID.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListRecords(ctx context.Context) ([]ir.Record, error) {
	v := view{s.db}
	recs, err := v.queryRecords(ctx, `
		SELECT id, number, number_last_updated_at, version
		FROM records
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}

func (v view) Get(ctx context.Context, id ir.RecordID) (ir.Record, error) {
	var (
		rec         ir.Record
		lastUpdated sql.NullInt64
	)
	err := v.q.QueryRowContext(ctx, `
		SELECT id, number, number_last_updated_at, version
		FROM records
		WHERE id = ?
	`, string(id)).Scan(&rec.ID, &rec.Number, &lastUpdated, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, txn.ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	rec.NumberLastUpdatedAt = timeFromNull(lastUpdated)

	recs := []ir.Record{rec}
	if err := v.attachFriends(ctx, recs); err != nil {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return recs[0], nil
}

func (v view) FindByNumber(ctx context.Context, n ir.Number) ([]ir.Record, error) {
	recs, err := v.queryRecords(ctx, `
		SELECT id, number, number_last_updated_at, version
		FROM records
		WHERE number = ?
		ORDER BY id COLLATE BINARY ASC
	`, int64(n))
	if err != nil {
		return nil, fmt.Errorf("find by number %d: %w", n, err)
	}
	return recs, nil
}

func (v view) FindByFriend(ctx context.Context, id ir.RecordID) ([]ir.Record, error) {
	recs, err := v.queryRecords(ctx, `
		SELECT r.id, r.number, r.number_last_updated_at, r.version
		FROM records r
		JOIN friendships f ON f.record_id = r.id
		WHERE f.friend_id = ?
		ORDER BY r.id COLLATE BINARY ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("find by friend %s: %w", id, err)
	}
	return recs, nil
}

// queryRecords runs a record query and attaches friend sets.
func (v view) queryRecords(ctx context.Context, query string, args ...any) ([]ir.Record, error) {
	recs, err := v.scanRecords(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := v.attachFriends(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (v view) scanRecords(ctx context.Context, query string, args ...any) ([]ir.Record, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	recs := []ir.Record{}
	for rows.Next() {
		var (
			rec         ir.Record
			lastUpdated sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Number, &lastUpdated, &rec.Version); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.NumberLastUpdatedAt = timeFromNull(lastUpdated)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

// attachFriends fills Friends for each record in place.
func (v view) attachFriends(ctx context.Context, recs []ir.Record) error {
	if len(recs) == 0 {
		return nil
	}

	index := make(map[ir.RecordID]int, len(recs))
	args := make([]any, len(recs))
	for i := range recs {
		recs[i].Friends = []ir.RecordID{}
		index[recs[i].ID] = i
		args[i] = string(recs[i].ID)
	}

	rows, err := v.q.QueryContext(ctx, `
		SELECT record_id, friend_id
		FROM friendships
		WHERE record_id IN (?`+strings.Repeat(",?", len(recs)-1)+`)
		ORDER BY record_id, friend_id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return fmt.Errorf("query friendships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var recordID, friendID ir.RecordID
		if err := rows.Scan(&recordID, &friendID); err != nil {
			return fmt.Errorf("scan friendship: %w", err)
		}
		i := index[recordID]
		recs[i].Friends = append(recs[i].Friends, friendID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate friendships: %w", err)
	}
	return nil
}
