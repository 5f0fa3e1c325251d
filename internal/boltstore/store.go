package boltstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

var _ txn.Backend = (*Store)(nil)

// Store is a bbolt-backed record store. Safe for concurrent use.
type Store struct {
	db     *bolt.DB
	now    func() time.Time
	events ir.EventIDGenerator
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the wall clock used for event times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithEventIDs sets the event ID generator. Default: UUIDv7.
func WithEventIDs(g ir.EventIDGenerator) Option {
	return func(s *Store) {
		s.events = g
	}
}

// Open creates or opens a bolt database at path and ensures its buckets exist.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketByNumber, bucketChanges} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		now:    time.Now,
		events: ir.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// view implements txn.Reader over an open bolt transaction.
type view struct {
	tx *bolt.Tx
}

func (v view) Get(_ context.Context, id ir.RecordID) (ir.Record, error) {
	raw := v.tx.Bucket(bucketRecords).Get([]byte(id))
	if raw == nil {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, txn.ErrNotFound)
	}
	rec, _, err := decodeRecord([]byte(id), raw)
	return rec, err
}

func (v view) FindByNumber(ctx context.Context, n ir.Number) ([]ir.Record, error) {
	prefix := numberPrefix(n)
	recs := []ir.Record{}
	c := v.tx.Bucket(bucketByNumber).Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		rec, err := v.Get(ctx, ir.RecordID(k[len(prefix):]))
		if err != nil {
			return nil, fmt.Errorf("find by number %d: %w", n, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// FindByFriend scans every record; there is no reverse friendship index.
func (v view) FindByFriend(_ context.Context, id ir.RecordID) ([]ir.Record, error) {
	recs := []ir.Record{}
	err := v.tx.Bucket(bucketRecords).ForEach(func(k, raw []byte) error {
		rec, _, err := decodeRecord(k, raw)
		if err != nil {
			return err
		}
		if rec.HasFriend(id) {
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find by friend %s: %w", id, err)
	}
	return recs, nil
}

func (v view) list() ([]ir.Record, error) {
	recs := []ir.Record{}
	err := v.tx.Bucket(bucketRecords).ForEach(func(k, raw []byte) error {
		rec, _, err := decodeRecord(k, raw)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

// Get returns the record with the given ID, or txn.ErrNotFound.
func (s *Store) Get(ctx context.Context, id ir.RecordID) (rec ir.Record, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		rec, err = view{tx}.Get(ctx, id)
		return err
	})
	return rec, err
}

// FindByNumber returns all records whose number equals n, ordered by ID.
func (s *Store) FindByNumber(ctx context.Context, n ir.Number) (recs []ir.Record, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		recs, err = view{tx}.FindByNumber(ctx, n)
		return err
	})
	return recs, err
}

// FindByFriend returns all records whose friends contain id, ordered by ID.
func (s *Store) FindByFriend(ctx context.Context, id ir.RecordID) (recs []ir.Record, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		recs, err = view{tx}.FindByFriend(ctx, id)
		return err
	})
	return recs, err
}

// ListRecords returns every record ordered by ID.
func (s *Store) ListRecords(_ context.Context) (recs []ir.Record, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		recs, err = view{tx}.list()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}
