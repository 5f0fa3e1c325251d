package txn

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/friendsync/internal/ir"
)

// Tx is a single attempt of a transaction body.
//
// All reads must precede all writes. Reads go straight to the backend and are
// recorded in the read set; writes are buffered until commit.
type Tx struct {
	reader Reader
	reads  *ReadSet

	mu     sync.Mutex
	writes []Write
}

func newTx(r Reader) *Tx {
	return &Tx{reader: r, reads: NewReadSet()}
}

// Get reads one record. An absent record is recorded as such and returns ErrNotFound.
func (tx *Tx) Get(ctx context.Context, id ir.RecordID) (ir.Record, error) {
	if err := tx.checkReadable(); err != nil {
		return ir.Record{}, err
	}
	rec, err := tx.reader.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		tx.reads.addRecord(id, 0)
		return ir.Record{}, err
	}
	if err != nil {
		return ir.Record{}, err
	}
	tx.reads.addRecord(id, rec.Version)
	return rec, nil
}

// FindByNumber reads every record with the given number.
func (tx *Tx) FindByNumber(ctx context.Context, n ir.Number) ([]ir.Record, error) {
	if err := tx.checkReadable(); err != nil {
		return nil, err
	}
	recs, err := tx.reader.FindByNumber(ctx, n)
	if err != nil {
		return nil, err
	}
	tx.reads.addGroup(n, recs)
	return recs, nil
}

// FindByFriend reads every record whose friends contain id.
func (tx *Tx) FindByFriend(ctx context.Context, id ir.RecordID) ([]ir.Record, error) {
	if err := tx.checkReadable(); err != nil {
		return nil, err
	}
	recs, err := tx.reader.FindByFriend(ctx, id)
	if err != nil {
		return nil, err
	}
	tx.reads.addLinked(id, recs)
	return recs, nil
}

// Apply buffers writes for commit.
func (tx *Tx) Apply(writes ...Write) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.writes = append(tx.writes, writes...)
}

// Writes returns a copy of the buffered writes.
func (tx *Tx) Writes() []Write {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return append([]Write(nil), tx.writes...)
}

// ReadSet returns the reads recorded so far.
func (tx *Tx) ReadSet() *ReadSet {
	return tx.reads
}

func (tx *Tx) checkReadable() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if len(tx.writes) > 0 {
		return ErrReadAfterWrite
	}
	return nil
}
