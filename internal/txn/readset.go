package txn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/friendsync/internal/ir"
)

// Reader is the read surface shared by Backend and a backend's own
// in-transaction view used during validation.
type Reader interface {
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id ir.RecordID) (ir.Record, error)

	// FindByNumber returns all records whose Number equals n.
	FindByNumber(ctx context.Context, n ir.Number) ([]ir.Record, error)

	// FindByFriend returns all records whose Friends contain id.
	FindByFriend(ctx context.Context, id ir.RecordID) ([]ir.Record, error)
}

// Versioned is a (record, version) pair observed by a scan.
type Versioned struct {
	ID      ir.RecordID
	Version int64
}

// ReadSet is everything a transaction body observed.
// Safe for concurrent use; bodies may issue reads from several goroutines.
type ReadSet struct {
	mu      sync.Mutex
	records map[ir.RecordID]int64 // 0 = observed absent
	groups  map[ir.Number][]Versioned
	linked  map[ir.RecordID][]Versioned
}

// NewReadSet creates an empty read set.
func NewReadSet() *ReadSet {
	return &ReadSet{
		records: make(map[ir.RecordID]int64),
		groups:  make(map[ir.Number][]Versioned),
		linked:  make(map[ir.RecordID][]Versioned),
	}
}

// Len returns the number of distinct reads recorded.
func (rs *ReadSet) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.records) + len(rs.groups) + len(rs.linked)
}

func (rs *ReadSet) addRecord(id ir.RecordID, version int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.records[id] = version
}

func (rs *ReadSet) addGroup(n ir.Number, recs []ir.Record) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.groups[n] = versionsOf(recs)
}

func (rs *ReadSet) addLinked(id ir.RecordID, recs []ir.Record) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.linked[id] = versionsOf(recs)
}

// Validate re-executes every recorded read against r and returns an error
// wrapping ErrConflict at the first difference. Backends call it from inside
// their exclusive write transaction, immediately before applying writes.
func (rs *ReadSet) Validate(ctx context.Context, r Reader) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for id, want := range rs.records {
		rec, err := r.Get(ctx, id)
		var got int64
		switch {
		case errors.Is(err, ErrNotFound):
			got = 0
		case err != nil:
			return fmt.Errorf("validate record %s: %w", id, err)
		default:
			got = rec.Version
		}
		if got != want {
			return fmt.Errorf("%w: record %s at version %d, read at %d", ErrConflict, id, got, want)
		}
	}

	for n, want := range rs.groups {
		recs, err := r.FindByNumber(ctx, n)
		if err != nil {
			return fmt.Errorf("validate number group %d: %w", n, err)
		}
		if !sameVersions(want, versionsOf(recs)) {
			return fmt.Errorf("%w: number group %d changed", ErrConflict, n)
		}
	}

	for id, want := range rs.linked {
		recs, err := r.FindByFriend(ctx, id)
		if err != nil {
			return fmt.Errorf("validate friends of %s: %w", id, err)
		}
		if !sameVersions(want, versionsOf(recs)) {
			return fmt.Errorf("%w: records befriending %s changed", ErrConflict, id)
		}
	}

	return nil
}

func versionsOf(recs []ir.Record) []Versioned {
	out := make([]Versioned, len(recs))
	for i, r := range recs {
		out[i] = Versioned{ID: r.ID, Version: r.Version}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sameVersions(a, b []Versioned) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
